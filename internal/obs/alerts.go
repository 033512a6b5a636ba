package obs

import (
	"fmt"

	"github.com/yanun0323/logs"
)

// AlertLevel distinguishes "skip" from "halt".
type AlertLevel uint8

const (
	AlertInfo AlertLevel = iota
	AlertWarn
	AlertFatal
)

func (l AlertLevel) String() string {
	switch l {
	case AlertInfo:
		return "INFO"
	case AlertWarn:
		return "WARN"
	case AlertFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Alert is a structured operator notification. Delivery beyond the
// notifier boundary (chat bot, pager) is external to the core.
type Alert struct {
	Level   AlertLevel
	Code    string
	Message string
}

// TextNotifier is the outward notification boundary. It is intentionally
// small so components can depend on it without importing a concrete
// delivery mechanism.
type TextNotifier interface {
	SendText(text string) error
}

// Alerts routes structured alerts to the log and an optional notifier.
type Alerts struct {
	notifier TextNotifier
}

// NewAlerts creates an alert sink. notifier may be nil.
func NewAlerts(notifier TextNotifier) *Alerts {
	return &Alerts{notifier: notifier}
}

// Emit records one alert. Control-plane errors must pass through here so
// they are never silently swallowed.
func (a *Alerts) Emit(level AlertLevel, code, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case AlertWarn:
		logs.Warnf("[%s] %s", code, msg)
	case AlertFatal:
		logs.Errorf("[%s] %s", code, msg)
	default:
		logs.Infof("[%s] %s", code, msg)
	}
	if a == nil || a.notifier == nil {
		return
	}
	if err := a.notifier.SendText(fmt.Sprintf("%s %s: %s", level, code, msg)); err != nil {
		logs.Errorf("notifier send failed, err: %+v", err)
	}
}

// Alert codes used across the runtime.
const (
	CodePersistFailure    = "persist_failure"
	CodeFeedDisconnected  = "feed_disconnected"
	CodeMalformedEvent    = "malformed_feed_event"
	CodeBrokerAuthExpired = "broker_auth_expired"
	CodeRiskRejected      = "risk_rejected"
	CodeRiskInvariant     = "risk_invariant_violation"
	CodePositionDrift     = "position_drift"
	CodeRiskReport        = "risk_report"
	CodeRiskReset         = "risk_reset"
)
