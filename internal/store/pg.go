package store

import (
	"context"
	"fmt"
	"net/url"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tickerplant/internal/schema"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// Option defines connection options for PostgreSQL.
type Option struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
}

// PG archives market data in PostgreSQL.
type PG struct {
	opt Option
	db  *gorm.DB
}

var _ Store = (*PG)(nil)

// NewPG opens a PostgreSQL-backed store and migrates its tables.
func NewPG(option Option) (*PG, error) {
	connString, err := option.dsn()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(connString), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&tickModel{}, &quoteModel{}, &barModel{}); err != nil {
		return nil, err
	}

	return &PG{opt: option, db: db}, nil
}

// AppendTick archives one tick.
func (s *PG) AppendTick(ctx context.Context, tick schema.Tick) error {
	model := toTickModel(tick)
	return s.db.WithContext(ctx).Create(&model).Error
}

// AppendQuote archives one quote.
func (s *PG) AppendQuote(ctx context.Context, quote schema.Quote) error {
	model := toQuoteModel(quote)
	return s.db.WithContext(ctx).Create(&model).Error
}

// AppendBar archives one sealed bar.
func (s *PG) AppendBar(ctx context.Context, bar schema.Bar) error {
	model := toBarModel(bar)
	return s.db.WithContext(ctx).Create(&model).Error
}

// TicksRange returns ticks in [from, to) ordered by event time.
func (s *PG) TicksRange(ctx context.Context, symbolID schema.SymbolID, from, to int64) ([]schema.Tick, error) {
	var models []tickModel
	err := s.db.WithContext(ctx).
		Where("symbol_id = ? AND ts_event >= ? AND ts_event < ?", uint32(symbolID), from, to).
		Order("ts_event ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	ticks := make([]schema.Tick, len(models))
	for i, m := range models {
		ticks[i] = m.toTick()
	}
	return ticks, nil
}

// BarsRange returns sealed bars of the given resolution in [from, to)
// ordered by window open. Matching on kind and span keeps bars of a
// different threshold, like the journaled base bars, out of the result.
func (s *PG) BarsRange(ctx context.Context, symbolID schema.SymbolID, res schema.Resolution, from, to int64) ([]schema.Bar, error) {
	var models []barModel
	err := s.db.WithContext(ctx).
		Where("symbol_id = ? AND kind = ? AND span = ? AND window_open >= ? AND window_open < ?",
			uint32(symbolID), uint16(res.Kind), res.Span(), from, to).
		Order("window_open ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	bars := make([]schema.Bar, len(models))
	for i, m := range models {
		bars[i] = m.toBar()
	}
	return bars, nil
}

// Close closes the underlying connection pool.
func (s *PG) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}

	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}

	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}

	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	if len(query) != 0 {
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}
