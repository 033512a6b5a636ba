package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=2 means the integer value is scaled by 1e2.
type Scale int32

// Instrument describes a tradable instrument. Instruments are immutable
// once loaded; the registry is refreshed at process start and cached to
// disk for offline reuse.
type Instrument struct {
	ID         SymbolID `json:"id"`
	Symbol     string   `json:"symbol"`
	Exchange   string   `json:"exchange"`
	AssetClass string   `json:"assetClass"`
	TickSize   Price    `json:"tickSize"`
	LotSize    int64    `json:"lotSize"`
	PriceScale Scale    `json:"priceScale"`
	QtyScale   Scale    `json:"qtyScale"`
}

// Registry stores instrument mappings in a compact form.
type Registry struct {
	instruments  []Instrument
	symbolByName map[string]SymbolID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{symbolByName: make(map[string]SymbolID)}
}

// Add registers a new instrument and returns its ID.
func (r *Registry) Add(inst Instrument) (SymbolID, error) {
	if inst.Symbol == "" {
		return 0, fmt.Errorf("instrument symbol is empty")
	}
	if inst.PriceScale < 0 || inst.QtyScale < 0 {
		return 0, fmt.Errorf("instrument scale must be >= 0: %s", inst.Symbol)
	}
	if id, ok := r.symbolByName[inst.Symbol]; ok {
		return id, fmt.Errorf("instrument already exists: %s", inst.Symbol)
	}
	inst.ID = SymbolID(len(r.instruments) + 1)
	if inst.LotSize <= 0 {
		inst.LotSize = 1
	}
	r.instruments = append(r.instruments, inst)
	r.symbolByName[inst.Symbol] = inst.ID
	return inst.ID, nil
}

// Instrument returns the instrument by ID.
func (r *Registry) Instrument(id SymbolID) (Instrument, bool) {
	if id == 0 || int(id) > len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[id-1], true
}

// IDBySymbol returns the instrument ID for a symbol name.
func (r *Registry) IDBySymbol(symbol string) (SymbolID, bool) {
	id, ok := r.symbolByName[symbol]
	return id, ok
}

// Count returns the number of registered instruments.
func (r *Registry) Count() int {
	return len(r.instruments)
}

// At returns the instrument by zero-based index.
func (r *Registry) At(index int) (Instrument, bool) {
	if index < 0 || index >= len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[index], true
}

// Instruments returns a copy of the instrument list.
func (r *Registry) Instruments() []Instrument {
	out := make([]Instrument, len(r.instruments))
	copy(out, r.instruments)
	return out
}

// SaveCache writes the registry to disk so the instrument list can be
// reused when the upstream source is unreachable.
func (r *Registry) SaveCache(path string) error {
	if path == "" {
		return fmt.Errorf("registry cache path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r.instruments, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadCache reads a registry previously written by SaveCache.
func LoadCache(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var instruments []Instrument
	if err := json.Unmarshal(data, &instruments); err != nil {
		return nil, fmt.Errorf("registry cache corrupt: %w", err)
	}
	reg := NewRegistry()
	for _, inst := range instruments {
		inst.ID = 0
		if _, err := reg.Add(inst); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
