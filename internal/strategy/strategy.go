// Package strategy defines the polymorphic strategy contract every trading
// strategy satisfies, a JSON-driven factory that builds concrete
// strategies by name, and the concrete strategies themselves: dual_ma,
// rsi_mean_reversion, grid, and hybrid_ai.
package strategy

import (
	"github.com/quantcore/engine/internal/core"
)

// Strategy is the polymorphic contract every strategy implementation
// satisfies. Go interfaces stand in for the source platform's vtables:
// an open set of implementations behind one capability contract, with
// mocks as first-class implementers rather than an afterthought.
type Strategy interface {
	// Name returns the strategy's registered name, e.g. "dual_ma".
	Name() string

	// PopulateIndicators computes every indicator column the strategy
	// needs over buf. Idempotent on an unchanged buffer; must fill
	// columns through index Len()-1 (subject to each indicator's own
	// warm-up period).
	PopulateIndicators(buf *core.CandleBuffer) error

	// EntrySignal inspects buf up to index i and returns at most one
	// entry signal, or nil. Must not mutate buf.
	EntrySignal(buf *core.CandleBuffer, i int) (*core.Signal, error)

	// ExitSignal inspects buf up to index i and decides, given an open
	// position, whether to close it.
	ExitSignal(buf *core.CandleBuffer, i int, pos core.Position) (*core.Signal, error)

	// Deinit releases strategy-owned resources. Safe to call multiple
	// times.
	Deinit()
}

// Config is the strategy factory's input: name, trading pair, and a
// strategy-specific parameter blob, matching the wire shape of
// §6 Strategy config JSON.
type Config struct {
	StrategyName string                 `json:"strategy"`
	Pair         PairConfig             `json:"pair"`
	Parameters   map[string]interface{} `json:"parameters"`
}

// PairConfig is the JSON shape of a trading pair in a strategy config.
type PairConfig struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}
