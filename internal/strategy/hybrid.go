package strategy

import (
	"context"

	"github.com/quantcore/engine/internal/core"
)

// Advisor is the external LLM-advisor capability: a best-effort second
// opinion on a buffer/index, scored on [-1, 1] (bearish to bullish). Its
// wire protocol and model internals are out of scope for the core; only
// this narrow capability contract is.
type Advisor interface {
	Opinion(ctx context.Context, buf *core.CandleBuffer, i int) (float64, error)
}

// HybridAI delegates signal generation to a technical sub-strategy and
// combines it with an Advisor's opinion by weighted sum. The advisor is a
// best-effort capability: if it errors, the technical signal passes
// through unchanged.
type HybridAI struct {
	Sub             Strategy
	Advisor         Advisor
	TechnicalWeight float64
	AdvisorWeight   float64
	Threshold       float64

	ctx context.Context
}

// NewHybridAI builds a hybrid strategy. Weights need not sum to 1; they're
// just the linear combination's coefficients.
func NewHybridAI(sub Strategy, advisor Advisor, technicalWeight, advisorWeight, threshold float64) *HybridAI {
	return &HybridAI{
		Sub:             sub,
		Advisor:         advisor,
		TechnicalWeight: technicalWeight,
		AdvisorWeight:   advisorWeight,
		Threshold:       threshold,
		ctx:             context.Background(),
	}
}

func (h *HybridAI) Name() string { return "hybrid_ai" }

func (h *HybridAI) PopulateIndicators(buf *core.CandleBuffer) error {
	return h.Sub.PopulateIndicators(buf)
}

func (h *HybridAI) EntrySignal(buf *core.CandleBuffer, i int) (*core.Signal, error) {
	technical, err := h.Sub.EntrySignal(buf, i)
	if err != nil {
		return nil, err
	}
	if technical == nil {
		return nil, nil
	}

	techScore := 1.0
	advisorScore, err := h.Advisor.Opinion(h.ctx, buf, i)
	if err != nil {
		// Best-effort capability: on failure, fall through unchanged.
		return technical, nil
	}

	combined := h.TechnicalWeight*techScore + h.AdvisorWeight*advisorScore
	if combined < h.Threshold {
		return nil, nil
	}
	return technical, nil
}

func (h *HybridAI) ExitSignal(buf *core.CandleBuffer, i int, pos core.Position) (*core.Signal, error) {
	// Exits are never vetoed by the advisor — risk reduction always
	// passes through on the sub-strategy's own signal.
	return h.Sub.ExitSignal(buf, i, pos)
}

func (h *HybridAI) Deinit() { h.Sub.Deinit() }
