package exchange

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/quanterrors"
)

// RateLimitedClient wraps any ExecutionClient with a token-bucket
// limiter, so a single adapter implementation can be reused across
// exchanges with different rate-limit tiers without each one
// reimplementing throttling.
type RateLimitedClient struct {
	inner   ExecutionClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with a limiter allowing
// requestsPerSecond sustained, bursting up to burst.
func NewRateLimitedClient(inner ExecutionClient, requestsPerSecond float64, burst int) *RateLimitedClient {
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (c *RateLimitedClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return quanterrors.NewLiveError("rate_limit", "rate limiter wait failed", false, err)
	}
	return nil
}

func (c *RateLimitedClient) SubmitOrder(ctx context.Context, req core.OrderRequest) (core.OrderResult, error) {
	if err := c.wait(ctx); err != nil {
		return core.OrderResult{}, err
	}
	return c.inner.SubmitOrder(ctx, req)
}

func (c *RateLimitedClient) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.inner.CancelOrder(ctx, exchangeOrderID)
}

func (c *RateLimitedClient) CancelAll(ctx context.Context, pair *core.TradingPair) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.inner.CancelAll(ctx, pair)
}

func (c *RateLimitedClient) OpenOrders(ctx context.Context, pair *core.TradingPair) ([]core.OpenOrder, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.OpenOrders(ctx, pair)
}

func (c *RateLimitedClient) Positions(ctx context.Context) ([]core.Position, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.Positions(ctx)
}

func (c *RateLimitedClient) Balance(ctx context.Context) (core.Balance, error) {
	if err := c.wait(ctx); err != nil {
		return core.Balance{}, err
	}
	return c.inner.Balance(ctx)
}

func (c *RateLimitedClient) SetLeverage(ctx context.Context, pair core.TradingPair, multiplier float64, cross bool) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.inner.SetLeverage(ctx, pair, multiplier, cross)
}

var _ ExecutionClient = (*RateLimitedClient)(nil)
