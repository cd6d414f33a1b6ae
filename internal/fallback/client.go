package fallback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roastcraft/enrich-cli/internal/cost"
	"github.com/roastcraft/enrich-cli/internal/model"
	"github.com/roastcraft/enrich-cli/internal/resilience"
)

// ErrRateLimited signals that the per-source token bucket is depleted.
// The caller routes the field to review rather than waiting.
var ErrRateLimited = eris.New("fallback: rate limited")

// ClientConfig wires the client's resilience and accounting pieces.
type ClientConfig struct {
	Limiter *SourceLimiter
	Breaker *resilience.CircuitBreaker
	Retry   resilience.RetryConfig
	Ledger  *cost.Ledger

	// ConfidenceFloor is assigned when the service returns no
	// confidence of its own.
	ConfidenceFloor float64

	// Timeout bounds a single inference call, retries included.
	Timeout time.Duration

	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration
}

// Client fronts a Service with caching, rate limiting, a circuit
// breaker, retries, and cost accounting.
type Client struct {
	svc     Service
	limiter *SourceLimiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	ledger  *cost.Ledger
	cache   *gocache.Cache
	floor   float64
	timeout time.Duration
}

// NewClient builds a fallback client around the given service.
func NewClient(svc Service, cfg ClientConfig) *Client {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cleanup := cfg.CacheCleanupInterval
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}
	return &Client{
		svc:     svc,
		limiter: cfg.Limiter,
		breaker: cfg.Breaker,
		retry:   retry,
		ledger:  cfg.Ledger,
		cache:   gocache.New(ttl, cleanup),
		floor:   cfg.ConfidenceFloor,
		timeout: cfg.Timeout,
	}
}

// Infer resolves a field through the inference service. Identical
// excerpts for the same field are answered from cache without an
// external call.
func (c *Client) Infer(ctx context.Context, req InferRequest) (model.FieldResult, error) {
	key := cacheKey(req.Field, req.Excerpt)
	if cached, ok := c.cache.Get(key); ok {
		if c.ledger != nil {
			c.ledger.RecordCacheHit(req.RecordID, req.Field)
		}
		res := cached.(model.FieldResult)
		zap.L().Debug("fallback cache hit",
			zap.String("record_id", req.RecordID),
			zap.String("field", req.Field))
		return res, nil
	}

	if c.limiter != nil && !c.limiter.Allow(req.SourceID) {
		zap.L().Warn("fallback rate limited",
			zap.String("record_id", req.RecordID),
			zap.String("source_id", req.SourceID),
			zap.String("field", req.Field))
		return model.FieldResult{}, ErrRateLimited
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	attempts := 1
	retry := c.retry
	base := retry.OnRetry
	retry.OnRetry = func(attempt int, err error) {
		attempts = attempt + 1
		if base != nil {
			base(attempt, err)
		}
	}

	call := func(ctx context.Context) (*InferResponse, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*InferResponse, error) {
			return c.svc.Infer(ctx, req)
		})
	}

	var (
		resp *InferResponse
		err  error
	)
	if c.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, c.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		if c.ledger != nil {
			c.ledger.RecordCall(req.RecordID, req.Field, "", 0, 0, attempts, cost.OutcomeFailed)
		}
		return model.FieldResult{}, err
	}

	if c.ledger != nil {
		c.ledger.RecordCall(req.RecordID, req.Field, resp.Model,
			resp.InputTokens, resp.OutputTokens, attempts, cost.OutcomeSuccess)
	}

	res := c.toResult(req.Field, resp)
	c.cache.Set(key, res, gocache.DefaultExpiration)
	return res, nil
}

func (c *Client) toResult(field string, resp *InferResponse) model.FieldResult {
	confidence := c.floor
	if resp.HasConfidence {
		confidence = model.ClampConfidence(resp.Confidence)
	}
	res := model.FieldResult{
		Field:      field,
		Value:      resp.Value,
		Confidence: confidence,
		Source:     model.SourceFallback,
	}
	if resp.Value == nil {
		res.Warnings = append(res.Warnings, "fallback returned no value")
	}
	return res
}

func cacheKey(field, excerpt string) string {
	h := sha256.Sum256([]byte(field + "\x00" + excerpt))
	return hex.EncodeToString(h[:])
}
