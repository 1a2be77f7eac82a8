package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	defaultCallTimeout = 60 * time.Second
	maxRetries         = 2
)

// Request describes one LLM call. Schema is optional; when set the
// response must parse into a JSON object satisfying it.
type Request struct {
	Model     string
	System    string
	User      string
	MaxTokens int
	Timeout   time.Duration
	Schema    *Schema
}

// Result carries the completion plus accounting. Token counts and cost
// are populated even when the call ultimately fails, so callers can
// charge partial work.
type Result struct {
	Content    string
	JSON       map[string]any
	Model      string
	TokensIn   int
	TokensOut  int
	CostUSD    float64
	DurationMS int64
	Attempts   int
}

// Client wraps a Provider with retries, per-model rate limiting,
// structured-output enforcement and cost accounting.
type Client struct {
	provider Provider
	prices   PriceTable
	rps      rate.Limit
	burst    int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient builds a client. rps<=0 disables rate limiting.
func NewClient(provider Provider, prices PriceTable, rps float64) *Client {
	if prices == nil {
		prices = DefaultPriceTable()
	}
	burst := 1
	if rps > 1 {
		burst = int(rps)
	}
	return &Client{
		provider: provider,
		prices:   prices,
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Call runs one request through the retry and rate-limit machinery.
// The returned Result is non-nil even on error so accumulated token
// usage and cost survive the failure.
func (c *Client) Call(ctx context.Context, req Request) (*Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := &Result{Model: req.Model}
	start := time.Now()
	defer func() {
		res.DurationMS = time.Since(start).Milliseconds()
		res.CostUSD = c.prices.Cost(req.Model, res.TokensIn, res.TokensOut)
	}()

	completion, err := c.complete(ctx, req, res)
	if err != nil {
		return res, err
	}
	res.Content = completion.Content

	if req.Schema == nil {
		return res, nil
	}

	obj, parseErr := parseStructured(req.Schema, completion.Content)
	if parseErr == nil {
		res.JSON = obj
		return res, nil
	}

	// One repair round: echo the parse failure back and ask again.
	slog.Warn("llm structured output invalid, attempting repair",
		"model", req.Model, "error", parseErr)
	repair := req
	repair.User = repairPrompt(req.User, completion.Content, parseErr)
	completion, err = c.complete(ctx, repair, res)
	if err != nil {
		return res, err
	}
	res.Content = completion.Content

	obj, parseErr = parseStructured(req.Schema, completion.Content)
	if parseErr != nil {
		return res, NewError(KindParse, parseErr)
	}
	res.JSON = obj
	return res, nil
}

// complete performs one provider call with retries, accumulating token
// usage into res across attempts.
func (c *Client) complete(ctx context.Context, req Request, res *Result) (*Completion, error) {
	if err := c.limiter(req.Model).Wait(ctx); err != nil {
		return nil, NewError(KindTimeout, err)
	}

	var completion *Completion
	operation := func() error {
		res.Attempts++
		got, err := c.provider.Complete(ctx, req.Model, req.System, req.User, req.MaxTokens)
		if got != nil {
			res.TokensIn += got.TokensIn
			res.TokensOut += got.TokensOut
		}
		if err != nil {
			if !Retryable(err) {
				return backoff.Permanent(err)
			}
			slog.Warn("llm call failed, retrying",
				"model", req.Model, "kind", KindOf(err), "attempt", res.Attempts)
			return err
		}
		completion = got
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		if ctx.Err() == context.DeadlineExceeded && KindOf(err) == KindInternal {
			return nil, NewError(KindTimeout, err)
		}
		return nil, err
	}
	return completion, nil
}

func (c *Client) limiter(model string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[model]
	if !ok {
		if c.rps <= 0 {
			lim = rate.NewLimiter(rate.Inf, 1)
		} else {
			lim = rate.NewLimiter(c.rps, c.burst)
		}
		c.limiters[model] = lim
	}
	return lim
}

func parseStructured(schema *Schema, content string) (map[string]any, error) {
	obj, err := ExtractJSON(content)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func repairPrompt(original, badOutput string, parseErr error) string {
	return fmt.Sprintf(`%s

Your previous response was rejected: %v

Previous response:
%s

Respond again with ONLY a valid JSON object containing every required key. No prose, no code fences.`,
		original, parseErr, badOutput)
}
