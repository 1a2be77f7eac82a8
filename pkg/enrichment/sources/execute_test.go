package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bussola-ai/bussola/pkg/breaker"
)

// stubSource is a scriptable adapter.
type stubSource struct {
	name    string
	brk     *breaker.Breaker
	timeout time.Duration
	result  *SourceResult
	err     error
	block   bool
	calls   int
}

func (s *stubSource) Name() string              { return s.name }
func (s *stubSource) Layer() int                { return 1 }
func (s *stubSource) Confidence() int           { return 70 }
func (s *stubSource) CostEstimate() float64     { return 0.001 }
func (s *stubSource) Timeout() time.Duration    { return s.timeout }
func (s *stubSource) Breaker() *breaker.Breaker { return s.brk }

func (s *stubSource) Enrich(ctx context.Context, _ string, _ Hints) (*SourceResult, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.result, s.err
}

func newStub(t *testing.T, profile breaker.Profile) *stubSource {
	t.Helper()
	return &stubSource{
		name:    NameRegistry,
		brk:     breaker.New(NameRegistry, profile, func(err error) bool { return err != nil }),
		timeout: time.Second,
	}
}

func TestExecute_SuccessPassesThrough(t *testing.T) {
	src := newStub(t, breaker.ProfileDefault)
	src.result = &SourceResult{
		Success: true,
		Data:    map[string]any{"company_name": "Acme"},
		CostUSD: 0.001,
	}

	res := Execute(context.Background(), src, "acme.com.br", nil)

	require.True(t, res.Success)
	assert.Equal(t, "Acme", res.Data["company_name"])
	assert.Greater(t, res.Duration, time.Duration(0), "duration is stamped when the adapter leaves it zero")
}

func TestExecute_AdapterErrorClassifiedAsNetwork(t *testing.T) {
	src := newStub(t, breaker.ProfileDefault)
	src.err = errors.New("connection refused")

	res := Execute(context.Background(), src, "acme.com.br", nil)

	require.False(t, res.Success)
	assert.Equal(t, ErrNetwork, res.ErrorKind)
	assert.Contains(t, res.ErrorMsg, "connection refused")
}

func TestExecute_TimeoutClassified(t *testing.T) {
	src := newStub(t, breaker.ProfileDefault)
	src.timeout = 10 * time.Millisecond
	src.block = true

	res := Execute(context.Background(), src, "acme.com.br", nil)

	require.False(t, res.Success)
	assert.Equal(t, ErrTimeout, res.ErrorKind)
}

func TestExecute_NotFoundDoesNotTripBreaker(t *testing.T) {
	src := newStub(t, breaker.ProfileExpensive)
	src.result = Failed(ErrNotFound, "unknown domain", 0, time.Millisecond)

	for i := 0; i < 10; i++ {
		res := Execute(context.Background(), src, "nobody.example", nil)
		require.False(t, res.Success)
		assert.Equal(t, ErrNotFound, res.ErrorKind)
	}
	assert.False(t, src.brk.Open())
	assert.Equal(t, 10, src.calls)
}

func TestExecute_FailuresTripAndShortCircuit(t *testing.T) {
	src := newStub(t, breaker.ProfileExpensive)
	src.err = errors.New("upstream down")

	for i := 0; i < int(breaker.ProfileExpensive.ConsecutiveFailures); i++ {
		Execute(context.Background(), src, "acme.com.br", nil)
	}
	require.True(t, src.brk.Open())
	callsBefore := src.calls

	res := Execute(context.Background(), src, "acme.com.br", nil)

	require.False(t, res.Success)
	assert.Equal(t, ErrBreakerOpen, res.ErrorKind)
	assert.Equal(t, callsBefore, src.calls, "open breaker must not reach the adapter")
}

func TestIsBreakerFailure(t *testing.T) {
	assert.True(t, IsBreakerFailure(nil))
	assert.False(t, IsBreakerFailure(&SourceResult{Success: true}))
	assert.False(t, IsBreakerFailure(Failed(ErrNotFound, "", 0, 0)))
	assert.True(t, IsBreakerFailure(Failed(ErrUpstream5xx, "", 0, 0)))
	assert.True(t, IsBreakerFailure(Failed(ErrAuth, "", 0, 0)))
}
