package breaker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func trip(b *Breaker, failures int) {
	for i := 0; i < failures; i++ {
		_ = b.Call(func() error { return errBoom })
	}
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := New("registry", ProfileDefault, nil)

	trip(b, int(ProfileDefault.ConsecutiveFailures)-1)
	assert.False(t, b.Open())

	trip(b, 1)
	assert.True(t, b.Open())
	assert.Equal(t, "open", b.State())
}

func TestBreaker_OpenShortCircuits(t *testing.T) {
	b := New("places", ProfileExpensive, nil)
	trip(b, int(ProfileExpensive.ConsecutiveFailures))
	require.True(t, b.Open())

	called := false
	err := b.Call(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := New("registry", ProfileDefault, nil)

	trip(b, int(ProfileDefault.ConsecutiveFailures)-1)
	require.NoError(t, b.Call(func() error { return nil }))

	trip(b, int(ProfileDefault.ConsecutiveFailures)-1)
	assert.False(t, b.Open())
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	errNotFound := errors.New("not found")
	b := New("registry", ProfileExpensive, func(err error) bool {
		return !errors.Is(err, errNotFound)
	})

	// Business misses pass through but never trip the breaker.
	for i := 0; i < 10; i++ {
		err := b.Call(func() error { return errNotFound })
		assert.ErrorIs(t, err, errNotFound)
	}
	assert.False(t, b.Open())

	trip(b, int(ProfileExpensive.ConsecutiveFailures))
	assert.True(t, b.Open())
}

func TestBreaker_Snapshot(t *testing.T) {
	b := New("geoip", ProfileDefault, nil)
	require.NoError(t, b.Call(func() error { return nil }))
	trip(b, 2)

	snap := b.Snapshot()
	assert.Equal(t, "geoip", snap.Source)
	assert.Equal(t, "closed", snap.State)
	assert.Equal(t, uint32(2), snap.ConsecutiveFailures)
	assert.Equal(t, uint32(2), snap.TotalFailures)
	assert.Equal(t, uint32(1), snap.TotalSuccesses)
}

func TestRegistry_GetOrCreateIsIdempotent(t *testing.T) {
	r := NewRegistry()

	a := r.GetOrCreate("registry", ProfileDefault, nil)
	b := r.GetOrCreate("registry", ProfileExpensive, nil)
	assert.Same(t, a, b, "existing breaker keeps its original profile")

	other := r.GetOrCreate("places", ProfileExpensive, nil)
	assert.NotSame(t, a, other)
}

func TestRegistry_Snapshots(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("registry", ProfileDefault, nil)
	r.GetOrCreate("places", ProfileExpensive, nil)

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	names := []string{snaps[0].Source, snaps[1].Source}
	assert.ElementsMatch(t, []string{"registry", "places"}, names)
}
