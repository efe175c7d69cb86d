package guard

import (
	"errors"
	"testing"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_NestedEnterFailsFast(t *testing.T) {
	g := New("manager")

	release, err := g.Enter("rebalance")
	require.NoError(t, err)
	assert.True(t, g.Held())

	_, err = g.Enter("rebalance")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrReentrantCall))
	assert.Contains(t, err.Error(), "manager.rebalance")

	release()
	assert.False(t, g.Held())

	release2, err := g.Enter("set_allocation")
	require.NoError(t, err)
	release2()
}

func TestGuard_ReleaseIsIdempotent(t *testing.T) {
	g := New("vault")

	release, err := g.Enter("deposit")
	require.NoError(t, err)
	release()

	other, err := g.Enter("withdraw")
	require.NoError(t, err)

	// A stale release from the first holder must not free the second one.
	release()
	assert.True(t, g.Held())

	other()
	assert.False(t, g.Held())
}

func TestGuard_ReleasedOnPanic(t *testing.T) {
	g := New("fees")

	func() {
		defer func() { _ = recover() }()
		release, err := g.Enter("collect")
		require.NoError(t, err)
		defer release()
		panic("adapter blew up")
	}()

	assert.False(t, g.Held())
}
