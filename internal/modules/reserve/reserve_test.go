package reserve

import (
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-vault/internal/domain"
	testhelpers "github.com/aristath/sentinel-vault/internal/testing"
)

type failingStore struct{}

func (failingStore) LoadBalance() (*big.Int, error) { return nil, nil }
func (failingStore) SaveBalance(*big.Int) error     { return errors.New("disk full") }

func TestAccount_CreditDebit(t *testing.T) {
	a, err := NewAccount(nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "0", a.Balance().String())

	require.NoError(t, a.Credit(big.NewInt(100)))
	require.NoError(t, a.Debit(big.NewInt(40)))
	assert.Equal(t, "60", a.Balance().String())

	err = a.Debit(big.NewInt(61))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, "60", a.Balance().String())

	assert.Error(t, a.Credit(big.NewInt(-1)))
	assert.Error(t, a.Debit(nil))
}

func TestAccount_BalanceIsACopy(t *testing.T) {
	a, err := NewAccount(nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Credit(big.NewInt(10)))

	b := a.Balance()
	b.SetInt64(999)
	assert.Equal(t, "10", a.Balance().String())
}

func TestAccount_FailedPersistLeavesBalance(t *testing.T) {
	a, err := NewAccount(failingStore{}, zerolog.Nop())
	require.NoError(t, err)

	assert.Error(t, a.Credit(big.NewInt(10)))
	assert.Equal(t, "0", a.Balance().String())
}

func TestAccount_PersistsThroughRepository(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "vault")
	defer cleanup()

	repo := NewRepository(db.Conn(), zerolog.Nop())
	a, err := NewAccount(repo, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, a.Credit(new(big.Int).Lsh(big.NewInt(1), 100)))
	require.NoError(t, a.Debit(big.NewInt(1)))

	reloaded, err := NewAccount(repo, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "1267650600228229401496703205375", reloaded.Balance().String())
}
