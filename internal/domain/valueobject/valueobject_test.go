package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(decimal.RequireFromString("10.005"), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, m.Currency)
	assert.True(t, m.Amount.Equal(decimal.RequireFromString("10.01")))
	assert.Equal(t, "NGN 10.01", m.String())

	_, err = NewMoney(decimal.NewFromInt(-1), "NGN")
	assert.Error(t, err)

	_, err = NewPositiveMoney(decimal.Zero, "NGN")
	assert.Error(t, err)
}

func TestPercent(t *testing.T) {
	assert.True(t, Percent(decimal.NewFromInt(1000), decimal.RequireFromString("0.02")).Equal(decimal.NewFromInt(20)))
	assert.True(t, Percent(decimal.NewFromInt(10), decimal.RequireFromString("0.02")).Equal(decimal.RequireFromString("0.2")))
}

func TestTransactionStatus(t *testing.T) {
	for _, s := range []TransactionStatus{TransactionCompleted, TransactionCancelled, TransactionRefunded, TransactionExpired} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsEscrowHeld(), s)
	}
	assert.False(t, TransactionDisputed.IsTerminal())
	assert.True(t, TransactionDisputed.IsEscrowHeld())

	_, err := NewTransactionStatus("SHIPPED")
	assert.NoError(t, err)
	_, err = NewTransactionStatus("shipped")
	assert.Error(t, err)
}

func TestDisputeStatus(t *testing.T) {
	assert.True(t, DisputeClosed.IsTerminal())
	assert.False(t, DisputeAwaitingBuyer.IsTerminal())
	_, err := NewDisputeStatus("UNKNOWN")
	assert.Error(t, err)
}
