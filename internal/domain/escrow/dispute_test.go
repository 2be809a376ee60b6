package escrow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

func openDispute(t *testing.T, m *Machine, from valueobject.TransactionStatus, actor Actor) (*models.Transaction, *models.Dispute) {
	t.Helper()
	tx := txIn(t, m, from)
	out, err := m.OpenDispute(tx, nil, actor, OpenDisputeInput{Reason: "not_received", Description: "посылки нет", Evidence: []string{" https://cdn/a.jpg ", ""}}, baseTime, 72*time.Hour)
	require.NoError(t, err)
	return out.Transition.Transaction, out.Dispute
}

func TestOpenDispute(t *testing.T) {
	m := NewMachine(SalePlatformFeePercent)

	for _, status := range []valueobject.TransactionStatus{
		valueobject.TransactionPaid, valueobject.TransactionAccepted,
		valueobject.TransactionShipped, valueobject.TransactionDelivered,
	} {
		tx, d := openDispute(t, m, status, buyer())
		assert.Equal(t, valueobject.TransactionDisputed, tx.Status, status)
		assert.Equal(t, valueobject.DisputeOpen, d.Status)
		assert.Equal(t, tx.ID, d.TransactionID)
		assert.Equal(t, models.RoleBuyer, d.OpenedByRole)
		assert.Equal(t, models.StringList{"https://cdn/a.jpg"}, d.Evidence)
		require.NotNil(t, d.Deadline)
		assert.Equal(t, baseTime.Add(72*time.Hour), *d.Deadline)
	}

	_, d := openDispute(t, m, valueobject.TransactionShipped, seller())
	assert.Equal(t, models.RoleSeller, d.OpenedByRole)
}

func TestOpenDispute_Rejected(t *testing.T) {
	m := NewMachine(SalePlatformFeePercent)
	in := OpenDisputeInput{Reason: "damaged"}

	for _, status := range []valueobject.TransactionStatus{
		valueobject.TransactionPending, valueobject.TransactionProcessing, valueobject.TransactionCompleted,
	} {
		tx := txIn(t, m, status)
		_, err := m.OpenDispute(tx, nil, buyer(), in, baseTime, time.Hour)
		assert.True(t, apperror.IsInvalidTransition(err), status)
	}

	shipped := txIn(t, m, valueobject.TransactionShipped)
	_, err := m.OpenDispute(shipped, nil, stranger(), in, baseTime, time.Hour)
	assert.True(t, apperror.IsInvalidTransition(err))

	_, err = m.OpenDispute(shipped, nil, admin(), in, baseTime, time.Hour)
	assert.True(t, apperror.IsInvalidTransition(err))

	_, err = m.OpenDispute(shipped, &models.Dispute{}, buyer(), in, baseTime, time.Hour)
	assert.True(t, apperror.IsInvalidTransition(err))

	_, err = m.OpenDispute(shipped, nil, buyer(), OpenDisputeInput{Reason: "  "}, baseTime, time.Hour)
	assert.True(t, apperror.IsValidation(err))
}

func TestDisputeSuspendsParticipantTransitions(t *testing.T) {
	m := NewMachine(SalePlatformFeePercent)
	tx, _ := openDispute(t, m, valueobject.TransactionShipped, buyer())

	for _, in := range []Input{
		{Action: ActionConfirmDelivery, Actor: buyer()},
		{Action: ActionComplete, Actor: buyer()},
		{Action: ActionShip, Actor: seller(), Shipping: &Shipping{CourierName: "x", TrackingNumber: "y"}},
		{Action: ActionOpenDispute, Actor: seller()},
	} {
		_, err := m.Apply(tx, in)
		assert.True(t, apperror.IsInvalidTransition(err), in.Action)
	}
	assert.Empty(t, AllowedActions(tx, buyer()))
	assert.Empty(t, AllowedActions(tx, seller()))
}

func TestResolveDispute_SellerWins(t *testing.T) {
	m := NewMachine(SalePlatformFeePercent)
	tx, d := openDispute(t, m, valueobject.TransactionShipped, buyer())

	out, err := m.ResolveDispute(tx, d, admin(), ResolveDisputeInput{Winner: models.WinnerSeller, Resolution: "доставка подтверждена"}, baseTime.Add(time.Hour))
	require.NoError(t, err)

	after := out.Transition.Transaction
	assert.Equal(t, valueobject.TransactionCompleted, after.Status)
	require.NotNil(t, after.SellerPayout)
	assert.True(t, after.SellerPayout.Add(*after.PlatformFee).Equal(after.Amount))
	assert.Equal(t, 1, after.TerminalTimestamps())

	require.Len(t, out.Transition.Credits, 2)
	assert.Equal(t, sellerID, out.Transition.Credits[0].UserID)
	assert.True(t, out.Transition.Credits[0].Available.Equal(dec("950")))

	assert.Equal(t, valueobject.DisputeResolvedSeller, out.Dispute.Status)
	assert.Equal(t, models.WinnerSeller, *out.Dispute.Winner)
	assert.Equal(t, adminID, *out.Dispute.ResolvedByID)
	assert.NotNil(t, out.Dispute.ResolvedAt)
	assert.Equal(t, d.Version+1, out.Dispute.Version)

	// повторное решение уже закрытого спора
	_, err = m.ResolveDispute(after, out.Dispute, admin(), ResolveDisputeInput{Winner: models.WinnerSeller}, baseTime.Add(2*time.Hour))
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestResolveDispute_BuyerWins(t *testing.T) {
	m := NewMachine(SalePlatformFeePercent)
	tx, d := openDispute(t, m, valueobject.TransactionDelivered, seller())

	out, err := m.ResolveDispute(tx, d, admin(), ResolveDisputeInput{Winner: models.WinnerBuyer, Close: true}, baseTime.Add(time.Hour))
	require.NoError(t, err)

	after := out.Transition.Transaction
	assert.Equal(t, valueobject.TransactionRefunded, after.Status)
	assert.NotNil(t, after.RefundedAt)
	assert.Nil(t, after.SellerPayout)
	assert.Equal(t, 1, after.TerminalTimestamps())
	require.Len(t, out.Transition.Credits, 1)
	assert.Equal(t, buyerID, out.Transition.Credits[0].UserID)
	assert.True(t, out.Transition.Credits[0].Available.Equal(after.Amount))

	assert.Equal(t, valueobject.DisputeClosed, out.Dispute.Status)
	assert.Equal(t, models.WinnerBuyer, *out.Dispute.Winner)
}

func TestResolveDispute_Rejected(t *testing.T) {
	m := NewMachine(SalePlatformFeePercent)
	tx, d := openDispute(t, m, valueobject.TransactionPaid, buyer())

	_, err := m.ResolveDispute(tx, d, seller(), ResolveDisputeInput{Winner: models.WinnerSeller}, baseTime)
	assert.True(t, apperror.IsInvalidTransition(err))

	_, err = m.ResolveDispute(tx, d, admin(), ResolveDisputeInput{}, baseTime)
	assert.True(t, apperror.IsValidation(err))

	_, err = m.ResolveDispute(tx, d, admin(), ResolveDisputeInput{Winner: "nobody"}, baseTime)
	assert.True(t, apperror.IsValidation(err))
}

func TestMoveDispute(t *testing.T) {
	m := NewMachine(SalePlatformFeePercent)
	_, d := openDispute(t, m, valueobject.TransactionPaid, buyer())

	_, err := MoveDispute(d, buyer(), valueobject.DisputeUnderReview, baseTime)
	assert.True(t, apperror.IsInvalidTransition(err))

	_, err = MoveDispute(d, admin(), valueobject.DisputeResolvedBuyer, baseTime)
	assert.True(t, apperror.IsInvalidTransition(err))

	_, err = MoveDispute(d, admin(), valueobject.DisputeOpen, baseTime)
	assert.True(t, apperror.IsInvalidTransition(err))

	out, err := MoveDispute(d, admin(), valueobject.DisputeAwaitingSeller, baseTime)
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeAwaitingSeller, out.Dispute.Status)
	assert.Equal(t, valueobject.DisputeOpen, d.Status)
	assert.Nil(t, out.Transition)

	_, err = MoveDispute(out.Dispute, admin(), valueobject.DisputeAwaitingSeller, baseTime)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestDisputeMessages(t *testing.T) {
	m := NewMachine(SalePlatformFeePercent)
	tx, d := openDispute(t, m, valueobject.TransactionShipped, buyer())

	msg, err := NewDisputeMessage(tx, d, seller(), "  отправил вовремя ", baseTime)
	require.NoError(t, err)
	assert.Equal(t, "отправил вовремя", msg.Message)
	assert.Equal(t, models.RoleSeller, msg.SenderRole)

	msg, err = NewDisputeMessage(tx, d, admin(), "проверяем", baseTime)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, msg.SenderRole)

	_, err = NewDisputeMessage(tx, d, stranger(), "привет", baseTime)
	assert.True(t, apperror.IsForbidden(err))

	_, err = NewDisputeMessage(tx, d, buyer(), "   ", baseTime)
	assert.True(t, apperror.IsValidation(err))

	resolved, err := m.ResolveDispute(tx, d, admin(), ResolveDisputeInput{Winner: models.WinnerBuyer}, baseTime)
	require.NoError(t, err)
	_, err = NewDisputeMessage(resolved.Transition.Transaction, resolved.Dispute, buyer(), "спасибо", baseTime)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestAddEvidence(t *testing.T) {
	m := NewMachine(SalePlatformFeePercent)
	tx, d := openDispute(t, m, valueobject.TransactionShipped, buyer())

	out, err := AddEvidence(tx, d, buyer(), "https://cdn/b.jpg", baseTime)
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"https://cdn/a.jpg", "https://cdn/b.jpg"}, out.Dispute.Evidence)
	assert.Len(t, d.Evidence, 1)

	_, err = AddEvidence(tx, d, stranger(), "https://cdn/c.jpg", baseTime)
	assert.True(t, apperror.IsForbidden(err))

	_, err = AddEvidence(tx, d, buyer(), "javascript:alert(1)", baseTime)
	assert.True(t, apperror.IsValidation(err), err)
}

func TestDisputeIsOverdue(t *testing.T) {
	m := NewMachine(SalePlatformFeePercent)
	_, d := openDispute(t, m, valueobject.TransactionPaid, buyer())

	assert.False(t, d.IsOverdue(baseTime.Add(71*time.Hour)))
	assert.True(t, d.IsOverdue(baseTime.Add(73*time.Hour)))

	d.Status = valueobject.DisputeClosed
	assert.False(t, d.IsOverdue(baseTime.Add(100*time.Hour)))
}
