package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

func TestPaymentService_CreateLink(t *testing.T) {
	f := newFixture(t)
	tx := f.newLink(t, "1500.505")

	assert.Equal(t, valueobject.TransactionPending, tx.Status)
	assert.Equal(t, sellerID, tx.SellerID)
	assert.Equal(t, "NGN", tx.Currency)
	assert.Equal(t, 1, tx.Quantity)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("1500.51")), tx.Amount.String())
	assert.Equal(t, fixedNow.Add(DefaultCheckoutTTL), tx.ExpiresAt)

	require.Len(t, f.store.events, 1)
	assert.Equal(t, models.EventTransactionCreated, f.store.events[0].EventType)
}

func TestPaymentService_CreateLink_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []CreateLinkInput{
		{ProductName: " ", Amount: decimal.NewFromInt(10)},
		{ProductName: "x", Amount: decimal.Zero},
		{ProductName: "x", Amount: decimal.NewFromInt(-5)},
		{ProductName: "x", Amount: decimal.NewFromInt(10), Quantity: -1},
	}
	for _, in := range cases {
		_, err := f.payments.CreateLink(ctx, seller, in)
		assert.True(t, apperror.IsValidation(err), "%+v: %v", in, err)
	}
	assert.Empty(t, f.store.txs)
}

func TestPaymentService_InitiatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.newLink(t, "1000")

	f.gw.On("Initialize", mock.Anything, mock.MatchedBy(func(req gateway.InitializeRequest) bool {
		return req.Amount.Equal(decimal.NewFromInt(1000)) && req.Email == "ada@example.com" && req.Currency == "NGN"
	})).Return(&gateway.InitializeResult{AuthorizationURL: "https://pay/abc"}, nil).Once()

	res, err := f.payments.InitiatePayment(ctx, buyer, tx.ID, testContact())
	require.NoError(t, err)
	assert.Equal(t, "https://pay/abc", res.AuthorizationURL)
	assert.NotEmpty(t, res.Reference)

	stored := f.store.tx(tx.ID)
	assert.Equal(t, valueobject.TransactionProcessing, stored.Status)
	require.NotNil(t, stored.BuyerID)
	assert.Equal(t, buyerID, *stored.BuyerID)
	assert.Equal(t, res.Reference, *stored.PaymentReference)
	assert.Equal(t, 2, stored.Version)
	f.gw.AssertExpectations(t)
}

func TestPaymentService_InitiatePayment_GatewayFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	tx := f.newLink(t, "1000")

	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(nil, gateway.ErrUnavailable).Once()

	_, err := f.payments.InitiatePayment(context.Background(), buyer, tx.ID, testContact())
	require.Error(t, err)
	assert.Equal(t, apperror.ErrCodeExternalDependency, apperror.CodeOf(err))

	stored := f.store.tx(tx.ID)
	assert.Equal(t, valueobject.TransactionPending, stored.Status)
	assert.Nil(t, stored.BuyerID)
	assert.Equal(t, 1, stored.Version)
}

func TestPaymentService_InitiatePayment_RejectedBeforeGateway(t *testing.T) {
	f := newFixture(t)
	tx := f.newLink(t, "1000")
	ctx := context.Background()

	_, err := f.payments.InitiatePayment(ctx, seller, tx.ID, testContact())
	assert.True(t, apperror.IsInvalidTransition(err), err)

	_, err = f.payments.InitiatePayment(ctx, buyer, tx.ID, escrow.Contact{Name: "Ада", Email: "ada@example.com"})
	assert.True(t, apperror.IsValidation(err), err)

	f.gw.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything)
}

func TestPaymentService_ConfirmPayment(t *testing.T) {
	f := newFixture(t)
	paid := f.paid(t, "1000")

	assert.Equal(t, valueobject.TransactionPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, fixedNow, *paid.PaidAt)

	ev := f.notifier.last()
	assert.Equal(t, "confirm_payment", ev.Action)
	assert.Equal(t, models.RoleSystem, ev.ActorRole)
	assert.ElementsMatch(t, []uuid.UUID{sellerID, buyerID}, ev.Recipients())

	// повторное подтверждение той же ссылки
	_, err := f.payments.ConfirmPayment(context.Background(), *paid.PaymentReference)
	assert.True(t, apperror.IsConflict(err), err)
}

func TestPaymentService_ConfirmPayment_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.newLink(t, "1000")

	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(&gateway.InitializeResult{}, nil).Once()
	res, err := f.payments.InitiatePayment(ctx, buyer, tx.ID, testContact())
	require.NoError(t, err)

	f.gw.On("Verify", mock.Anything, res.Reference).
		Return(&gateway.Verification{Reference: res.Reference, Success: true, Amount: decimal.NewFromInt(999)}, nil).Once()
	_, err = f.payments.ConfirmPayment(ctx, res.Reference)
	assert.True(t, apperror.IsValidation(err), err)
	assert.Equal(t, valueobject.TransactionProcessing, f.store.tx(tx.ID).Status)

	f.gw.On("Verify", mock.Anything, res.Reference).
		Return(&gateway.Verification{Success: false, Status: "abandoned"}, nil).Once()
	_, err = f.payments.ConfirmPayment(ctx, res.Reference)
	assert.True(t, apperror.IsValidation(err), err)

	f.gw.On("Verify", mock.Anything, res.Reference).Return(nil, errors.New("timeout")).Once()
	_, err = f.payments.ConfirmPayment(ctx, res.Reference)
	assert.Equal(t, apperror.ErrCodeExternalDependency, apperror.CodeOf(err))
}

func TestPaymentService_ConfirmPayment_OtherReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.newLink(t, "1000")

	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(&gateway.InitializeResult{}, nil).Once()
	res, err := f.payments.InitiatePayment(ctx, buyer, tx.ID, testContact())
	require.NoError(t, err)

	f.gw.On("Verify", mock.Anything, res.Reference).
		Return(&gateway.Verification{Reference: "ESC-OTHER", Success: true, Amount: decimal.NewFromInt(1000)}, nil).Once()
	_, err = f.payments.ConfirmPayment(ctx, res.Reference)
	assert.True(t, apperror.IsValidation(err), err)
	assert.Equal(t, valueobject.TransactionProcessing, f.store.tx(tx.ID).Status)
}

func TestPaymentService_ConfirmPayment_UnknownReference(t *testing.T) {
	f := newFixture(t)
	_, err := f.payments.ConfirmPayment(context.Background(), "nope")
	assert.True(t, apperror.IsNotFound(err), err)
}

func TestPaymentService_HandleWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.newLink(t, "250")

	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(&gateway.InitializeResult{}, nil).Once()
	res, err := f.payments.InitiatePayment(ctx, buyer, tx.ID, testContact())
	require.NoError(t, err)

	body := []byte(`{"event":"charge.success","data":{"reference":"` + res.Reference + `","status":"success","amount":25000}}`)

	err = f.payments.HandleWebhook(ctx, body, "deadbeef")
	assert.Equal(t, apperror.ErrCodeUnauthorized, apperror.CodeOf(err))

	f.gw.On("Verify", mock.Anything, res.Reference).
		Return(&gateway.Verification{Reference: res.Reference, Success: true, Amount: decimal.NewFromInt(250)}, nil).Once()
	require.NoError(t, f.payments.HandleWebhook(ctx, body, gateway.Sign("whsec", body)))
	assert.Equal(t, valueobject.TransactionPaid, f.store.tx(tx.ID).Status)

	// повторная доставка и незнакомая ссылка не считаются ошибкой
	require.NoError(t, f.payments.HandleWebhook(ctx, body, gateway.Sign("whsec", body)))
	other := []byte(`{"event":"charge.success","data":{"reference":"topup-1"}}`)
	require.NoError(t, f.payments.HandleWebhook(ctx, other, gateway.Sign("whsec", other)))

	ignored := []byte(`{"event":"transfer.success","data":{}}`)
	require.NoError(t, f.payments.HandleWebhook(ctx, ignored, gateway.Sign("whsec", ignored)))
}

func TestPaymentService_Checkout(t *testing.T) {
	f := newFixture(t)
	tx := f.newLink(t, "99.90")

	view, err := f.payments.Checkout(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "Кроссовки", view.ProductName)
	assert.Equal(t, valueobject.TransactionPending, view.Status)
	assert.Equal(t, fixedNow.Add(72*time.Hour), view.ExpiresAt)
}
