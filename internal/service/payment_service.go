package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/cache"
	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// DefaultCheckoutTTL - срок жизни неоплаченной ссылки.
const DefaultCheckoutTTL = 72 * time.Hour

type PaymentOptions struct {
	CheckoutTTL   time.Duration
	CallbackURL   string
	WebhookSecret string
}

// PaymentService - платёжные ссылки, оформление и подтверждение оплаты.
type PaymentService struct {
	*transitionWriter
	machine *escrow.Machine
	gateway PaymentGateway
	opts    PaymentOptions
	now     func() time.Time
}

func NewPaymentService(txs TransactionStore, machine *escrow.Machine, gw PaymentGateway, notifier Notifier, c cache.Cache, opts PaymentOptions) *PaymentService {
	if opts.CheckoutTTL <= 0 {
		opts.CheckoutTTL = DefaultCheckoutTTL
	}
	return &PaymentService{
		transitionWriter: newTransitionWriter(txs, notifier, c),
		machine:          machine,
		gateway:          gw,
		opts:             opts,
		now:              utcNow,
	}
}

type CreateLinkInput struct {
	ProductName        string          `json:"product_name"`
	ProductDescription string          `json:"product_description"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Quantity           int             `json:"quantity"`
}

// CreateLink создаёт платёжную ссылку продавца в статусе PENDING.
func (s *PaymentService) CreateLink(ctx context.Context, actor escrow.Actor, in CreateLinkInput) (*models.Transaction, error) {
	if actor.UserID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	name := strings.TrimSpace(in.ProductName)
	if err := validation.ValidateProductName(name); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	money, err := valueobject.NewPositiveMoney(in.Amount, strings.ToUpper(strings.TrimSpace(in.Currency)))
	if err != nil {
		return nil, err
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity < 1 {
		return nil, apperror.Validation("количество должно быть не меньше 1")
	}

	now := s.now()
	t := &models.Transaction{
		ID:          uuid.New(),
		SellerID:    actor.UserID,
		ProductName: name,
		Amount:      money.Amount,
		Currency:    money.Currency,
		Quantity:    in.Quantity,
		Status:      valueobject.TransactionPending,
		ExpiresAt:   now.Add(s.opts.CheckoutTTL),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if d := strings.TrimSpace(in.ProductDescription); d != "" {
		if err := validation.ValidateLength("описание товара", d, 0, validation.MaxDescriptionLength); err != nil {
			return nil, apperror.Validation(err.Error())
		}
		t.ProductDescription = &d
	}

	created := models.TransitionEvent{
		Type:          models.EventTransactionCreated,
		TransactionID: t.ID,
		To:            string(t.Status),
		ActorID:       actor.UserID,
		ActorRole:     models.RoleSeller,
		SellerID:      t.SellerID,
		Amount:        t.Amount.StringFixed(valueobject.MoneyScale),
		OccurredAt:    now,
	}
	event, err := outboxEvent(created)
	if err != nil {
		return nil, err
	}
	if err := s.txs.Create(ctx, t, event); err != nil {
		return nil, mapRepoError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"transaction_id": t.ID,
		"seller_id":      t.SellerID,
		"amount":         t.Amount.String(),
	}).Info("payment link created")
	return t, nil
}

// Checkout - публичная информация о ссылке для страницы оплаты.
func (s *PaymentService) Checkout(ctx context.Context, id uuid.UUID) (*models.CheckoutView, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := t.CheckoutView()
	return &view, nil
}

type InitiatePaymentResult struct {
	Transaction      *models.Transaction `json:"transaction"`
	AuthorizationURL string              `json:"authorization_url"`
	Reference        string              `json:"reference"`
}

// InitiatePayment переводит ссылку в PROCESSING после успешной инициализации в шлюзе.
// При ошибке шлюза состояние транзакции не меняется.
func (s *PaymentService) InitiatePayment(ctx context.Context, actor escrow.Actor, id uuid.UUID, contact escrow.Contact) (*InitiatePaymentResult, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	reference := newPaymentReference()
	out, err := s.machine.Apply(t, escrow.Input{
		Action:           escrow.ActionInitiatePayment,
		Actor:            actor,
		Now:              s.now(),
		Contact:          &contact,
		PaymentReference: reference,
	})
	if err != nil {
		return nil, err
	}

	init, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Reference:   reference,
		Email:       strings.TrimSpace(contact.Email),
		Amount:      t.Amount,
		Currency:    t.Currency,
		CallbackURL: s.opts.CallbackURL,
		Metadata:    map[string]string{"transaction_id": t.ID.String()},
	})
	if err != nil {
		logger.Log.WithField("transaction_id", t.ID).WithError(err).Warn("инициализация платежа не удалась")
		return nil, mapGatewayError(err)
	}

	if err := s.commit(ctx, out, nil); err != nil {
		return nil, err
	}
	return &InitiatePaymentResult{
		Transaction:      out.Transaction,
		AuthorizationURL: init.AuthorizationURL,
		Reference:        reference,
	}, nil
}

// ConfirmPayment подтверждает оплату по ссылке шлюза (PROCESSING → PAID).
// Повторное подтверждение уже оплаченной ссылки - конфликт.
func (s *PaymentService) ConfirmPayment(ctx context.Context, reference string) (*models.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperror.Validation("платёжная ссылка обязательна")
	}
	t, err := s.txs.GetByPaymentReference(ctx, reference)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if t.Status != valueobject.TransactionProcessing {
		return nil, apperror.Conflict(nil, "платёж по ссылке уже обработан")
	}

	v, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	if !v.Success {
		return nil, apperror.Validation("шлюз не подтвердил платёж: " + v.Status)
	}
	if v.Reference != reference {
		return nil, apperror.Validation("шлюз подтвердил другую платёжную ссылку")
	}
	if v.Currency != "" && !strings.EqualFold(v.Currency, t.Currency) {
		return nil, apperror.Validation("валюта платежа не совпадает")
	}

	out, err := s.machine.Apply(t, escrow.Input{
		Action:           escrow.ActionConfirmPayment,
		Actor:            escrow.SystemActor(),
		Now:              s.now(),
		PaymentReference: reference,
		PaidAmount:       &v.Amount,
	})
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, out, nil); err != nil {
		return nil, err
	}
	return out.Transaction, nil
}

// HandleWebhook проверяет подпись и подтверждает оплату по событию charge.success.
// События по незнакомым ссылкам (например, пополнения) игнорируются.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !gateway.VerifySignature(s.opts.WebhookSecret, body, signature) {
		return apperror.ErrUnauthorized
	}
	var ev gateway.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return apperror.Validation("некорректное тело вебхука")
	}
	if !ev.IsChargeSuccess() {
		return nil
	}

	_, err := s.ConfirmPayment(ctx, ev.Data.Reference)
	switch {
	case err == nil:
		return nil
	case apperror.IsNotFound(err):
		logger.Log.WithField("reference", ev.Data.Reference).Info("webhook: ссылка не относится к транзакции")
		return nil
	case apperror.IsConflict(err):
		// шлюз повторяет доставку
		return nil
	}
	if apperror.IsValidation(err) {
		logger.Log.WithField("reference", ev.Data.Reference).WithError(err).Warn("webhook: платёж отклонён")
	}
	return err
}

func newPaymentReference() string {
	return "ESC-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
