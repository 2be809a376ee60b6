package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// WalletService - баланс, журнал и пополнение через шлюз.
type WalletService struct {
	wallets     WalletStore
	gateway     PaymentGateway
	callbackURL string
	now         func() time.Time
}

func NewWalletService(wallets WalletStore, gw PaymentGateway, callbackURL string) *WalletService {
	return &WalletService{wallets: wallets, gateway: gw, callbackURL: callbackURL, now: utcNow}
}

func (s *WalletService) GetWallet(ctx context.Context, actor escrow.Actor) (*models.Wallet, error) {
	if actor.UserID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	w, err := s.wallets.Get(ctx, actor.UserID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return w, nil
}

func (s *WalletService) ListEntries(ctx context.Context, actor escrow.Actor, limit, offset int) ([]models.WalletEntry, error) {
	limit, offset = pageParams(limit, offset)
	entries, err := s.wallets.ListEntries(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return entries, nil
}

// Пополнение начинается через InitiateTopUp: ссылка получает префикс TopUpReferencePrefix,
// а в метаданные платежа записываются назначение и владелец.
const (
	TopUpReferencePrefix = "TOP-"
	topUpPurpose         = "wallet_topup"
)

type TopUpInitResult struct {
	AuthorizationURL string          `json:"authorization_url"`
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

// InitiateTopUp создаёт платёж пополнения в шлюзе, привязанный к пользователю.
func (s *WalletService) InitiateTopUp(ctx context.Context, actor escrow.Actor, amount decimal.Decimal, email string) (*TopUpInitResult, error) {
	if actor.UserID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	money, err := valueobject.NewPositiveMoney(amount, valueobject.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	reference := newTopUpReference()
	init, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Reference:   reference,
		Email:       email,
		Amount:      money.Amount,
		Currency:    money.Currency,
		CallbackURL: s.callbackURL,
		Metadata: map[string]string{
			"purpose": topUpPurpose,
			"user_id": actor.UserID.String(),
		},
	})
	if err != nil {
		logger.Log.WithField("user_id", actor.UserID).WithError(err).Warn("инициализация пополнения не удалась")
		return nil, mapGatewayError(err)
	}
	return &TopUpInitResult{
		AuthorizationURL: init.AuthorizationURL,
		Reference:        reference,
		Amount:           money.Amount,
		Currency:         money.Currency,
	}, nil
}

// TopUp зачисляет проверенный шлюзом платёж на доступный баланс.
// Зачисляются только платежи, начатые этим же пользователем через InitiateTopUp;
// каждая ссылка зачисляется один раз.
func (s *WalletService) TopUp(ctx context.Context, actor escrow.Actor, reference string) (*models.Wallet, error) {
	if actor.UserID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperror.Validation("платёжная ссылка обязательна")
	}
	if !isTopUpReference(reference) {
		return nil, apperror.Validation("ссылка не относится к пополнению кошелька")
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
	if v.Metadata["purpose"] != topUpPurpose || v.Metadata["user_id"] != actor.UserID.String() {
		logger.Log.WithFields(logrus.Fields{
			"user_id":   actor.UserID,
			"reference": reference,
		}).Warn("попытка зачислить чужой платёж")
		return nil, apperror.ErrForbidden
	}
	if v.Currency != "" && !strings.EqualFold(v.Currency, valueobject.DefaultCurrency) {
		return nil, apperror.Validation("валюта пополнения не поддерживается")
	}
	amount := valueobject.Round(v.Amount)
	if !amount.IsPositive() {
		return nil, apperror.Validation("сумма пополнения должна быть положительной")
	}

	ref := "topup:" + reference
	w, err := s.wallets.Credit(ctx, models.WalletCredit{
		UserID:    actor.UserID,
		Kind:      models.EntryTopup,
		Available: amount,
		Amount:    amount,
		Reference: &ref,
	}, s.now())
	if err != nil {
		return nil, mapRepoError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":   actor.UserID,
		"reference": reference,
		"amount":    amount.String(),
	}).Info("wallet top-up")
	return w, nil
}

// isTopUpReference допускает только ссылки вида TOP-<hex>, которые выдаёт newTopUpReference.
func isTopUpReference(reference string) bool {
	rest := strings.TrimPrefix(reference, TopUpReferencePrefix)
	if rest == reference || rest == "" || len(rest) > 64 {
		return false
	}
	for _, r := range rest {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

func newTopUpReference() string {
	return TopUpReferencePrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
