package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

var (
	sellerID   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	buyerID    = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	adminID    = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	strangerID = uuid.MustParse("44444444-4444-4444-4444-444444444444")

	seller   = escrow.Actor{UserID: sellerID, Role: models.RoleSeller}
	buyer    = escrow.Actor{UserID: buyerID, Role: models.RoleBuyer}
	admin    = escrow.Actor{UserID: adminID, Role: models.RoleAdmin}
	stranger = escrow.Actor{UserID: strangerID, Role: models.RoleBuyer}

	fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
)

func clock() time.Time { return fixedNow }

// memStore - хранилище в памяти с той же семантикой CAS, что и репозиторий.
type memStore struct {
	mu       sync.Mutex
	txs      map[uuid.UUID]*models.Transaction
	disputes map[uuid.UUID]*models.Dispute
	messages []models.DisputeMessage
	credits  []models.WalletCredit
	events   []models.OutboxEvent

	// beforeApply вызывается внутри ApplyTransition до проверки версии
	beforeApply func(s *memStore)
}

func newMemStore() *memStore {
	return &memStore{
		txs:      map[uuid.UUID]*models.Transaction{},
		disputes: map[uuid.UUID]*models.Dispute{},
	}
}

func (s *memStore) put(t *models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[t.ID] = t.Clone()
}

func (s *memStore) tx(id uuid.UUID) *models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[id].Clone()
}

type memTransactions struct{ *memStore }

func (s memTransactions) Create(_ context.Context, t *models.Transaction, events ...models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[t.ID] = t.Clone()
	s.events = append(s.events, events...)
	return nil
}

func (s memTransactions) GetByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	return t.Clone(), nil
}

func (s memTransactions) GetByPaymentReference(_ context.Context, reference string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txs {
		if t.PaymentReference != nil && *t.PaymentReference == reference {
			return t.Clone(), nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (s memTransactions) List(_ context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.txs {
		if t.IsParticipant(filter.UserID) {
			out = append(out, *t.Clone())
		}
	}
	return out, nil
}

func (s memTransactions) ListExpiredPending(_ context.Context, now time.Time, _ int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.txs {
		if t.Status == valueobject.TransactionPending && t.ExpiresAt.Before(now) {
			out = append(out, *t.Clone())
		}
	}
	return out, nil
}

func (s memTransactions) ApplyTransition(_ context.Context, change repository.TransitionChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeApply != nil {
		s.beforeApply(s.memStore)
	}

	current, ok := s.txs[change.Before.ID]
	if !ok || current.Status != change.Before.Status || current.Version != change.Before.Version {
		return common.ErrStaleState
	}
	if d := change.NewDispute; d != nil {
		for _, existing := range s.disputes {
			if existing.TransactionID == d.TransactionID {
				return repository.ErrDisputeExists
			}
		}
	}
	if change.DisputeAfter != nil {
		cur := s.disputes[change.DisputeBefore.ID]
		if cur == nil || cur.Version != change.DisputeBefore.Version {
			return common.ErrStaleState
		}
	}

	s.txs[change.After.ID] = change.After.Clone()
	if change.NewDispute != nil {
		s.disputes[change.NewDispute.ID] = change.NewDispute.Clone()
	}
	if change.DisputeAfter != nil {
		s.disputes[change.DisputeAfter.ID] = change.DisputeAfter.Clone()
	}
	s.credits = append(s.credits, change.Credits...)
	s.events = append(s.events, change.Events...)
	return nil
}

type memDisputes struct{ *memStore }

func (s memDisputes) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return nil, repository.ErrDisputeNotFound
	}
	return d.Clone(), nil
}

func (s memDisputes) GetByTransactionID(_ context.Context, transactionID uuid.UUID) (*models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.disputes {
		if d.TransactionID == transactionID {
			return d.Clone(), nil
		}
	}
	return nil, repository.ErrDisputeNotFound
}

func (s memDisputes) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Dispute
	for _, d := range s.disputes {
		if t := s.txs[d.TransactionID]; t != nil && t.IsParticipant(userID) {
			out = append(out, *d.Clone())
		}
	}
	return out, nil
}

func (s memDisputes) List(_ context.Context, status *valueobject.DisputeStatus, _, _ int) ([]models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Dispute
	for _, d := range s.disputes {
		if status == nil || d.Status == *status {
			out = append(out, *d.Clone())
		}
	}
	return out, nil
}

func (s memDisputes) ListOverdue(_ context.Context, now time.Time, _ int) ([]models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Dispute
	for _, d := range s.disputes {
		if d.IsOverdue(now) {
			out = append(out, *d.Clone())
		}
	}
	return out, nil
}

func (s memDisputes) Update(_ context.Context, before, after *models.Dispute, events ...models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.disputes[before.ID]
	if cur == nil || cur.Version != before.Version || cur.Status != before.Status {
		return common.ErrStaleState
	}
	s.disputes[after.ID] = after.Clone()
	s.events = append(s.events, events...)
	return nil
}

func (s memDisputes) AddMessage(_ context.Context, msg *models.DisputeMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s memDisputes) ListMessages(_ context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.DisputeMessage{}
	for _, m := range s.messages {
		if m.DisputeID == disputeID {
			out = append(out, m)
		}
	}
	return out, nil
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitializeResult), args.Error(1)
}

func (m *mockGateway) Verify(ctx context.Context, reference string) (*gateway.Verification, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Verification), args.Error(1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.TransitionEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev models.TransitionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) last() models.TransitionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

// fixture собирает сервисы поверх одного memStore.
type fixture struct {
	store    *memStore
	gw       *mockGateway
	notifier *recordingNotifier
	payments *PaymentService
	txs      *TransactionService
	disputes *DisputeService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	gw := new(mockGateway)
	notifier := &recordingNotifier{}
	machine := escrow.NewMachine(decimal.Zero)

	f := &fixture{
		store:    store,
		gw:       gw,
		notifier: notifier,
		payments: NewPaymentService(memTransactions{store}, machine, gw, notifier, nil, PaymentOptions{WebhookSecret: "whsec"}),
		txs:      NewTransactionService(memTransactions{store}, machine, notifier, nil),
		disputes: NewDisputeService(memTransactions{store}, memDisputes{store}, machine, notifier, nil, nil, 0),
	}
	f.payments.now = clock
	f.txs.now = clock
	f.disputes.now = clock
	return f
}

func (f *fixture) newLink(t *testing.T, amount string) *models.Transaction {
	t.Helper()
	tx, err := f.payments.CreateLink(context.Background(), seller, CreateLinkInput{
		ProductName: "Кроссовки",
		Amount:      decimal.RequireFromString(amount),
		Currency:    "ngn",
	})
	require.NoError(t, err)
	return tx
}

// paid проводит ссылку через оформление и подтверждение оплаты.
func (f *fixture) paid(t *testing.T, amount string) *models.Transaction {
	t.Helper()
	ctx := context.Background()
	tx := f.newLink(t, amount)

	f.gw.On("Initialize", mock.Anything, mock.Anything).
		Return(&gateway.InitializeResult{AuthorizationURL: "https://pay/x"}, nil).Once()
	res, err := f.payments.InitiatePayment(ctx, buyer, tx.ID, testContact())
	require.NoError(t, err)

	f.gw.On("Verify", mock.Anything, res.Reference).
		Return(&gateway.Verification{Reference: res.Reference, Success: true, Status: "success", Amount: decimal.RequireFromString(amount)}, nil).Once()
	paid, err := f.payments.ConfirmPayment(ctx, res.Reference)
	require.NoError(t, err)
	return paid
}

func testContact() escrow.Contact {
	return escrow.Contact{Name: "Ада", Phone: "+2348000000000", Email: "ada@example.com"}
}
