package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/cache"
	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// EvidenceStorage сохраняет файл доказательства, возвращает его URL и отдаёт путь к нему.
type EvidenceStorage interface {
	SaveEvidence(ctx context.Context, disputeID uuid.UUID, filename string, data []byte) (string, error)
	EvidencePath(ctx context.Context, disputeID uuid.UUID, name string) (string, error)
}

type DisputeService struct {
	*transitionWriter
	disputes DisputeStore
	machine  *escrow.Machine
	storage  EvidenceStorage
	window   time.Duration
	now      func() time.Time
}

func NewDisputeService(txs TransactionStore, disputes DisputeStore, machine *escrow.Machine, notifier Notifier, c cache.Cache, storage EvidenceStorage, window time.Duration) *DisputeService {
	if window <= 0 {
		window = escrow.DefaultDisputeWindow
	}
	return &DisputeService{
		transitionWriter: newTransitionWriter(txs, notifier, c),
		disputes:         disputes,
		machine:          machine,
		storage:          storage,
		window:           window,
		now:              utcNow,
	}
}

type DisputeDetail struct {
	Dispute  *models.Dispute         `json:"dispute"`
	Messages []models.DisputeMessage `json:"messages"`
}

// Open открывает спор по транзакции. Транзакция переходит в DISPUTED
// в той же записи, что и создание спора.
func (s *DisputeService) Open(ctx context.Context, actor escrow.Actor, transactionID uuid.UUID, in escrow.OpenDisputeInput) (*models.Dispute, error) {
	t, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	existing, err := s.findByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	out, err := s.machine.OpenDispute(t, existing, actor, in, s.now(), s.window)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, out.Transition, out); err != nil {
		return nil, err
	}
	return out.Dispute, nil
}

func (s *DisputeService) Get(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*DisputeDetail, error) {
	d, _, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.disputes.ListMessages(ctx, d.ID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return &DisputeDetail{Dispute: d, Messages: messages}, nil
}

func (s *DisputeService) GetByTransaction(ctx context.Context, actor escrow.Actor, transactionID uuid.UUID) (*models.Dispute, error) {
	t, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !escrow.CanViewDispute(t, actor) {
		return nil, apperror.ErrForbidden
	}
	d, err := s.disputes.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return d, nil
}

func (s *DisputeService) ListMine(ctx context.Context, actor escrow.Actor, limit, offset int) ([]models.Dispute, error) {
	limit, offset = pageParams(limit, offset)
	items, err := s.disputes.ListByUser(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return items, nil
}

// ListAll - очередь споров для администратора.
func (s *DisputeService) ListAll(ctx context.Context, actor escrow.Actor, status *valueobject.DisputeStatus, limit, offset int) ([]models.Dispute, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	limit, offset = pageParams(limit, offset)
	items, err := s.disputes.List(ctx, status, limit, offset)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return items, nil
}

// ListOverdue возвращает споры с истёкшим сроком. Автоматически они не решаются.
func (s *DisputeService) ListOverdue(ctx context.Context, limit int) ([]models.Dispute, error) {
	items, err := s.disputes.ListOverdue(ctx, s.now(), limit)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return items, nil
}

// Move переводит спор между промежуточными статусами.
func (s *DisputeService) Move(ctx context.Context, actor escrow.Actor, id uuid.UUID, to valueobject.DisputeStatus) (*models.Dispute, error) {
	d, err := s.getDispute(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := escrow.MoveDispute(d, actor, to, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.saveDispute(ctx, actor, out, "move"); err != nil {
		return nil, err
	}
	return out.Dispute, nil
}

// Resolve завершает спор решением администратора и закрывает транзакцию.
func (s *DisputeService) Resolve(ctx context.Context, actor escrow.Actor, id uuid.UUID, in escrow.ResolveDisputeInput) (*models.Dispute, error) {
	d, err := s.getDispute(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.load(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	out, err := s.machine.ResolveDispute(t, d, actor, in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, out.Transition, out); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"dispute_id":     d.ID,
		"transaction_id": d.TransactionID,
		"winner":         in.Winner,
		"status":         out.Dispute.Status,
	}).Info("dispute resolved")
	return out.Dispute, nil
}

func (s *DisputeService) AddMessage(ctx context.Context, actor escrow.Actor, id uuid.UUID, text string) (*models.DisputeMessage, error) {
	d, err := s.getDispute(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.load(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	msg, err := escrow.NewDisputeMessage(t, d, actor, text, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.disputes.AddMessage(ctx, msg); err != nil {
		return nil, mapRepoError(err)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, disputeEvent(t, d, d, actor, msg.SenderRole, models.EventDisputeMessage, "message", msg.CreatedAt))
	}
	return msg, nil
}

// AddEvidence добавляет ссылку на доказательство.
func (s *DisputeService) AddEvidence(ctx context.Context, actor escrow.Actor, id uuid.UUID, url string) (*models.Dispute, error) {
	d, err := s.getDispute(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.load(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	out, err := escrow.AddEvidence(t, d, actor, url, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.saveDispute(ctx, actor, out, "evidence"); err != nil {
		return nil, err
	}
	return out.Dispute, nil
}

// UploadEvidence сохраняет файл в хранилище и добавляет его URL к спору.
func (s *DisputeService) UploadEvidence(ctx context.Context, actor escrow.Actor, id uuid.UUID, filename string, data []byte) (*models.Dispute, error) {
	if s.storage == nil {
		return nil, apperror.New(apperror.ErrCodeInternal, "хранилище файлов не настроено")
	}
	// права проверяем до записи файла
	if _, _, err := s.loadVisible(ctx, actor, id); err != nil {
		return nil, err
	}
	url, err := s.storage.SaveEvidence(ctx, id, filename, data)
	if err != nil {
		return nil, err
	}
	return s.AddEvidence(ctx, actor, id, url)
}

// EvidenceFile возвращает путь к загруженному файлу спора. Файл доступен тем же,
// кто видит спор, и только если он приложен к этому спору.
func (s *DisputeService) EvidenceFile(ctx context.Context, actor escrow.Actor, id uuid.UUID, name string) (string, error) {
	if s.storage == nil {
		return "", apperror.New(apperror.ErrCodeInternal, "хранилище файлов не настроено")
	}
	d, _, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return "", err
	}
	suffix := "/" + id.String() + "/" + name
	attached := false
	for _, link := range d.Evidence {
		if strings.HasPrefix(link, "/") && strings.HasSuffix(link, suffix) {
			attached = true
			break
		}
	}
	if !attached {
		return "", apperror.New(apperror.ErrCodeNotFound, "файл не найден")
	}
	return s.storage.EvidencePath(ctx, id, name)
}

func (s *DisputeService) saveDispute(ctx context.Context, actor escrow.Actor, out *escrow.DisputeOutcome, action string) error {
	t, err := s.load(ctx, out.Dispute.TransactionID)
	if err != nil {
		return err
	}
	role := models.RoleAdmin
	if !actor.IsAdmin() {
		role = models.RoleBuyer
		if t.SellerID == actor.UserID {
			role = models.RoleSeller
		}
	}
	ev := disputeEvent(t, out.Before, out.Dispute, actor, role, models.EventDisputeUpdated, action, out.Dispute.UpdatedAt)
	event, err := outboxEvent(ev)
	if err != nil {
		return err
	}
	if err := s.disputes.Update(ctx, out.Before, out.Dispute, event); err != nil {
		return mapRepoError(err)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, ev)
	}
	return nil
}

func (s *DisputeService) getDispute(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return d, nil
}

func (s *DisputeService) loadVisible(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Dispute, *models.Transaction, error) {
	d, err := s.getDispute(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.load(ctx, d.TransactionID)
	if err != nil {
		return nil, nil, err
	}
	if !escrow.CanViewDispute(t, actor) {
		return nil, nil, apperror.ErrForbidden
	}
	return d, t, nil
}

func (s *DisputeService) findByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error) {
	d, err := s.disputes.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if apperror.IsNotFound(mapRepoError(err)) {
			return nil, nil
		}
		return nil, mapRepoError(err)
	}
	return d, nil
}

// disputeEvent - событие об изменении спора без перехода транзакции.
func disputeEvent(t *models.Transaction, before, after *models.Dispute, actor escrow.Actor, role, eventType, action string, at time.Time) models.TransitionEvent {
	return models.TransitionEvent{
		Type:          eventType,
		TransactionID: t.ID,
		Action:        action,
		From:          string(before.Status),
		To:            string(after.Status),
		ActorID:       actor.UserID,
		ActorRole:     role,
		SellerID:      t.SellerID,
		BuyerID:       t.BuyerID,
		Amount:        t.Amount.StringFixed(valueobject.MoneyScale),
		OccurredAt:    at,
	}
}
