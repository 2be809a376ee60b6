package escrow

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

const (
	MaxDisputeMessageLength = 2000
	MaxEvidenceItems        = 20
)

// DefaultDisputeWindow - срок рассмотрения спора, если не задан в конфигурации.
const DefaultDisputeWindow = 72 * time.Hour

type OpenDisputeInput struct {
	Reason      string   `json:"reason"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

// DisputeOutcome объединяет переход транзакции и новое состояние спора.
// Transition пуст, если родительская транзакция не меняется.
type DisputeOutcome struct {
	Transition *Outcome
	Before     *models.Dispute
	Dispute    *models.Dispute
}

// OpenDispute открывает спор и переводит транзакцию в DISPUTED.
// existing - уже сохранённый спор по транзакции, если он есть.
func (m *Machine) OpenDispute(tx *models.Transaction, existing *models.Dispute, actor Actor, in OpenDisputeInput, now time.Time, window time.Duration) (*DisputeOutcome, error) {
	if existing != nil {
		return nil, apperror.InvalidTransition("по транзакции уже открыт спор")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperror.Validation("причина спора обязательна")
	}
	if len(in.Evidence) > MaxEvidenceItems {
		return nil, apperror.Validation("слишком много доказательств")
	}
	evidence := cleanEvidence(in.Evidence)
	for _, link := range evidence {
		if err := validation.ValidateEvidenceLink(link); err != nil {
			return nil, apperror.Validation(err.Error())
		}
	}
	if window <= 0 {
		window = DefaultDisputeWindow
	}

	transition, err := m.Apply(tx, Input{Action: ActionOpenDispute, Actor: actor, Now: now})
	if err != nil {
		return nil, err
	}
	now = transition.Transaction.UpdatedAt

	deadline := now.Add(window)
	d := &models.Dispute{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		OpenedByID:    actor.UserID,
		OpenedByRole:  actorRole(tx, actor),
		Reason:        reason,
		Description:   strings.TrimSpace(in.Description),
		Evidence:      evidence,
		Status:        valueobject.DisputeOpen,
		Deadline:      &deadline,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	transition.Event.Type = models.EventDisputeUpdated
	return &DisputeOutcome{Transition: transition, Dispute: d}, nil
}

// MoveDispute - перевод спора администратором между промежуточными статусами.
func MoveDispute(d *models.Dispute, actor Actor, to valueobject.DisputeStatus, now time.Time) (*DisputeOutcome, error) {
	if !actor.IsAdmin() {
		return nil, apperror.InvalidTransition("менять статус спора может только администратор")
	}
	if d.Status.IsTerminal() {
		return nil, apperror.InvalidTransition("спор уже закрыт")
	}
	switch to {
	case valueobject.DisputeUnderReview, valueobject.DisputeAwaitingSeller, valueobject.DisputeAwaitingBuyer:
	default:
		return nil, apperror.InvalidTransition("недопустимый статус спора: " + string(to))
	}
	if d.Status == to {
		return nil, apperror.InvalidTransition("спор уже в статусе " + string(to))
	}
	after := d.Clone()
	after.Status = to
	after.Version = d.Version + 1
	after.UpdatedAt = now
	return &DisputeOutcome{Before: d, Dispute: after}, nil
}

type ResolveDisputeInput struct {
	Winner     string `json:"winner"`
	Resolution string `json:"resolution"`
	// Close завершает спор без решения по существу (CLOSED), но победитель всё равно нужен
	Close bool `json:"close"`
}

// ResolveDispute завершает спор и выполняет терминальный переход транзакции.
func (m *Machine) ResolveDispute(tx *models.Transaction, d *models.Dispute, actor Actor, in ResolveDisputeInput, now time.Time) (*DisputeOutcome, error) {
	if !actor.IsAdmin() {
		return nil, apperror.InvalidTransition("разрешать споры может только администратор")
	}
	if d.TransactionID != tx.ID {
		return nil, apperror.Validation("спор относится к другой транзакции")
	}
	if d.Status.IsTerminal() {
		return nil, apperror.InvalidTransition("спор уже закрыт")
	}

	var action Action
	var status valueobject.DisputeStatus
	switch in.Winner {
	case models.WinnerBuyer:
		action, status = ActionResolveForBuyer, valueobject.DisputeResolvedBuyer
	case models.WinnerSeller:
		action, status = ActionResolveForSeller, valueobject.DisputeResolvedSeller
	default:
		return nil, apperror.Validation("необходимо указать победителя: buyer или seller")
	}
	if in.Close {
		status = valueobject.DisputeClosed
	}

	transition, err := m.Apply(tx, Input{Action: action, Actor: actor, Now: now})
	if err != nil {
		return nil, err
	}
	now = transition.Transaction.UpdatedAt

	after := d.Clone()
	winner := in.Winner
	after.Status = status
	after.Winner = &winner
	if r := strings.TrimSpace(in.Resolution); r != "" {
		after.Resolution = &r
	}
	resolvedBy := actor.UserID
	after.ResolvedByID = &resolvedBy
	after.ResolvedAt = &now
	after.Version = d.Version + 1
	after.UpdatedAt = now
	return &DisputeOutcome{Transition: transition, Before: d, Dispute: after}, nil
}

// NewDisputeMessage проверяет, что автор может писать в спор.
func NewDisputeMessage(tx *models.Transaction, d *models.Dispute, actor Actor, text string, now time.Time) (*models.DisputeMessage, error) {
	if d.Status.IsTerminal() {
		return nil, apperror.InvalidTransition("спор закрыт, сообщения не принимаются")
	}
	role, ok := disputeRole(tx, actor)
	if !ok {
		return nil, apperror.ErrForbidden
	}
	text = strings.TrimSpace(text)
	if err := validation.ValidateMessageContent(text, MaxDisputeMessageLength); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	return &models.DisputeMessage{
		ID:         uuid.New(),
		DisputeID:  d.ID,
		SenderID:   actor.UserID,
		SenderRole: role,
		Message:    text,
		CreatedAt:  now,
	}, nil
}

// AddEvidence добавляет ссылку на доказательство к открытому спору.
func AddEvidence(tx *models.Transaction, d *models.Dispute, actor Actor, url string, now time.Time) (*DisputeOutcome, error) {
	if d.Status.IsTerminal() {
		return nil, apperror.InvalidTransition("спор закрыт")
	}
	if _, ok := disputeRole(tx, actor); !ok {
		return nil, apperror.ErrForbidden
	}
	url = strings.TrimSpace(url)
	if err := validation.ValidateEvidenceLink(url); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if len(d.Evidence) >= MaxEvidenceItems {
		return nil, apperror.Validation("слишком много доказательств")
	}
	after := d.Clone()
	after.Evidence = append(after.Evidence, url)
	after.Version = d.Version + 1
	after.UpdatedAt = now
	return &DisputeOutcome{Before: d, Dispute: after}, nil
}

// CanViewDispute - спор видят участники транзакции и администраторы.
func CanViewDispute(tx *models.Transaction, actor Actor) bool {
	_, ok := disputeRole(tx, actor)
	return ok
}

func disputeRole(tx *models.Transaction, actor Actor) (string, bool) {
	switch {
	case actor.IsAdmin():
		return models.RoleAdmin, true
	case actor.UserID == uuid.Nil:
		return "", false
	case tx.SellerID == actor.UserID:
		return models.RoleSeller, true
	case tx.BuyerID != nil && *tx.BuyerID == actor.UserID:
		return models.RoleBuyer, true
	}
	return "", false
}

func cleanEvidence(in []string) models.StringList {
	out := make(models.StringList, 0, len(in))
	for _, e := range in {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
