package escrow

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

type Action string

const (
	ActionInitiatePayment  Action = "initiate_payment"
	ActionConfirmPayment   Action = "confirm_payment"
	ActionAccept           Action = "accept"
	ActionReject           Action = "reject"
	ActionShip             Action = "ship"
	ActionConfirmDelivery  Action = "confirm_delivery"
	ActionComplete         Action = "complete"
	ActionOpenDispute      Action = "open_dispute"
	ActionResolveForBuyer  Action = "resolve_for_buyer"
	ActionResolveForSeller Action = "resolve_for_seller"
	ActionExpire           Action = "expire"
)

// Actor - кто выполняет действие. Роль покупателя или продавца определяется
// по транзакции, а не по токену; Role важна только для admin и system.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func SystemActor() Actor {
	return Actor{Role: models.RoleSystem}
}

func (a Actor) IsAdmin() bool  { return a.Role == models.RoleAdmin }
func (a Actor) IsSystem() bool { return a.Role == models.RoleSystem }

type party int

const (
	partyBuyer party = iota
	partySeller
	partyAdmin
	partySystem
)

type rule struct {
	From   valueobject.TransactionStatus
	Action Action
	Actors []party
	To     valueobject.TransactionStatus
}

// transitions - единственный источник допустимых переходов.
var transitions = []rule{
	{valueobject.TransactionPending, ActionInitiatePayment, []party{partyBuyer}, valueobject.TransactionProcessing},
	{valueobject.TransactionProcessing, ActionConfirmPayment, []party{partySystem}, valueobject.TransactionPaid},
	{valueobject.TransactionPaid, ActionAccept, []party{partySeller}, valueobject.TransactionAccepted},
	{valueobject.TransactionAccepted, ActionReject, []party{partySeller}, valueobject.TransactionCancelled},
	{valueobject.TransactionAccepted, ActionShip, []party{partySeller}, valueobject.TransactionShipped},
	{valueobject.TransactionShipped, ActionConfirmDelivery, []party{partyBuyer}, valueobject.TransactionDelivered},
	{valueobject.TransactionDelivered, ActionComplete, []party{partyBuyer}, valueobject.TransactionCompleted},
	{valueobject.TransactionPaid, ActionOpenDispute, []party{partyBuyer, partySeller}, valueobject.TransactionDisputed},
	{valueobject.TransactionAccepted, ActionOpenDispute, []party{partyBuyer, partySeller}, valueobject.TransactionDisputed},
	{valueobject.TransactionShipped, ActionOpenDispute, []party{partyBuyer, partySeller}, valueobject.TransactionDisputed},
	{valueobject.TransactionDelivered, ActionOpenDispute, []party{partyBuyer, partySeller}, valueobject.TransactionDisputed},
	{valueobject.TransactionDisputed, ActionResolveForBuyer, []party{partyAdmin}, valueobject.TransactionRefunded},
	{valueobject.TransactionDisputed, ActionResolveForSeller, []party{partyAdmin}, valueobject.TransactionCompleted},
	{valueobject.TransactionPending, ActionExpire, []party{partySystem}, valueobject.TransactionExpired},
}

func findRule(from valueobject.TransactionStatus, action Action) (rule, bool) {
	for _, r := range transitions {
		if r.From == from && r.Action == action {
			return r, true
		}
	}
	return rule{}, false
}

// Contact - данные покупателя, собранные при оформлении.
type Contact struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

func (c Contact) Validate() error {
	if err := validation.ValidateNonEmpty("имя покупателя", c.Name); err != nil {
		return apperror.Validation(err.Error())
	}
	if err := validation.ValidateLength("имя покупателя", strings.TrimSpace(c.Name), 0, validation.MaxContactNameLength); err != nil {
		return apperror.Validation(err.Error())
	}
	if err := validation.ValidatePhone(c.Phone); err != nil {
		return apperror.Validation(err.Error())
	}
	if err := validation.ValidateEmail(c.Email); err != nil {
		return apperror.Validation(err.Error())
	}
	if err := validation.ValidateLength("адрес", strings.TrimSpace(c.Address), 0, validation.MaxAddressLength); err != nil {
		return apperror.Validation(err.Error())
	}
	return nil
}

type Shipping struct {
	CourierName           string     `json:"courier_name"`
	TrackingNumber        string     `json:"tracking_number"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date"`
	Notes                 string     `json:"notes"`
}

// Input - параметры действия. Используются только поля, нужные конкретному действию.
type Input struct {
	Action Action
	Actor  Actor
	Now    time.Time

	Contact          *Contact
	PaymentReference string
	PaidAmount       *decimal.Decimal
	PayoutContact    string
	Shipping         *Shipping
	Reason           string
}

// Outcome - результат принятого перехода. Исходная транзакция не изменяется.
type Outcome struct {
	Before      *models.Transaction
	Transaction *models.Transaction
	Action      Action
	From        valueobject.TransactionStatus
	To          valueobject.TransactionStatus
	Credits     []models.WalletCredit
	Event       models.TransitionEvent
}

// Machine применяет переходы транзакции по таблице transitions.
type Machine struct {
	saleFeePercent decimal.Decimal
}

func NewMachine(saleFeePercent decimal.Decimal) *Machine {
	if saleFeePercent.IsZero() {
		saleFeePercent = SalePlatformFeePercent
	}
	return &Machine{saleFeePercent: saleFeePercent}
}

// Apply проверяет действие и возвращает новое состояние транзакции вместе
// с изменениями кошельков. Ошибки: InvalidTransition, Validation, InsufficientFunds.
func (m *Machine) Apply(tx *models.Transaction, in Input) (*Outcome, error) {
	if tx == nil {
		return nil, apperror.ErrTransactionNotFound
	}
	r, ok := findRule(tx.Status, in.Action)
	if !ok {
		return nil, apperror.InvalidTransition("действие " + string(in.Action) + " недопустимо в статусе " + string(tx.Status))
	}
	if !authorized(tx, in.Actor, r.Actors, in.Action) {
		return nil, apperror.InvalidTransition("пользователь не может выполнить " + string(in.Action) + " для этой транзакции")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	after := tx.Clone()
	after.Status = r.To
	after.Version = tx.Version + 1
	after.UpdatedAt = in.Now

	out := &Outcome{
		Before:      tx,
		Transaction: after,
		Action:      in.Action,
		From:        tx.Status,
		To:          r.To,
	}

	if err := m.applyEffects(after, in, out); err != nil {
		return nil, err
	}

	out.Event = models.TransitionEvent{
		Type:          models.EventTransactionTransition,
		TransactionID: after.ID,
		Action:        string(in.Action),
		From:          string(out.From),
		To:            string(out.To),
		ActorID:       in.Actor.UserID,
		ActorRole:     actorRole(after, in.Actor),
		SellerID:      after.SellerID,
		BuyerID:       after.BuyerID,
		Amount:        after.Amount.StringFixed(valueobject.MoneyScale),
		OccurredAt:    in.Now,
	}
	return out, nil
}

func (m *Machine) applyEffects(after *models.Transaction, in Input, out *Outcome) error {
	now := in.Now
	switch in.Action {
	case ActionInitiatePayment:
		if now.After(after.ExpiresAt) {
			return apperror.InvalidTransition("срок действия ссылки истёк")
		}
		if in.Contact == nil {
			return apperror.Validation("контактные данные покупателя обязательны")
		}
		if err := in.Contact.Validate(); err != nil {
			return err
		}
		if strings.TrimSpace(in.PaymentReference) == "" {
			return apperror.Validation("платёжная ссылка обязательна")
		}
		buyerID := in.Actor.UserID
		after.BuyerID = &buyerID
		after.BuyerName = strPtr(strings.TrimSpace(in.Contact.Name))
		after.BuyerPhone = strPtr(strings.TrimSpace(in.Contact.Phone))
		after.BuyerEmail = strPtr(strings.TrimSpace(in.Contact.Email))
		if addr := strings.TrimSpace(in.Contact.Address); addr != "" {
			after.BuyerAddress = &addr
		}
		ref := in.PaymentReference
		after.PaymentReference = &ref

	case ActionConfirmPayment:
		if after.BuyerID == nil {
			return apperror.InvalidTransition("покупатель не определён")
		}
		if after.PaymentReference == nil || *after.PaymentReference != in.PaymentReference {
			return apperror.Validation("платёжная ссылка не совпадает")
		}
		if in.PaidAmount == nil || !in.PaidAmount.Equal(after.Amount) {
			return apperror.Validation("сумма платежа не совпадает с суммой транзакции")
		}
		if err := setOnce(&after.PaidAt, now); err != nil {
			return err
		}

	case ActionAccept:
		if err := setOnce(&after.AcceptedAt, now); err != nil {
			return err
		}
		if c := strings.TrimSpace(in.PayoutContact); c != "" {
			after.PayoutContact = &c
		}

	case ActionReject:
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			return apperror.Validation("причина отказа обязательна")
		}
		if err := setOnce(&after.RejectedAt, now); err != nil {
			return err
		}
		if err := setTerminal(after, &after.CancelledAt, now); err != nil {
			return err
		}
		after.RejectionReason = &reason
		if after.BuyerID != nil {
			out.Credits = append(out.Credits, refundCredit(after))
		}

	case ActionShip:
		if in.Shipping == nil || strings.TrimSpace(in.Shipping.CourierName) == "" || strings.TrimSpace(in.Shipping.TrackingNumber) == "" {
			return apperror.Validation("служба доставки и трек-номер обязательны")
		}
		if err := setOnce(&after.ShippedAt, now); err != nil {
			return err
		}
		after.CourierName = strPtr(strings.TrimSpace(in.Shipping.CourierName))
		after.TrackingNumber = strPtr(strings.TrimSpace(in.Shipping.TrackingNumber))
		if in.Shipping.EstimatedDeliveryDate != nil {
			d := *in.Shipping.EstimatedDeliveryDate
			after.EstimatedDeliveryDate = &d
		}
		if n := strings.TrimSpace(in.Shipping.Notes); n != "" {
			after.ShippingNotes = &n
		}

	case ActionConfirmDelivery:
		if err := setOnce(&after.DeliveredAt, now); err != nil {
			return err
		}

	case ActionComplete, ActionResolveForSeller:
		credits, err := m.payout(after, now)
		if err != nil {
			return err
		}
		out.Credits = append(out.Credits, credits...)

	case ActionResolveForBuyer:
		if err := setTerminal(after, &after.RefundedAt, now); err != nil {
			return err
		}
		if after.BuyerID != nil {
			out.Credits = append(out.Credits, refundCredit(after))
		}

	case ActionOpenDispute:
		// запись спора формируется в OpenDispute

	case ActionExpire:
		if !now.After(after.ExpiresAt) {
			return apperror.InvalidTransition("срок оплаты ещё не истёк")
		}
	}
	return nil
}

// payout - единственное место, где вычисляется выплата продавцу.
func (m *Machine) payout(after *models.Transaction, now time.Time) ([]models.WalletCredit, error) {
	if after.SellerPayout != nil || after.PlatformFee != nil {
		return nil, apperror.InvalidTransition("выплата продавцу уже рассчитана")
	}
	fees, err := ComputeFees(after.Amount, SaleSchedule(m.saleFeePercent))
	if err != nil {
		return nil, err
	}
	if err := setTerminal(after, &after.CompletedAt, now); err != nil {
		return nil, err
	}
	platformFee := fees.PlatformFee
	payout := after.Amount.Sub(platformFee)
	after.PlatformFee = &platformFee
	after.SellerPayout = &payout

	txID := after.ID
	credits := []models.WalletCredit{{
		UserID:        after.SellerID,
		TransactionID: &txID,
		Kind:          models.EntrySalePayout,
		Available:     payout,
		Earned:        payout,
		Amount:        payout,
	}}
	if after.BuyerID != nil {
		credits = append(credits, models.WalletCredit{
			UserID:        *after.BuyerID,
			TransactionID: &txID,
			Kind:          models.EntryPurchase,
			Spent:         after.Amount,
			Amount:        after.Amount,
		})
	}
	return credits, nil
}

// AllowedActions - действия, доступные пользователю в текущем статусе.
// Системные действия не возвращаются.
func AllowedActions(tx *models.Transaction, actor Actor) []Action {
	var out []Action
	for _, r := range transitions {
		if r.From != tx.Status || onlySystem(r.Actors) {
			continue
		}
		if authorized(tx, actor, r.Actors, r.Action) {
			out = append(out, r.Action)
		}
	}
	return out
}

// CanTransition сообщает, есть ли в таблице переход из статуса по действию.
func CanTransition(from valueobject.TransactionStatus, action Action) bool {
	_, ok := findRule(from, action)
	return ok
}

func authorized(tx *models.Transaction, actor Actor, allowed []party, action Action) bool {
	for _, p := range allowed {
		switch p {
		case partySystem:
			if actor.IsSystem() {
				return true
			}
		case partyAdmin:
			if actor.IsAdmin() {
				return true
			}
		case partySeller:
			if !actor.IsSystem() && actor.UserID != uuid.Nil && tx.SellerID == actor.UserID {
				return true
			}
		case partyBuyer:
			if actor.IsSystem() || actor.UserID == uuid.Nil {
				continue
			}
			if tx.BuyerID != nil && *tx.BuyerID == actor.UserID {
				return true
			}
			// анонимная ссылка: покупателем становится тот, кто начал оплату
			if tx.BuyerID == nil && action == ActionInitiatePayment && tx.SellerID != actor.UserID {
				return true
			}
		}
	}
	return false
}

func onlySystem(parties []party) bool {
	return len(parties) == 1 && parties[0] == partySystem
}

func actorRole(tx *models.Transaction, actor Actor) string {
	switch {
	case actor.IsSystem():
		return models.RoleSystem
	case actor.IsAdmin():
		return models.RoleAdmin
	case tx.SellerID == actor.UserID:
		return models.RoleSeller
	default:
		return models.RoleBuyer
	}
}

func refundCredit(tx *models.Transaction) models.WalletCredit {
	txID := tx.ID
	return models.WalletCredit{
		UserID:        *tx.BuyerID,
		TransactionID: &txID,
		Kind:          models.EntryRefund,
		Available:     tx.Amount,
		Amount:        tx.Amount,
	}
}

func setOnce(field **time.Time, now time.Time) error {
	if *field != nil {
		return apperror.InvalidTransition("отметка времени уже установлена")
	}
	t := now
	*field = &t
	return nil
}

// setTerminal ставит терминальную отметку, только если другой ещё нет.
func setTerminal(tx *models.Transaction, field **time.Time, now time.Time) error {
	if tx.TerminalTimestamps() > 0 {
		return apperror.InvalidTransition("транзакция уже завершена")
	}
	return setOnce(field, now)
}

func strPtr(s string) *string {
	return &s
}
