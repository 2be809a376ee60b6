package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы событий outbox
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// OutboxEvent пишется в той же транзакции БД, что и переход.
type OutboxEvent struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TransactionID uuid.UUID `db:"transaction_id" json:"transaction_id"`
	EventType     string    `db:"event_type" json:"event_type"`
	Payload       Payload   `db:"payload" json:"payload"`
	Status        string    `db:"status" json:"status"`
	RetryCount    int       `db:"retry_count" json:"retry_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// TransitionEvent - содержимое события о переходе транзакции.
type TransitionEvent struct {
	Type          string     `json:"type"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	Action        string     `json:"action"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	ActorID       uuid.UUID  `json:"actor_id"`
	ActorRole     string     `json:"actor_role"`
	SellerID      uuid.UUID  `json:"seller_id"`
	BuyerID       *uuid.UUID `json:"buyer_id,omitempty"`
	Amount        string     `json:"amount"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// Recipients - пользователи, которым доставляется уведомление.
func (e TransitionEvent) Recipients() []uuid.UUID {
	out := []uuid.UUID{e.SellerID}
	if e.BuyerID != nil && *e.BuyerID != e.SellerID {
		out = append(out, *e.BuyerID)
	}
	return out
}
