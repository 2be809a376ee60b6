package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// Стороны, в пользу которых решается спор.
const (
	WinnerBuyer  = "buyer"
	WinnerSeller = "seller"
)

// Dispute - спор по транзакции (не более одного на транзакцию).
type Dispute struct {
	ID            uuid.UUID                 `db:"id" json:"id"`
	TransactionID uuid.UUID                 `db:"transaction_id" json:"transaction_id"`
	OpenedByID    uuid.UUID                 `db:"opened_by_id" json:"opened_by_id"`
	OpenedByRole  string                    `db:"opened_by_role" json:"opened_by_role"`
	Reason        string                    `db:"reason" json:"reason"`
	Description   string                    `db:"description" json:"description"`
	Evidence      StringList                `db:"evidence" json:"evidence"`
	Status        valueobject.DisputeStatus `db:"status" json:"status"`
	Winner        *string                   `db:"winner" json:"winner,omitempty"`
	Resolution    *string                   `db:"resolution" json:"resolution,omitempty"`
	ResolvedByID  *uuid.UUID                `db:"resolved_by_id" json:"resolved_by_id,omitempty"`
	ResolvedAt    *time.Time                `db:"resolved_at" json:"resolved_at,omitempty"`
	Deadline      *time.Time                `db:"deadline" json:"deadline,omitempty"`
	Version       int                       `db:"version" json:"version"`
	CreatedAt     time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                 `db:"updated_at" json:"updated_at"`
}

func (d *Dispute) Clone() *Dispute {
	c := *d
	c.Evidence = append(StringList(nil), d.Evidence...)
	c.Winner = cloneString(d.Winner)
	c.Resolution = cloneString(d.Resolution)
	c.ResolvedByID = cloneUUID(d.ResolvedByID)
	c.ResolvedAt = cloneTime(d.ResolvedAt)
	c.Deadline = cloneTime(d.Deadline)
	return &c
}

// IsOverdue - дедлайн прошёл, а решения нет.
func (d *Dispute) IsOverdue(now time.Time) bool {
	return !d.Status.IsTerminal() && d.Deadline != nil && now.After(*d.Deadline)
}

// DisputeMessage - сообщение в споре, после записи не изменяется.
type DisputeMessage struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DisputeID  uuid.UUID `db:"dispute_id" json:"dispute_id"`
	SenderID   uuid.UUID `db:"sender_id" json:"sender_id"`
	SenderRole string    `db:"sender_role" json:"sender_role"`
	Message    string    `db:"message" json:"message"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// StringList хранится в БД как JSON-массив.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("string list: неподдерживаемый тип %T", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	*l = out
	return nil
}
