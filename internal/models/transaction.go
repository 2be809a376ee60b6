package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// Transaction описывает одну покупку через escrow.
type Transaction struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	SellerID           uuid.UUID  `db:"seller_id" json:"seller_id"`
	BuyerID            *uuid.UUID `db:"buyer_id" json:"buyer_id,omitempty"`
	BuyerName          *string    `db:"buyer_name" json:"buyer_name,omitempty"`
	BuyerPhone         *string    `db:"buyer_phone" json:"buyer_phone,omitempty"`
	BuyerEmail         *string    `db:"buyer_email" json:"buyer_email,omitempty"`
	BuyerAddress       *string    `db:"buyer_address" json:"buyer_address,omitempty"`
	ProductName        string     `db:"product_name" json:"product_name"`
	ProductDescription *string    `db:"product_description" json:"product_description,omitempty"`

	Amount       decimal.Decimal  `db:"amount" json:"amount"`
	Currency     string           `db:"currency" json:"currency"`
	Quantity     int              `db:"quantity" json:"quantity"`
	PlatformFee  *decimal.Decimal `db:"platform_fee" json:"platform_fee,omitempty"`
	SellerPayout *decimal.Decimal `db:"seller_payout" json:"seller_payout,omitempty"`

	Status           valueobject.TransactionStatus `db:"status" json:"status"`
	PaymentReference *string                       `db:"payment_reference" json:"payment_reference,omitempty"`
	ExpiresAt        time.Time                     `db:"expires_at" json:"expires_at"`

	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	AcceptedAt  *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	ShippedAt   *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`
	RejectedAt  *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`

	RejectionReason *string `db:"rejection_reason" json:"rejection_reason,omitempty"`
	PayoutContact   *string `db:"payout_contact" json:"payout_contact,omitempty"`

	CourierName           *string    `db:"courier_name" json:"courier_name,omitempty"`
	TrackingNumber        *string    `db:"tracking_number" json:"tracking_number,omitempty"`
	EstimatedDeliveryDate *time.Time `db:"estimated_delivery_date" json:"estimated_delivery_date,omitempty"`
	ShippingNotes         *string    `db:"shipping_notes" json:"shipping_notes,omitempty"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Clone возвращает независимую копию: указатели на время и строки не разделяются.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.BuyerID = cloneUUID(t.BuyerID)
	c.BuyerName = cloneString(t.BuyerName)
	c.BuyerPhone = cloneString(t.BuyerPhone)
	c.BuyerEmail = cloneString(t.BuyerEmail)
	c.BuyerAddress = cloneString(t.BuyerAddress)
	c.ProductDescription = cloneString(t.ProductDescription)
	c.PlatformFee = cloneDecimal(t.PlatformFee)
	c.SellerPayout = cloneDecimal(t.SellerPayout)
	c.PaymentReference = cloneString(t.PaymentReference)
	c.PaidAt = cloneTime(t.PaidAt)
	c.AcceptedAt = cloneTime(t.AcceptedAt)
	c.ShippedAt = cloneTime(t.ShippedAt)
	c.DeliveredAt = cloneTime(t.DeliveredAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.CancelledAt = cloneTime(t.CancelledAt)
	c.RefundedAt = cloneTime(t.RefundedAt)
	c.RejectedAt = cloneTime(t.RejectedAt)
	c.RejectionReason = cloneString(t.RejectionReason)
	c.PayoutContact = cloneString(t.PayoutContact)
	c.CourierName = cloneString(t.CourierName)
	c.TrackingNumber = cloneString(t.TrackingNumber)
	c.EstimatedDeliveryDate = cloneTime(t.EstimatedDeliveryDate)
	c.ShippingNotes = cloneString(t.ShippingNotes)
	return &c
}

// IsParticipant проверяет, является ли пользователь продавцом или покупателем.
func (t *Transaction) IsParticipant(userID uuid.UUID) bool {
	if t.SellerID == userID {
		return true
	}
	return t.BuyerID != nil && *t.BuyerID == userID
}

// TerminalTimestamps считает выставленные терминальные отметки времени.
func (t *Transaction) TerminalTimestamps() int {
	n := 0
	for _, ts := range []*time.Time{t.CompletedAt, t.CancelledAt, t.RefundedAt} {
		if ts != nil {
			n++
		}
	}
	return n
}

// CheckoutView - публичное представление платёжной ссылки.
type CheckoutView struct {
	ID                 uuid.UUID                     `json:"id"`
	SellerID           uuid.UUID                     `json:"seller_id"`
	ProductName        string                        `json:"product_name"`
	ProductDescription *string                       `json:"product_description,omitempty"`
	Amount             decimal.Decimal               `json:"amount"`
	Currency           string                        `json:"currency"`
	Quantity           int                           `json:"quantity"`
	Status             valueobject.TransactionStatus `json:"status"`
	ExpiresAt          time.Time                     `json:"expires_at"`
}

func (t *Transaction) CheckoutView() CheckoutView {
	return CheckoutView{
		ID:                 t.ID,
		SellerID:           t.SellerID,
		ProductName:        t.ProductName,
		ProductDescription: t.ProductDescription,
		Amount:             t.Amount,
		Currency:           t.Currency,
		Quantity:           t.Quantity,
		Status:             t.Status,
		ExpiresAt:          t.ExpiresAt,
	}
}

// TransactionFilter задаёт выборку списка транзакций участника.
type TransactionFilter struct {
	UserID uuid.UUID
	Role   string
	Status *valueobject.TransactionStatus
	Limit  int
	Offset int
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
