package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatePaymentLinkRequest - создание платёжной ссылки продавцом.
type CreatePaymentLinkRequest struct {
	ProductName        string          `json:"product_name" binding:"required"`
	ProductDescription string          `json:"product_description"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Quantity           int             `json:"quantity"`
}

// InitiatePaymentRequest - контактные данные покупателя.
type InitiatePaymentRequest struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Address string `json:"address"`
}

type AcceptTransactionRequest struct {
	PayoutContact string `json:"payout_contact"`
}

type RejectTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ShipTransactionRequest struct {
	CourierName           string     `json:"courier_name" binding:"required"`
	TrackingNumber        string     `json:"tracking_number" binding:"required"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date"`
	Notes                 string     `json:"notes"`
}

type OpenDisputeRequest struct {
	Reason      string   `json:"reason" binding:"required"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

type MoveDisputeRequest struct {
	Status string `json:"status" binding:"required"`
}

type ResolveDisputeRequest struct {
	Winner     string `json:"winner" binding:"required,oneof=buyer seller"`
	Resolution string `json:"resolution"`
	Close      bool   `json:"close"`
}

type DisputeMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

type DisputeEvidenceRequest struct {
	URL string `json:"url" binding:"required"`
}

type InitiateTopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Email  string          `json:"email" binding:"required,email"`
}

type TopUpRequest struct {
	Reference string `json:"reference" binding:"required"`
}

type CreateWithdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method" binding:"required"`
	Destination string          `json:"destination" binding:"required"`
}

type RejectWithdrawalRequest struct {
	Reason string `json:"reason" binding:"required"`
}
