package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// maxWebhookBody - предел тела вебхука.
const maxWebhookBody = 1 << 20

type Payments interface {
	CreateLink(ctx context.Context, actor escrow.Actor, in service.CreateLinkInput) (*models.Transaction, error)
	Checkout(ctx context.Context, id uuid.UUID) (*models.CheckoutView, error)
	InitiatePayment(ctx context.Context, actor escrow.Actor, id uuid.UUID, contact escrow.Contact) (*service.InitiatePaymentResult, error)
	ConfirmPayment(ctx context.Context, reference string) (*models.Transaction, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

type PaymentHandler struct {
	payments Payments
}

func NewPaymentHandler(payments Payments) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreateLink POST /api/payment-links
func (h *PaymentHandler) CreateLink(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req dto.CreatePaymentLinkRequest
	if !bindJSON(c, &req) {
		return
	}

	tx, err := h.payments.CreateLink(c.Request.Context(), actor, service.CreateLinkInput{
		ProductName:        req.ProductName,
		ProductDescription: req.ProductDescription,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Quantity:           req.Quantity,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// Checkout GET /api/pay/:id - публичная страница оплаты.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.payments.Checkout(c.Request.Context(), id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// InitiatePayment POST /api/pay/:id/initiate
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.InitiatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.payments.InitiatePayment(c.Request.Context(), actor, id, escrow.Contact{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// VerifyPayment GET /api/pay/verify?reference= - возврат покупателя со страницы шлюза.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		reference = c.Query("trxref")
	}
	if reference == "" {
		common.RespondBadRequest(c, "параметр reference обязателен")
		return
	}

	tx, err := h.payments.ConfirmPayment(c.Request.Context(), reference)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx.CheckoutView())
}

// Webhook POST /api/payments/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		common.RespondBadRequest(c, "не удалось прочитать тело запроса")
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), body, c.GetHeader(gateway.SignatureHeader)); err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.Status(http.StatusOK)
}
