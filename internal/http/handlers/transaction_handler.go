package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type Transactions interface {
	Get(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*service.TransactionDetail, error)
	List(ctx context.Context, actor escrow.Actor, filter models.TransactionFilter) ([]models.Transaction, error)
	Accept(ctx context.Context, actor escrow.Actor, id uuid.UUID, payoutContact string) (*models.Transaction, error)
	Reject(ctx context.Context, actor escrow.Actor, id uuid.UUID, reason string) (*models.Transaction, error)
	Ship(ctx context.Context, actor escrow.Actor, id uuid.UUID, shipping escrow.Shipping) (*models.Transaction, error)
	ConfirmDelivery(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Transaction, error)
	Complete(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Transaction, error)
}

// TransactionHandler обслуживает действия участников над сделкой.
type TransactionHandler struct {
	transactions Transactions
}

func NewTransactionHandler(transactions Transactions) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

// List GET /api/transactions?role=seller|buyer&status=
func (h *TransactionHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	limit, offset := common.GetPagination(c)
	filter := models.TransactionFilter{Limit: limit, Offset: offset}

	switch role := c.Query("role"); role {
	case "", models.RoleBuyer, models.RoleSeller:
		filter.Role = role
	default:
		common.RespondBadRequest(c, "role должен быть buyer или seller")
		return
	}
	if raw := c.Query("status"); raw != "" {
		status := valueobject.TransactionStatus(raw)
		if !status.IsValid() {
			common.RespondBadRequest(c, "неизвестный статус")
			return
		}
		filter.Status = &status
	}

	items, err := h.transactions.List(c.Request.Context(), actor, filter)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{Items: items, Limit: limit, Offset: offset})
}

// Get GET /api/transactions/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.transactions.Get(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// Accept POST /api/transactions/:id/accept
func (h *TransactionHandler) Accept(c *gin.Context) {
	var req dto.AcceptTransactionRequest
	// тело необязательно
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	h.act(c, func(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Transaction, error) {
		return h.transactions.Accept(ctx, actor, id, req.PayoutContact)
	})
}

// Reject POST /api/transactions/:id/reject
func (h *TransactionHandler) Reject(c *gin.Context) {
	var req dto.RejectTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	h.act(c, func(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Transaction, error) {
		return h.transactions.Reject(ctx, actor, id, req.Reason)
	})
}

// Ship POST /api/transactions/:id/ship
func (h *TransactionHandler) Ship(c *gin.Context) {
	var req dto.ShipTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	h.act(c, func(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Transaction, error) {
		return h.transactions.Ship(ctx, actor, id, escrow.Shipping{
			CourierName:           req.CourierName,
			TrackingNumber:        req.TrackingNumber,
			EstimatedDeliveryDate: req.EstimatedDeliveryDate,
			Notes:                 req.Notes,
		})
	})
}

// ConfirmDelivery POST /api/transactions/:id/confirm-delivery
func (h *TransactionHandler) ConfirmDelivery(c *gin.Context) {
	h.act(c, h.transactions.ConfirmDelivery)
}

// Complete POST /api/transactions/:id/complete
func (h *TransactionHandler) Complete(c *gin.Context) {
	h.act(c, h.transactions.Complete)
}

type transitionFunc func(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Transaction, error)

func (h *TransactionHandler) act(c *gin.Context, fn transitionFunc) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	tx, err := fn(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}
