package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type Withdrawals interface {
	Quote(amount decimal.Decimal, method string) (escrow.FeeBreakdown, error)
	CreateWithdrawal(ctx context.Context, actor escrow.Actor, req service.WithdrawalRequest) (*models.Withdrawal, error)
	GetWithdrawal(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Withdrawal, error)
	ListUserWithdrawals(ctx context.Context, actor escrow.Actor, limit, offset int) ([]models.Withdrawal, error)
	ListPending(ctx context.Context, actor escrow.Actor, limit, offset int) ([]models.Withdrawal, error)
	Complete(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Withdrawal, error)
	Reject(ctx context.Context, actor escrow.Actor, id uuid.UUID, reason string) (*models.Withdrawal, error)
}

type WithdrawalHandler struct {
	svc Withdrawals
}

func NewWithdrawalHandler(s Withdrawals) *WithdrawalHandler {
	return &WithdrawalHandler{svc: s}
}

// Quote GET /api/withdrawals/quote?amount=&method=
func (h *WithdrawalHandler) Quote(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		common.RespondBadRequest(c, "неверная сумма")
		return
	}

	quote, err := h.svc.Quote(amount, c.Query("method"))
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// CreateWithdrawal POST /api/withdrawals
func (h *WithdrawalHandler) CreateWithdrawal(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req dto.CreateWithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}

	w, err := h.svc.CreateWithdrawal(c.Request.Context(), actor, service.WithdrawalRequest{
		Amount:      req.Amount,
		Method:      req.Method,
		Destination: req.Destination,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// ListWithdrawals GET /api/withdrawals
func (h *WithdrawalHandler) ListWithdrawals(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	limit, offset := common.GetPagination(c)
	withdrawals, err := h.svc.ListUserWithdrawals(c.Request.Context(), actor, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Items: withdrawals, Limit: limit, Offset: offset})
}

// GetWithdrawal GET /api/withdrawals/:id
func (h *WithdrawalHandler) GetWithdrawal(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	w, err := h.svc.GetWithdrawal(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// ListPending GET /api/admin/withdrawals
func (h *WithdrawalHandler) ListPending(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	limit, offset := common.GetPagination(c)
	withdrawals, err := h.svc.ListPending(c.Request.Context(), actor, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Items: withdrawals, Limit: limit, Offset: offset})
}

// Complete POST /api/admin/withdrawals/:id/complete
func (h *WithdrawalHandler) Complete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	w, err := h.svc.Complete(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Reject POST /api/admin/withdrawals/:id/reject
func (h *WithdrawalHandler) Reject(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.RejectWithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}

	w, err := h.svc.Reject(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
