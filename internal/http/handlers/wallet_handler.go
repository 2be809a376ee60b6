package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type Wallets interface {
	GetWallet(ctx context.Context, actor escrow.Actor) (*models.Wallet, error)
	ListEntries(ctx context.Context, actor escrow.Actor, limit, offset int) ([]models.WalletEntry, error)
	InitiateTopUp(ctx context.Context, actor escrow.Actor, amount decimal.Decimal, email string) (*service.TopUpInitResult, error)
	TopUp(ctx context.Context, actor escrow.Actor, reference string) (*models.Wallet, error)
}

type WalletHandler struct {
	wallets Wallets
}

func NewWalletHandler(wallets Wallets) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// GetWallet GET /api/wallet
func (h *WalletHandler) GetWallet(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	wallet, err := h.wallets.GetWallet(c.Request.Context(), actor)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// ListEntries GET /api/wallet/entries
func (h *WalletHandler) ListEntries(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	limit, offset := common.GetPagination(c)
	entries, err := h.wallets.ListEntries(c.Request.Context(), actor, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Items: entries, Limit: limit, Offset: offset})
}

// InitiateTopUp POST /api/wallet/topup/initiate - платёж пополнения в шлюзе.
func (h *WalletHandler) InitiateTopUp(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req dto.InitiateTopUpRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.wallets.InitiateTopUp(c.Request.Context(), actor, req.Amount, req.Email)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// TopUp POST /api/wallet/topup - зачисление по подтверждённой в шлюзе ссылке.
func (h *WalletHandler) TopUp(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req dto.TopUpRequest
	if !bindJSON(c, &req) {
		return
	}

	wallet, err := h.wallets.TopUp(c.Request.Context(), actor, req.Reference)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}
