package handlers

import (
	"context"
	"io"
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

type Disputes interface {
	Open(ctx context.Context, actor escrow.Actor, transactionID uuid.UUID, in escrow.OpenDisputeInput) (*models.Dispute, error)
	Get(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*service.DisputeDetail, error)
	GetByTransaction(ctx context.Context, actor escrow.Actor, transactionID uuid.UUID) (*models.Dispute, error)
	ListMine(ctx context.Context, actor escrow.Actor, limit, offset int) ([]models.Dispute, error)
	ListAll(ctx context.Context, actor escrow.Actor, status *valueobject.DisputeStatus, limit, offset int) ([]models.Dispute, error)
	Move(ctx context.Context, actor escrow.Actor, id uuid.UUID, to valueobject.DisputeStatus) (*models.Dispute, error)
	Resolve(ctx context.Context, actor escrow.Actor, id uuid.UUID, in escrow.ResolveDisputeInput) (*models.Dispute, error)
	AddMessage(ctx context.Context, actor escrow.Actor, id uuid.UUID, text string) (*models.DisputeMessage, error)
	AddEvidence(ctx context.Context, actor escrow.Actor, id uuid.UUID, url string) (*models.Dispute, error)
	UploadEvidence(ctx context.Context, actor escrow.Actor, id uuid.UUID, filename string, data []byte) (*models.Dispute, error)
	EvidenceFile(ctx context.Context, actor escrow.Actor, id uuid.UUID, name string) (string, error)
}

type DisputeHandler struct {
	disputes      Disputes
	maxUploadSize int64
}

func NewDisputeHandler(disputes Disputes, maxUploadMB int64) *DisputeHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &DisputeHandler{disputes: disputes, maxUploadSize: maxUploadMB * 1024 * 1024}
}

// Open POST /api/transactions/:id/dispute
func (h *DisputeHandler) Open(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	txID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.OpenDisputeRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.disputes.Open(c.Request.Context(), actor, txID, escrow.OpenDisputeInput{
		Reason:      req.Reason,
		Description: req.Description,
		Evidence:    req.Evidence,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, d)
}

// GetByTransaction GET /api/transactions/:id/dispute
func (h *DisputeHandler) GetByTransaction(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	txID, ok := pathID(c, "id")
	if !ok {
		return
	}

	d, err := h.disputes.GetByTransaction(c.Request.Context(), actor, txID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// Get GET /api/disputes/:id - спор вместе с перепиской.
func (h *DisputeHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.disputes.Get(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// ListMine GET /api/disputes
func (h *DisputeHandler) ListMine(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	items, err := h.disputes.ListMine(c.Request.Context(), actor, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{Items: items, Limit: limit, Offset: offset})
}

// ListAll GET /api/admin/disputes?status=
func (h *DisputeHandler) ListAll(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	var status *valueobject.DisputeStatus
	if raw := c.Query("status"); raw != "" {
		s := valueobject.DisputeStatus(raw)
		if !s.IsValid() {
			common.RespondBadRequest(c, "неизвестный статус спора")
			return
		}
		status = &s
	}

	items, err := h.disputes.ListAll(c.Request.Context(), actor, status, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{Items: items, Limit: limit, Offset: offset})
}

// Move POST /api/admin/disputes/:id/status
func (h *DisputeHandler) Move(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.MoveDisputeRequest
	if !bindJSON(c, &req) {
		return
	}
	to := valueobject.DisputeStatus(req.Status)
	if !to.IsValid() {
		common.RespondBadRequest(c, "неизвестный статус спора")
		return
	}

	d, err := h.disputes.Move(c.Request.Context(), actor, id, to)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// Resolve POST /api/admin/disputes/:id/resolve
func (h *DisputeHandler) Resolve(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.ResolveDisputeRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.disputes.Resolve(c.Request.Context(), actor, id, escrow.ResolveDisputeInput{
		Winner:     req.Winner,
		Resolution: req.Resolution,
		Close:      req.Close,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// AddMessage POST /api/disputes/:id/messages
func (h *DisputeHandler) AddMessage(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.DisputeMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.disputes.AddMessage(c.Request.Context(), actor, id, req.Message)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// AddEvidence POST /api/disputes/:id/evidence - ссылка на уже загруженный файл.
func (h *DisputeHandler) AddEvidence(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.DisputeEvidenceRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.disputes.AddEvidence(c.Request.Context(), actor, id, req.URL)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// UploadEvidence POST /api/disputes/:id/evidence/upload (multipart, поле file)
func (h *DisputeHandler) UploadEvidence(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "поле file обязательно")
		return
	}
	if file.Size == 0 {
		common.RespondBadRequest(c, "файл не может быть пустым")
		return
	}
	if file.Size > h.maxUploadSize {
		common.RespondError(c, http.StatusRequestEntityTooLarge, "файл слишком большой")
		return
	}

	src, err := file.Open()
	if err != nil {
		common.RespondBadRequest(c, "не удалось прочитать файл")
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxUploadSize))
	if err != nil {
		common.RespondBadRequest(c, "не удалось прочитать файл")
		return
	}

	d, err := h.disputes.UploadEvidence(c.Request.Context(), actor, id, file.Filename, data)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// DownloadEvidence GET /api/evidence/:id/:name - файл доказательства для участников спора.
func (h *DisputeHandler) DownloadEvidence(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	filePath, err := h.disputes.EvidenceFile(c.Request.Context(), actor, id, c.Param("name"))
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.Header("Cache-Control", "private, no-store")
	c.File(filePath)
}
