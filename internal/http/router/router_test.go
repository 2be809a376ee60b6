package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// closedDisputes отказывает в доступе к любому файлу спора.
type closedDisputes struct {
	handlers.Disputes
}

func (closedDisputes) EvidenceFile(context.Context, escrow.Actor, uuid.UUID, string) (string, error) {
	return "", apperror.ErrForbidden
}

func testRouter(t *testing.T) (*gin.Engine, *service.TokenManager) {
	r, tokens, _ := testRouterWithStorage(t)
	return r, tokens
}

func testRouterWithStorage(t *testing.T) (*gin.Engine, *service.TokenManager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Env:                 "test",
		AllowedOrigins:      []string{"http://localhost:3000"},
		RateLimitLimit:      100,
		RateLimitPeriod:     time.Minute,
		EvidenceStoragePath: t.TempDir(),
	}
	tokens := service.NewTokenManager("router-secret", time.Minute)

	// сервисы не нужны: проверяются только маршрутизация и middleware
	r := SetupRouter(cfg, tokens, Handlers{
		Health:        handlers.NewHealthHandler(handlers.PingFunc(nil)),
		Payments:      handlers.NewPaymentHandler(nil),
		Transactions:  handlers.NewTransactionHandler(nil),
		Disputes:      handlers.NewDisputeHandler(closedDisputes{}, 1),
		Wallets:       handlers.NewWalletHandler(nil),
		Withdrawals:   handlers.NewWithdrawalHandler(nil),
		Notifications: handlers.NewNotificationHandler(nil),
	})
	return r, tokens, cfg.EvidenceStoragePath
}

func request(r http.Handler, method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	r, _ := testRouter(t)

	for _, path := range []string{"/api/transactions", "/api/wallet", "/api/disputes", "/api/withdrawals", "/api/notifications"} {
		assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, path, ""), path)
	}
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodPost, "/api/payment-links", ""))
}

func TestRouter_AdminRoutesRequireAdmin(t *testing.T) {
	r, tokens := testRouter(t)

	buyer, err := tokens.IssueAccess(uuid.New(), models.RoleBuyer)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, request(r, http.MethodGet, "/api/admin/disputes", buyer))
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodPost, "/api/admin/withdrawals/"+uuid.NewString()+"/complete", buyer))
}

func TestRouter_UUIDValidation(t *testing.T) {
	r, tokens := testRouter(t)

	seller, err := tokens.IssueAccess(uuid.New(), models.RoleSeller)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, request(r, http.MethodGet, "/api/pay/not-a-uuid", ""))
	assert.Equal(t, http.StatusBadRequest, request(r, http.MethodGet, "/api/transactions/42", seller))
	assert.Equal(t, http.StatusBadRequest, request(r, http.MethodGet, "/api/pay/verify", ""))
}

func TestRouter_CORSPreflight(t *testing.T) {
	r, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/transactions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_EvidenceNotServedFromDisk(t *testing.T) {
	r, tokens, root := testRouterWithStorage(t)

	disputeID := uuid.NewString()
	require.NoError(t, os.MkdirAll(filepath.Join(root, disputeID), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, disputeID, "1700000000_receipt.pdf"), []byte("%PDF-secret"), 0o644))

	stranger, err := tokens.IssueAccess(uuid.New(), models.RoleBuyer)
	require.NoError(t, err)

	// каталог хранилища не раздаётся напрямую и не листится
	assert.Equal(t, http.StatusNotFound, request(r, http.MethodGet, "/api/media/evidence/", stranger))
	assert.Equal(t, http.StatusNotFound, request(r, http.MethodGet, "/api/media/evidence/"+disputeID+"/1700000000_receipt.pdf", stranger))

	// доступ к файлу решает сервис споров
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodGet, "/api/evidence/"+disputeID+"/1700000000_receipt.pdf", stranger))
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/api/evidence/"+disputeID+"/1700000000_receipt.pdf", ""))
}
