package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// минимальный заголовок PNG достаточен для определения типа
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

func newTestStorage(t *testing.T) *EvidenceStorage {
	t.Helper()
	s, err := NewEvidenceStorage(t.TempDir(), "/media/evidence/", 1)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(0, 42) }
	return s
}

func TestSaveEvidence_StoresByRealType(t *testing.T) {
	s := newTestStorage(t)
	disputeID := uuid.New()

	url, err := s.SaveEvidence(context.Background(), disputeID, "../../photo of box.jpg", pngHeader)
	require.NoError(t, err)

	assert.Equal(t, "/media/evidence/"+disputeID.String()+"/42_photo_of_box.png", url)
	data, err := os.ReadFile(filepath.Join(s.Root(), disputeID.String(), "42_photo_of_box.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}

func TestSaveEvidence_RejectsUnknownAndOversized(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.SaveEvidence(ctx, uuid.New(), "note.txt", []byte("just text"))
	assert.True(t, apperror.IsValidation(err))

	_, err = s.SaveEvidence(ctx, uuid.New(), "empty.png", nil)
	assert.True(t, apperror.IsValidation(err))

	big := append(append([]byte{}, pngHeader...), []byte(strings.Repeat("x", 1024*1024))...)
	_, err = s.SaveEvidence(ctx, uuid.New(), "big.png", big)
	assert.True(t, apperror.IsValidation(err))
}

func TestDelete_IgnoresMissing(t *testing.T) {
	s := newTestStorage(t)
	assert.NoError(t, s.Delete(context.Background(), "nope/file.png"))
}

func TestEvidencePath(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	disputeID := uuid.New()

	_, err := s.SaveEvidence(ctx, disputeID, "receipt.png", pngHeader)
	require.NoError(t, err)

	p, err := s.EvidencePath(ctx, disputeID, "42_receipt.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), disputeID.String(), "42_receipt.png"), p)

	// файл другого спора по этому идентификатору не отдаётся
	_, err = s.EvidencePath(ctx, uuid.New(), "42_receipt.png")
	assert.True(t, apperror.IsNotFound(err), err)

	for _, name := range []string{"", ".", "..", "../" + disputeID.String() + "/42_receipt.png", "sub/42_receipt.png"} {
		_, err = s.EvidencePath(ctx, disputeID, name)
		assert.True(t, apperror.IsNotFound(err), name)
	}
}
