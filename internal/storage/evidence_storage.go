package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Разрешённые типы доказательств: изображения и PDF.
var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// EvidenceStorage - файловое хранилище доказательств по спорам.
type EvidenceStorage struct {
	rootPath       string
	publicPrefix   string
	maxUploadBytes int64
	now            func() time.Time
}

// NewEvidenceStorage создаёт каталог хранилища. publicPrefix - URL-префикс, под которым каталог раздаётся.
func NewEvidenceStorage(rootPath, publicPrefix string, maxUploadMB int64) (*EvidenceStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &EvidenceStorage{
		rootPath:       rootPath,
		publicPrefix:   strings.TrimRight(publicPrefix, "/"),
		maxUploadBytes: maxUploadMB * 1024 * 1024,
		now:            time.Now,
	}, nil
}

func (s *EvidenceStorage) Root() string {
	return s.rootPath
}

// SaveEvidence проверяет тип файла по магическим байтам и сохраняет его в каталог спора.
// Расширение берётся из реального типа, а не из имени файла.
func (s *EvidenceStorage) SaveEvidence(ctx context.Context, disputeID uuid.UUID, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", apperror.Validation("файл не может быть пустым")
	}
	if int64(len(data)) > s.maxUploadBytes {
		return "", apperror.Validation(fmt.Sprintf("размер файла превышает лимит %d байт", s.maxUploadBytes))
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", apperror.Validation("не удалось определить тип файла. Разрешены изображения и PDF")
	}
	if !allowedMimeTypes[kind.MIME.Value] {
		return "", apperror.Validation(fmt.Sprintf("неподдерживаемый тип файла (%s)", kind.MIME.Value))
	}

	base := strings.TrimSuffix(sanitizeFilename(filename), filepath.Ext(filename))
	fileName := fmt.Sprintf("%d_%s.%s", s.now().UnixNano(), base, kind.Extension)

	dir := filepath.Join(s.rootPath, disputeID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: не удалось создать каталог спора: %w", err)
	}

	target := filepath.Join(dir, fileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: ошибка записи файла: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	return path.Join(s.publicPrefix, disputeID.String(), fileName), nil
}

// EvidencePath возвращает путь к сохранённому файлу спора.
// Имя должно быть именем файла без каталогов, иначе файл считается отсутствующим.
func (s *EvidenceStorage) EvidencePath(ctx context.Context, disputeID uuid.UUID, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) || strings.HasSuffix(name, ".tmp") {
		return "", apperror.New(apperror.ErrCodeNotFound, "файл не найден")
	}
	target := filepath.Join(s.rootPath, disputeID.String(), name)
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return "", apperror.New(apperror.ErrCodeNotFound, "файл не найден")
	}
	return target, nil
}

// Delete удаляет файл по относительному пути.
func (s *EvidenceStorage) Delete(ctx context.Context, relativePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(s.rootPath, filepath.Clean("/"+relativePath))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: не удалось удалить файл: %w", err)
	}
	return nil
}

// sanitizeFilename удаляет потенциально опасные символы.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || name == "." {
		name = "evidence"
	}
	return name
}
