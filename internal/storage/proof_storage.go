package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// Чек об оплате принимается как изображение или PDF.
var allowedProofMIME = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// ProofStorage хранит файлы чеков об оплате на диске. Путь файла
// попадает в payment_proofs, сами байты в БД не пишутся.
type ProofStorage struct {
	rootPath       string
	maxUploadBytes int64
}

// NewProofStorage создаёт хранилище и каталог для него.
func NewProofStorage(rootPath string, maxUploadMB int64) (*ProofStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}

	return &ProofStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}, nil
}

// SniffContentType определяет тип файла по магическим байтам и
// проверяет, что он допустим для чека. Возвращает MIME тип.
func SniffContentType(head []byte) (string, error) {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "", fmt.Errorf("storage: не удалось определить тип файла")
	}

	mime := kind.MIME.Value
	if !allowedProofMIME[mime] {
		return "", fmt.Errorf("storage: тип файла %s не подходит для чека, разрешены изображения и PDF", mime)
	}
	return mime, nil
}

// Save сохраняет файл чека и возвращает относительный путь и размер.
func (s *ProofStorage) Save(ctx context.Context, paymentID uuid.UUID, originalName string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	safeName := sanitizeFilename(originalName)
	fileName := fmt.Sprintf("%d%s", time.Now().UnixNano(), filepath.Ext(safeName))

	paymentDir := filepath.Join(s.rootPath, paymentID.String())
	if err := os.MkdirAll(paymentDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать каталог платежа: %w", err)
	}

	targetPath := filepath.Join(paymentDir, fileName)
	tempPath := targetPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	defer f.Close()

	limitedReader := io.LimitedReader{R: r, N: s.maxUploadBytes + 1}
	written, err := io.Copy(f, &limitedReader)
	if err != nil {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}

	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: размер файла превышает лимит %d байт", s.maxUploadBytes)
	}

	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	relative := filepath.Join(paymentID.String(), fileName)
	return filepath.ToSlash(relative), written, nil
}

// Delete удаляет файл чека из хранилища.
func (s *ProofStorage) Delete(ctx context.Context, relativePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(s.rootPath, relativePath)
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
	if name == "" {
		name = "proof"
	}
	return name
}
