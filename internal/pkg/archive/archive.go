package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store 快照归档存储。上传成功返回可访问 URL。
type Store interface {
	UploadSnapshot(tenantID, snapshotID int64, data []byte) (string, error)
	Delete(objectKey string) error
}

// snapshotKey 归档对象键：snapshots/<tenant>/<snapshot>-<ts>.json
func snapshotKey(tenantID, snapshotID int64) string {
	return fmt.Sprintf("snapshots/%d/%d-%d.json", tenantID, snapshotID, time.Now().Unix())
}

// LocalStore 本地文件归档，OSS 未配置时的兜底实现
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "orgpulse-archive")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) UploadSnapshot(tenantID, snapshotID int64, data []byte) (string, error) {
	key := snapshotKey(tenantID, snapshotID)
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot archive: %w", err)
	}
	return "local://" + key, nil
}

func (s *LocalStore) Delete(objectKey string) error {
	return os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(objectKey)))
}
