package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformBackup(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "clinic.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite payload"), 0o644))

	logger := zerolog.Nop()
	storage := filepath.Join(dir, "backups")
	svc := NewBackupService(dbPath, BackupOptions{StoragePath: storage, RetentionDays: 7}, &logger)

	require.NoError(t, svc.PerformBackup())

	files, err := os.ReadDir(storage)
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(filepath.Join(storage, files[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "sqlite payload", string(data))
}

func TestCleanupOldBackups(t *testing.T) {
	dir := t.TempDir()
	storage := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(storage, 0o755))

	old := filepath.Join(storage, "clinicbook_20200101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	stale := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, stale, stale))

	fresh := filepath.Join(storage, "clinicbook_recent.db")
	require.NoError(t, os.WriteFile(fresh, []byte("fresh"), 0o644))

	logger := zerolog.Nop()
	svc := NewBackupService(filepath.Join(dir, "clinic.db"), BackupOptions{StoragePath: storage, RetentionDays: 14}, &logger)
	svc.CleanupOldBackups()

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "stale backup should be removed")
	_, err = os.Stat(fresh)
	assert.NoError(t, err, "recent backup should survive")
}
