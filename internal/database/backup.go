package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// BackupOptions configure the periodic database backup job.
type BackupOptions struct {
	StoragePath   string
	Interval      time.Duration
	RetentionDays int
}

// BackupService copies the SQLite file on a schedule. The booking data
// is the clinic's system of record; WAL checkpoints make a plain file
// copy safe enough for a daily snapshot.
type BackupService struct {
	dbPath string
	opts   BackupOptions
	logger *zerolog.Logger
}

func NewBackupService(dbPath string, opts BackupOptions, logger *zerolog.Logger) *BackupService {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	return &BackupService{dbPath: dbPath, opts: opts, logger: logger}
}

// Start runs the backup loop until the context is cancelled. The first
// backup happens immediately.
func (s *BackupService) Start(ctx context.Context) {
	s.logger.Info().Str("storage", s.opts.StoragePath).Dur("interval", s.opts.Interval).Msg("backup service started")

	if err := s.PerformBackup(); err != nil {
		s.logger.Error().Err(err).Msg("initial backup failed")
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PerformBackup(); err != nil {
				s.logger.Error().Err(err).Msg("scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup copies the database file into the storage directory
// under a timestamped name.
func (s *BackupService) PerformBackup() error {
	if err := os.MkdirAll(s.opts.StoragePath, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("clinicbook_%s.db", time.Now().Format("20060102_150405"))
	backupPath := filepath.Join(s.opts.StoragePath, name)

	source, err := os.Open(s.dbPath)
	if err != nil {
		return fmt.Errorf("open database file: %w", err)
	}
	defer source.Close()

	destination, err := os.Create(backupPath)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}

	s.logger.Info().Str("path", backupPath).Msg("backup completed")
	return nil
}

// CleanupOldBackups removes backups older than the retention window.
func (s *BackupService) CleanupOldBackups() {
	if s.opts.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(s.opts.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.opts.RetentionDays)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("deleting old backup")
			_ = os.Remove(filepath.Join(s.opts.StoragePath, file.Name()))
		}
	}
}
