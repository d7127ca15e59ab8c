package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apptchat/internal/config"
)

func TestPerformBackup(t *testing.T) {
	logger := zerolog.Nop()
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "source.db")

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	booking := newTestBooking("u1", "2026-09-10", "10:00", 60)
	require.NoError(t, db.CreateBookingWithLock(context.Background(), booking))
	require.NoError(t, db.Close())

	backupDir := filepath.Join(tempDir, "backups")
	svc := NewBackupService(dbPath, config.BackupConfig{
		Enabled:     true,
		StoragePath: backupDir,
	}, &logger)

	require.NoError(t, svc.PerformBackup())

	files, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	// The snapshot is a usable database with the data in it.
	restored, err := NewDB(filepath.Join(backupDir, files[0].Name()), &logger)
	require.NoError(t, err)
	defer restored.Close()

	got, err := restored.GetBooking(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)
}
