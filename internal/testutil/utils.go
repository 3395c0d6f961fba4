package testutil

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/npezzotti/go-chatroom-realtime/internal/config"
	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/stats"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// TestRepository opens a migrated sqlite database private to the test.
func TestRepository(t *testing.T) *database.SqlGoChatRepository {
	t.Helper()

	repo, err := database.Open(config.DriverSqlite, filepath.Join(t.TempDir(), "gochat.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// TestStats returns a running stats updater that is stopped with the test.
func TestStats(t *testing.T) *stats.StatsUpdater {
	su := stats.NewStatsUpdater(http.NewServeMux())
	su.Run()
	t.Cleanup(su.Stop)
	return su
}
