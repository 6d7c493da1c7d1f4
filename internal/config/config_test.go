package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/plexshare/backend/pkg/apperr"
)

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if val, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { os.Setenv(key, val) })
	}
	os.Unsetenv(key)
}

func TestLoad(t *testing.T) {
	t.Run("returns config with defaults when no env vars set", func(t *testing.T) {
		for _, key := range []string{"DB_DRIVER", "SERVER_PORT", "TASK_INTERVAL", "DEFAULT_EXPIRY_DAYS", "SECTION_EXPIRED", "ENABLE_ALL_TASKS", "MINIO_ENDPOINT"} {
			unsetEnv(t, key)
		}

		cfg := Load()
		if cfg == nil {
			t.Fatal("expected non-nil config")
		}
		if cfg.DB.Driver != "sqlite" {
			t.Errorf("expected DB.Driver 'sqlite', got %s", cfg.DB.Driver)
		}
		if cfg.Server.Port != "8080" {
			t.Errorf("expected Server.Port '8080', got %s", cfg.Server.Port)
		}
		if cfg.Tasks.Interval != 24*time.Hour {
			t.Errorf("expected Tasks.Interval 24h, got %v", cfg.Tasks.Interval)
		}
		if cfg.Settings.DefaultExpiryDays != 30 {
			t.Errorf("expected DefaultExpiryDays 30, got %d", cfg.Settings.DefaultExpiryDays)
		}
		if cfg.Settings.ExpiredSectionTitle != "Expired" {
			t.Errorf("expected ExpiredSectionTitle 'Expired', got %s", cfg.Settings.ExpiredSectionTitle)
		}
		if !cfg.Settings.EnableAllTasks {
			t.Error("expected EnableAllTasks to default to true")
		}
		if cfg.MinIO.Enabled() {
			t.Error("expected audit export to be disabled without MINIO_ENDPOINT")
		}
	})

	t.Run("reads environment variables", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "postgres")
		t.Setenv("DB_HOST", "db.internal")
		t.Setenv("PLEXAPI_AUTH_SERVER_BASEURL", "http://plex:32400")
		t.Setenv("PLEXAPI_AUTH_SERVER_TOKEN", "tok")
		t.Setenv("PLEX_REQUEST_TIMEOUT", "5s")
		t.Setenv("TASK_INTERVAL", "1h")
		t.Setenv("DEFAULT_EXPIRY_DAYS", "90")
		t.Setenv("ALLOW_SYNC", "true")
		t.Setenv("ENABLE_UPDATE_STATUS_TASK", "false")
		t.Setenv("MINIO_ENDPOINT", "minio:9000")

		cfg := Load()

		if cfg.DB.Driver != "postgres" || cfg.DB.Host != "db.internal" {
			t.Errorf("unexpected DB config %+v", cfg.DB)
		}
		if cfg.Plex.BaseURL != "http://plex:32400" || cfg.Plex.Token != "tok" {
			t.Errorf("unexpected Plex config %+v", cfg.Plex)
		}
		if cfg.Plex.RequestTimeout != 5*time.Second {
			t.Errorf("expected 5s timeout, got %v", cfg.Plex.RequestTimeout)
		}
		if cfg.Tasks.Interval != time.Hour {
			t.Errorf("expected 1h interval, got %v", cfg.Tasks.Interval)
		}
		if cfg.Settings.DefaultExpiryDays != 90 || !cfg.Settings.AllowSync || cfg.Settings.EnableUpdateStatusTask {
			t.Errorf("unexpected settings %+v", cfg.Settings)
		}
		if !cfg.MinIO.Enabled() {
			t.Error("expected audit export to be enabled")
		}
	})
}

func TestGetEnvHelpers(t *testing.T) {
	t.Run("int falls back on invalid value", func(t *testing.T) {
		t.Setenv("TEST_INT_BAD", "ten")
		if got := getEnvAsInt("TEST_INT_BAD", 10); got != 10 {
			t.Errorf("expected 10, got %d", got)
		}
	})

	t.Run("bool falls back on invalid value", func(t *testing.T) {
		t.Setenv("TEST_BOOL_BAD", "maybe")
		if got := getEnvAsBool("TEST_BOOL_BAD", true); !got {
			t.Error("expected true (fallback)")
		}
	})

	t.Run("duration falls back when not set", func(t *testing.T) {
		unsetEnv(t, "TEST_DUR_MISSING")
		if got := getEnvAsDuration("TEST_DUR_MISSING", 2*time.Hour); got != 2*time.Hour {
			t.Errorf("expected 2h (fallback), got %v", got)
		}
	})
}

func baseSettings() Settings {
	return Settings{
		DefaultExpiryDays:             30,
		ExpiredSectionTitle:           "Expired",
		EnableAllTasks:                true,
		EnableUpdateStatusTask:        true,
		EnableDisableExpiredUsersTask: true,
		LogLevel:                      "INFO",
	}
}

func TestSettingsStore_Apply(t *testing.T) {
	t.Run("produces a new snapshot and leaves the old one intact", func(t *testing.T) {
		store := NewSettingsStore(baseSettings())
		before := store.Current()

		days := 7
		after, err := store.Apply(SettingsUpdate{DefaultExpiryDays: &days})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if after.DefaultExpiryDays != 7 || store.Current().DefaultExpiryDays != 7 {
			t.Errorf("expected 7 days, got %d", after.DefaultExpiryDays)
		}
		if before.DefaultExpiryDays != 30 {
			t.Errorf("expected old snapshot to be unchanged, got %d", before.DefaultExpiryDays)
		}
	})

	t.Run("rejects invalid updates", func(t *testing.T) {
		store := NewSettingsStore(baseSettings())
		empty := "  "
		if _, err := store.Apply(SettingsUpdate{ExpiredSectionTitle: &empty}); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		level := "LOUD"
		if _, err := store.Apply(SettingsUpdate{LogLevel: &level}); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if store.Current().ExpiredSectionTitle != "Expired" {
			t.Error("expected rejected update to leave settings untouched")
		}
	})

	t.Run("notifies subscribers with previous and current", func(t *testing.T) {
		store := NewSettingsStore(baseSettings())
		var calls int
		var gotPrev, gotCur Settings
		unsubscribe := store.Subscribe(func(previous, current Settings) {
			calls++
			gotPrev, gotCur = previous, current
		})

		off := false
		if _, err := store.Apply(SettingsUpdate{EnableAllTasks: &off}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 || !gotPrev.EnableAllTasks || gotCur.EnableAllTasks {
			t.Errorf("unexpected notification calls=%d prev=%+v cur=%+v", calls, gotPrev, gotCur)
		}

		unsubscribe()
		if _, err := store.Apply(SettingsUpdate{EnableAllTasks: &off}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected no call after unsubscribe, got %d", calls)
		}
	})

	t.Run("replace installs a full snapshot", func(t *testing.T) {
		store := NewSettingsStore(baseSettings())
		next := baseSettings()
		next.AllowSync = true
		next.LogLevel = "debug"
		got, err := store.Replace(next)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.AllowSync || got.LogLevel != "DEBUG" {
			t.Errorf("unexpected snapshot %+v", got)
		}
	})
}
