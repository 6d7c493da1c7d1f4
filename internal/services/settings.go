package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/internal/models"
	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingsRowName = "settings"

// SettingsService persists applied settings snapshots so operator changes
// survive a restart.
type SettingsService struct {
	DB    *gorm.DB
	Store *config.SettingsStore
	Audit *AuditService

	mu sync.Mutex
}

func NewSettingsService(db *gorm.DB, store *config.SettingsStore, audit *AuditService) *SettingsService {
	return &SettingsService{DB: db, Store: store, Audit: audit}
}

// Load installs the stored snapshot on top of the environment defaults. A
// missing row keeps the defaults.
func (s *SettingsService) Load(ctx context.Context) (config.Settings, error) {
	var row models.AppSetting
	err := s.DB.WithContext(ctx).First(&row, "name = ?", settingsRowName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.Store.Current(), nil
	}
	if err != nil {
		return s.Store.Current(), apperr.Persistence("load_settings", err)
	}

	stored := s.Store.Current()
	if err := json.Unmarshal([]byte(row.Value), &stored); err != nil {
		return s.Store.Current(), apperr.Persistence("load_settings", err)
	}
	applied, err := s.Store.Replace(stored)
	if err != nil {
		logger.Warn("stored_settings_rejected", map[string]interface{}{
			"reason": apperr.Message(err),
		})
		return applied, err
	}
	return applied, nil
}

// Update validates and persists the merged snapshot, then installs it.
// Nothing changes at runtime when the write fails.
func (s *SettingsService) Update(ctx context.Context, update config.SettingsUpdate) (config.Settings, error) {
	if update.IsEmpty() {
		return s.Store.Current(), apperr.Validation("update_settings", "no settings to change")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Store.Current().Merge(update)
	if err := next.Validate(); err != nil {
		return s.Store.Current(), err
	}

	value, err := json.Marshal(next)
	if err != nil {
		return s.Store.Current(), apperr.Persistence("update_settings", err)
	}
	row := models.AppSetting{Name: settingsRowName, Value: string(value)}
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return s.Store.Current(), apperr.Persistence("update_settings", err)
	}

	applied, err := s.Store.Replace(next)
	if err != nil {
		return applied, err
	}

	s.Audit.LogAsync(AuditEntry{
		Actor:        actorFrom(ctx),
		Action:       "settings.update",
		ResourceType: "settings",
		Details:      map[string]interface{}{"settings": string(value)},
		RequestID:    requestIDFrom(ctx),
	})
	return applied, nil
}

// ApplyLogLevel sets the process log level from a snapshot.
func ApplyLogLevel(_, current config.Settings) {
	level, ok := logger.ParseLevel(current.LogLevel)
	if !ok {
		return
	}
	logger.SetLevel(level)
}
