package services

import (
	"io"
	"testing"
	"time"

	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/internal/database"
	"github.com/plexshare/backend/internal/models"
	"github.com/plexshare/backend/internal/plex/plextest"
	"github.com/plexshare/backend/pkg/expiry"
	"github.com/plexshare/backend/pkg/logger"
	"gorm.io/gorm"
)

var testToday = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func fixedNow() time.Time {
	return testToday.Add(9 * time.Hour)
}

func defaultTestSettings() config.Settings {
	return config.Settings{
		DefaultExpiryDays:             10,
		ExpiredSectionTitle:           "Expired",
		AllowSync:                     true,
		EnableAllTasks:                true,
		EnableUpdateStatusTask:        true,
		EnableDisableExpiredUsersTask: true,
		LogLevel:                      "INFO",
	}
}

type testEnv struct {
	DB       *gorm.DB
	Dir      *plextest.Directory
	Settings *config.SettingsStore
	Audit    *AuditService
	Access   *AccessService
	Imports  *ImportService
	Users    *UserDirectory
	Tasks    *DailyTasks
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.InitWithWriter(io.Discard)

	db, err := database.Connect(config.DBConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupServiceDB(t)

	env := &testEnv{
		DB:       db,
		Dir:      plextest.New(),
		Settings: config.NewSettingsStore(defaultTestSettings()),
	}
	env.Audit = NewAuditService(db, nil, 100)
	t.Cleanup(env.Audit.Close)

	env.Access = NewAccessService(db, env.Dir, env.Settings, env.Audit)
	env.Imports = NewImportService(db, env.Dir, env.Settings, env.Access)
	env.Imports.Now = fixedNow
	env.Users = NewUserDirectory(db, env.Dir, env.Settings, env.Access, env.Audit)
	env.Users.Now = fixedNow
	env.Tasks = NewDailyTasks(db, env.Settings, env.Access, time.Hour)
	env.Tasks.Now = fixedNow
	return env
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func boolPtr(v bool) *bool { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func createSection(t *testing.T, db *gorm.DB, key, title string) models.Section {
	t.Helper()
	section := models.Section{Key: key, Title: title}
	if err := db.Create(&section).Error; err != nil {
		t.Fatalf("failed creating section %s: %v", key, err)
	}
	return section
}

// createUser stores a complete remote friend; mutate adjusts it first.
func createUser(t *testing.T, db *gorm.DB, email string, mutate func(u *models.User)) models.User {
	t.Helper()
	user := models.User{
		ExternalID: int64Ptr(int64(len(email))),
		Username:   strPtr(email[:1]),
		Name:       "User " + email,
		Email:      email,
		AvatarURL:  strPtr("https://plex.tv/" + email),
		ExpiryDate: date(2024, 12, 31),
		Status:     expiry.StatusActive,
	}
	if mutate != nil {
		mutate(&user)
	}
	if err := db.Omit("Sections.*").Create(&user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", email, err)
	}
	return user
}

func reloadUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	var user models.User
	if err := db.Preload("Sections").First(&user, "email = ?", email).Error; err != nil {
		t.Fatalf("failed loading user %s: %v", email, err)
	}
	return user
}

func countUsers(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.User{}).Count(&n).Error; err != nil {
		t.Fatalf("failed counting users: %v", err)
	}
	return n
}
