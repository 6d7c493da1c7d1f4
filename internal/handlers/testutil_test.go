package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/internal/database"
	"github.com/plexshare/backend/internal/middleware"
	"github.com/plexshare/backend/internal/models"
	"github.com/plexshare/backend/internal/plex/plextest"
	"github.com/plexshare/backend/internal/services"
	"github.com/plexshare/backend/pkg/expiry"
	"github.com/plexshare/backend/pkg/logger"
	"gorm.io/gorm"
)

const testOperatorToken = "operator-secret"

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	dir   *plextest.Directory
	audit *services.AuditService
}

type fakeExports struct {
	names []string
}

func (f *fakeExports) ListObjects(_ context.Context, _ string) ([]string, error) {
	return f.names, nil
}

func setupTestEnv(t *testing.T) *testEnv {
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

	store := config.NewSettingsStore(config.Settings{
		DefaultExpiryDays:             30,
		ExpiredSectionTitle:           "Expired",
		AllowSync:                     false,
		EnableAllTasks:                true,
		EnableUpdateStatusTask:        true,
		EnableDisableExpiredUsersTask: true,
		LogLevel:                      "INFO",
	})
	dir := plextest.New()

	auditService := services.NewAuditService(db, nil, 100)
	t.Cleanup(auditService.Close)

	accessService := services.NewAccessService(db, dir, store, auditService)
	importService := services.NewImportService(db, dir, store, accessService)
	userDirectory := services.NewUserDirectory(db, dir, store, accessService, auditService)
	settingsService := services.NewSettingsService(db, store, auditService)
	tasks := services.NewDailyTasks(db, store, accessService, time.Hour)

	app := fiber.New()
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	Register(app, Handlers{
		Users:    NewUsersHandler(userDirectory),
		Sections: NewSectionsHandler(db),
		Imports:  NewImportsHandler(importService),
		Settings: NewSettingsHandler(settingsService),
		Tasks:    NewTasksHandler(tasks),
		Audit:    NewAuditHandler(auditService, &fakeExports{names: []string{"audit-logs/2024/06/01/09-00-00.000.ndjson"}}),
	}, middleware.RequireOperator(testOperatorToken))

	return &testEnv{app: app, db: db, dir: dir, audit: auditService}
}

func operatorHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testOperatorToken}
}

func createTestSection(t *testing.T, db *gorm.DB, key, title string) models.Section {
	t.Helper()
	section := models.Section{Key: key, Title: title}
	if err := db.Create(&section).Error; err != nil {
		t.Fatalf("failed creating section: %v", err)
	}
	return section
}

func createTestUser(t *testing.T, db *gorm.DB, email string, externalID int64) models.User {
	t.Helper()
	username := email[:1]
	user := models.User{
		ExternalID: &externalID,
		Username:   &username,
		Name:       "Test User",
		Email:      email,
		ExpiryDate: expiry.Today().AddDate(0, 1, 0),
		Status:     expiry.StatusActive,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}
	return user
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
