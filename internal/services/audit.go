package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plexshare/backend/internal/models"
	"github.com/plexshare/backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	ActorOperator  = "operator"
	ActorScheduler = "scheduler"

	auditExportBatch  = 10000
	auditExportStream = "audit_logs"
)

// ObjectUploader is the slice of object storage the audit exporter needs.
type ObjectUploader interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

type AuditEntry struct {
	Actor        string
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Email        string
	Details      map[string]interface{}
	RequestID    string
}

type AuditService struct {
	DB          *gorm.DB
	Storage     ObjectUploader
	ExportBatch int

	queue    chan models.AuditLog
	wg       sync.WaitGroup
	closeMu  sync.RWMutex
	closed   bool
	exportMu sync.Mutex
}

func NewAuditService(db *gorm.DB, storage ObjectUploader, queueSize int) *AuditService {
	if queueSize <= 0 {
		queueSize = 1000
	}
	s := &AuditService{
		DB:          db,
		Storage:     storage,
		ExportBatch: auditExportBatch,
		queue:       make(chan models.AuditLog, queueSize),
	}
	s.wg.Add(1)
	go s.processQueue()
	return s
}

// LogAsync queues an entry. A full queue drops the entry with a warning
// rather than blocking the access operation that produced it.
func (s *AuditService) LogAsync(entry AuditEntry) {
	if s == nil {
		return
	}
	row := models.AuditLog{
		Actor:        entry.Actor,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Email:        entry.Email,
		Details:      entry.Details,
		RequestID:    entry.RequestID,
		CreatedAt:    time.Now().UTC(),
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- row:
	default:
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

// Close stops accepting entries and waits until queued ones are written.
func (s *AuditService) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.closeMu.Unlock()
	s.wg.Wait()
}

func (s *AuditService) processQueue() {
	defer s.wg.Done()
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
		}
	}
}

// List returns audit rows newest first, optionally narrowed to one user.
func (s *AuditService) List(ctx context.Context, resourceID *uuid.UUID, offset, limit int) ([]models.AuditLog, int64, error) {
	query := s.DB.WithContext(ctx).Model(&models.AuditLog{})
	if resourceID != nil {
		query = query.Where("resource_id = ?", *resourceID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// StartExporter periodically ships new audit rows to object storage as
// NDJSON until ctx is done.
func (s *AuditService) StartExporter(ctx context.Context, interval time.Duration) {
	if s.Storage == nil {
		logger.Info("audit_exporter_disabled", map[string]interface{}{
			"reason": "no storage client configured",
		})
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ExportOnce(ctx); err != nil {
					logger.Error("audit_export_failed", err, nil)
				}
			}
		}
	}()

	logger.Info("audit_exporter_started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// ExportOnce uploads the next batch of rows past the export mark and
// advances the mark. It returns the number of rows shipped.
func (s *AuditService) ExportOnce(ctx context.Context) (int, error) {
	if s.Storage == nil {
		return 0, nil
	}
	s.exportMu.Lock()
	defer s.exportMu.Unlock()

	db := s.DB.WithContext(ctx)

	mark := models.AuditExportMark{Stream: auditExportStream}
	err := db.First(&mark, "stream = ?", auditExportStream).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		mark.AfterAt = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
		if err := db.Create(&mark).Error; err != nil {
			return 0, fmt.Errorf("creating export mark: %w", err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("loading export mark: %w", err)
	}

	batch := s.ExportBatch
	if batch <= 0 {
		batch = auditExportBatch
	}

	var logs []models.AuditLog
	if err := db.Where("created_at > ? OR (created_at = ? AND id > ?)", mark.AfterAt, mark.AfterAt, mark.AfterID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(batch).
		Find(&logs).Error; err != nil {
		return 0, fmt.Errorf("querying audit rows: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range logs {
		if err := enc.Encode(row); err != nil {
			return 0, fmt.Errorf("encoding audit row %s: %w", row.ID, err)
		}
	}

	last := logs[len(logs)-1]
	objectName := fmt.Sprintf("audit-logs/%s/%s-%s.ndjson",
		last.CreatedAt.UTC().Format("2006/01/02"),
		last.CreatedAt.UTC().Format("15-04-05.000000"),
		last.ID,
	)

	if err := s.Storage.Upload(ctx, objectName, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("uploading %s: %w", objectName, err)
	}

	if err := db.Model(&models.AuditExportMark{}).
		Where("stream = ?", auditExportStream).
		Updates(map[string]interface{}{
			"after_at":   last.CreatedAt,
			"after_id":   last.ID,
			"shipped":    gorm.Expr("shipped + ?", len(logs)),
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return 0, fmt.Errorf("advancing export mark: %w", err)
	}

	logger.Info("audit_export_success", map[string]interface{}{
		"object_name": objectName,
		"count":       len(logs),
	})
	return len(logs), nil
}

type requestIDKey struct{}

// WithRequestID tags ctx so audit rows and log lines written while serving
// it carry the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
