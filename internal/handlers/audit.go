package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/plexshare/backend/internal/services"
	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/utils"
)

const auditExportLimit = 10000

// ExportLister lists objects written by the audit exporter.
type ExportLister interface {
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

type AuditHandler struct {
	Audit   *services.AuditService
	Exports ExportLister
}

func NewAuditHandler(audit *services.AuditService, exports ExportLister) *AuditHandler {
	return &AuditHandler{Audit: audit, Exports: exports}
}

func (h *AuditHandler) List(c *fiber.Ctx) error {
	userID, err := optionalUserID(c)
	if err != nil {
		return fail(c, "list_audit_failed", err)
	}

	p := utils.ParsePagination(c)
	logs, total, err := h.Audit.List(c.UserContext(), userID, p.Offset, p.Limit)
	if err != nil {
		return fail(c, "list_audit_failed", apperr.Persistence("list_audit", err))
	}
	return utils.Paginated(c, logs, p.Page, p.Limit, total)
}

func (h *AuditHandler) Export(c *fiber.Ctx) error {
	format := strings.ToLower(strings.TrimSpace(c.Query("format", "csv")))
	if format != "csv" && format != "json" {
		return utils.Error(c, fiber.StatusBadRequest, "format must be csv or json")
	}

	userID, err := optionalUserID(c)
	if err != nil {
		return fail(c, "export_audit_failed", err)
	}

	logs, _, err := h.Audit.List(c.UserContext(), userID, 0, auditExportLimit)
	if err != nil {
		return fail(c, "export_audit_failed", apperr.Persistence("export_audit", err))
	}

	if format == "json" {
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-log.json"))
		return utils.Success(c, fiber.StatusOK, logs)
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-log.csv"))

	writer := csv.NewWriter(c.Response().BodyWriter())
	_ = writer.Write([]string{"Timestamp", "Actor", "Action", "Email", "Resource ID", "Request ID", "Details"})

	for _, log := range logs {
		resourceID := ""
		if log.ResourceID != nil {
			resourceID = log.ResourceID.String()
		}

		keys := make([]string, 0, len(log.Details))
		for k := range log.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, log.Details[k]))
		}

		_ = writer.Write([]string{
			log.CreatedAt.Format(time.RFC3339),
			log.Actor,
			log.Action,
			log.Email,
			resourceID,
			log.RequestID,
			strings.Join(parts, "; "),
		})
	}

	writer.Flush()
	return writer.Error()
}

// ExportedObjects lists the NDJSON objects already shipped to storage.
func (h *AuditHandler) ExportedObjects(c *fiber.Ctx) error {
	if h.Exports == nil {
		return utils.Error(c, fiber.StatusNotFound, "audit export is not configured")
	}

	names, err := h.Exports.ListObjects(c.UserContext(), "audit-logs/")
	if err != nil {
		return fail(c, "list_audit_exports_failed", apperr.External("list_audit_exports", err))
	}
	if names == nil {
		names = []string{}
	}
	return utils.Success(c, fiber.StatusOK, names)
}

func optionalUserID(c *fiber.Ctx) (*uuid.UUID, error) {
	raw := strings.TrimSpace(c.Query("userId"))
	if raw == "" {
		return nil, nil
	}
	id, err := parseUUID(raw)
	if err != nil {
		return nil, apperr.Validation("parse_user_id", "invalid user id")
	}
	return &id, nil
}
