package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/plexshare/backend/internal/services"
	"github.com/plexshare/backend/pkg/utils"
)

type ImportsHandler struct {
	Imports *services.ImportService
}

func NewImportsHandler(imports *services.ImportService) *ImportsHandler {
	return &ImportsHandler{Imports: imports}
}

func (h *ImportsHandler) Status(c *fiber.Ctx) error {
	return utils.Success(c, fiber.StatusOK, h.Imports.Status())
}

func (h *ImportsHandler) StartUsers(c *fiber.Ctx) error {
	plan, err := h.Imports.StartUserImport(requestContext(c))
	if err != nil {
		return fail(c, "user_import_failed", err)
	}
	message := fmt.Sprintf("%d new users, %d users to update", len(plan.NewUsers), len(plan.UsersNeedingUpdate))
	return utils.Outcome(c, fiber.StatusOK, message, plan)
}

func (h *ImportsHandler) CommitUsers(c *fiber.Ctx) error {
	result, err := h.Imports.CommitUserImport(requestContext(c))
	if err != nil {
		return fail(c, "user_import_commit_failed", err)
	}
	message := fmt.Sprintf("imported %d users, updated %d", result.Created, result.Updated)
	return utils.Outcome(c, fiber.StatusOK, message, result)
}

func (h *ImportsHandler) StartSections(c *fiber.Ctx) error {
	plan, err := h.Imports.StartSectionImport(requestContext(c))
	if err != nil {
		return fail(c, "section_import_failed", err)
	}
	message := fmt.Sprintf("%d new sections", len(plan.NewSections))
	return utils.Outcome(c, fiber.StatusOK, message, plan)
}

func (h *ImportsHandler) CommitSections(c *fiber.Ctx) error {
	created, err := h.Imports.CommitSectionImport(requestContext(c))
	if err != nil {
		return fail(c, "section_import_commit_failed", err)
	}
	return utils.Outcome(c, fiber.StatusOK, fmt.Sprintf("imported %d sections", created), fiber.Map{"created": created})
}
