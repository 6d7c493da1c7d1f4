package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/plexshare/backend/internal/models"
	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/utils"
	"gorm.io/gorm"
)

type SectionsHandler struct {
	DB *gorm.DB
}

func NewSectionsHandler(db *gorm.DB) *SectionsHandler {
	return &SectionsHandler{DB: db}
}

func (h *SectionsHandler) List(c *fiber.Ctx) error {
	var sections []models.Section
	if err := h.DB.WithContext(c.UserContext()).Order("title ASC").Find(&sections).Error; err != nil {
		return fail(c, "list_sections_failed", apperr.Persistence("list_sections", err))
	}
	return utils.Success(c, fiber.StatusOK, sections)
}
