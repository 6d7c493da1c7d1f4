package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/internal/services"
	"github.com/plexshare/backend/pkg/utils"
)

type SettingsHandler struct {
	Settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{Settings: settings}
}

func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	return utils.Success(c, fiber.StatusOK, h.Settings.Store.Current())
}

func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var req config.SettingsUpdate
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	applied, err := h.Settings.Update(requestContext(c), req)
	if err != nil {
		return fail(c, "update_settings_failed", err)
	}
	return utils.Outcome(c, fiber.StatusOK, "settings saved", applied)
}
