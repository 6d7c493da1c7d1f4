package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/plexshare/backend/internal/services"
	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/utils"
)

type UsersHandler struct {
	Users *services.UserDirectory
}

func NewUsersHandler(users *services.UserDirectory) *UsersHandler {
	return &UsersHandler{Users: users}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	query := services.ListQuery{
		SortField:      strings.TrimSpace(c.Query("sort")),
		SortDescending: c.QueryBool("desc", false),
		Search:         strings.TrimSpace(c.Query("search")),
		Pagination:     p,
	}

	users, total, err := h.Users.ListFiltered(requestContext(c), query)
	if err != nil {
		return fail(c, "list_users_failed", err)
	}
	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, "get_user_failed", err)
	}

	user, err := h.Users.Get(requestContext(c), id)
	if err != nil {
		return fail(c, "get_user_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, user)
}

func (h *UsersHandler) Invite(c *fiber.Ctx) error {
	var req services.InviteRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.Users.Invite(requestContext(c), req)
	if err != nil {
		return fail(c, "invite_user_failed", err)
	}
	return utils.Outcome(c, fiber.StatusCreated, "invitation sent to "+user.Email, user)
}

func (h *UsersHandler) Uninvite(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, "uninvite_user_failed", err)
	}

	if err := h.Users.Uninvite(requestContext(c), id); err != nil {
		return fail(c, "uninvite_user_failed", err)
	}
	return utils.Outcome(c, fiber.StatusOK, "invitation cancelled", nil)
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, "delete_user_failed", err)
	}

	if err := h.Users.Delete(requestContext(c), id); err != nil {
		return fail(c, "delete_user_failed", err)
	}
	return utils.Outcome(c, fiber.StatusOK, "user deleted", nil)
}

func (h *UsersHandler) UpdateProfile(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, "update_user_failed", err)
	}

	var req services.ProfileUpdate
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.Users.UpdateProfile(requestContext(c), id, req)
	return respondPushed(c, "update_user_failed", "user updated", user, err)
}

type sectionsRequest struct {
	SectionKeys []string `json:"sectionKeys"`
}

func (h *UsersHandler) UpdateSections(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, "update_user_sections_failed", err)
	}

	var req sectionsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.Users.UpdateSections(requestContext(c), id, req.SectionKeys)
	return respondPushed(c, "update_user_sections_failed", "user sections updated", user, err)
}

// respondPushed reports an edit that was committed locally. A failed push
// still returns the committed user alongside the error.
func respondPushed(c *fiber.Ctx, action, message string, user interface{}, err error) error {
	if err == nil {
		return utils.Outcome(c, fiber.StatusOK, message, user)
	}
	if apperr.KindOf(err) != apperr.KindExternalService {
		return fail(c, action, err)
	}

	status, msg := logFailure(c, action, err)
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
		"data":    user,
	})
}
