package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/plexshare/backend/internal/services"
	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/logger"
	"github.com/plexshare/backend/pkg/utils"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// requestContext carries the request id and the operator actor into the
// services so audit rows can be traced back to the HTTP request.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := services.WithRequestID(c.UserContext(), logger.GetRequestIDFromContext(c))
	return services.WithActor(ctx, services.ActorOperator)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindConflict:
		return fiber.StatusConflict
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindExternalService:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// fail renders a service error as the error envelope.
func fail(c *fiber.Ctx, action string, err error) error {
	status, message := logFailure(c, action, err)
	return utils.Error(c, status, message)
}

// logFailure logs err and returns the status and message to send. Internal
// errors keep their detail out of the response.
func logFailure(c *fiber.Ctx, action string, err error) (int, string) {
	kind := apperr.KindOf(err)
	requestID := logger.GetRequestIDFromContext(c)
	details := map[string]interface{}{
		"kind": string(kind),
		"path": c.Path(),
	}

	message := apperr.Message(err)
	switch kind {
	case apperr.KindValidation, apperr.KindConflict, apperr.KindNotFound:
		logger.WarnWithRequest(requestID, action, details)
	case apperr.KindInternal:
		logger.ErrorWithRequest(requestID, action, err, details)
		message = "internal error"
	default:
		logger.ErrorWithRequest(requestID, action, err, details)
	}
	return statusFor(kind), message
}

func pathID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("parse_id", "invalid user id")
	}
	return id, nil
}
