package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/plexshare/backend/pkg/logger"
)

func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		c.Locals("requestID", requestID)
		c.Set(fiber.HeaderXRequestID, requestID)

		err := c.Next()

		statusCode := statusOf(c, err)
		details := map[string]interface{}{
			"method":        c.Method(),
			"path":          c.Path(),
			"status_code":   statusCode,
			"latency_ms":    time.Since(start).Milliseconds(),
			"user_agent":    c.Get("User-Agent"),
			"ip":            c.IP(),
			"request_body":  logger.GetRequestBodySummary(c),
			"response_body": logger.GetResponseSizeSummary(c),
		}

		switch {
		case statusCode >= 500:
			logger.ErrorWithRequest(requestID, "http_request", err, details)
		case statusCode >= 400:
			logger.WarnWithRequest(requestID, "http_request", details)
		default:
			logger.InfoWithRequest(requestID, "http_request", details)
		}

		return err
	}
}

func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		statusCode := statusOf(c, err)
		if statusCode != fiber.StatusUnauthorized && statusCode != fiber.StatusNotFound {
			return err
		}

		reason := "not_found"
		if statusCode == fiber.StatusUnauthorized {
			reason = "access_denied"
		}
		logger.WarnWithRequest(logger.GetRequestIDFromContext(c), reason, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
			"ip":     c.IP(),
			"reason": reason,
		})

		return err
	}
}

// statusOf reports the status the error handler will send when a handler
// returned a *fiber.Error, such as an unmatched route.
func statusOf(c *fiber.Ctx, err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return c.Response().StatusCode()
}
