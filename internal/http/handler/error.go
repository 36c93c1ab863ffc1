package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"meshapi/internal/http/middleware"
	"meshapi/internal/service"
)

// errorPayload defines the standardized error response body. Error carries the
// client-facing message; Code is the machine-readable variant.
type errorPayload struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "FILE_NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromCtx(c),
	})
}

// writeServiceError maps a service error to its status code.
func writeServiceError(c *fiber.Ctx, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		se = &service.Error{Kind: service.KindInternal, Message: service.MsgInternal, Err: err}
	}

	switch se.Kind {
	case service.KindInvalid:
		return writeError(c, fiber.StatusBadRequest, invalidCode(se.Message), se.Message)
	case service.KindNotFound:
		return writeError(c, fiber.StatusNotFound, "FILE_NOT_FOUND", se.Message)
	case service.KindTooLarge:
		return writeError(c, fiber.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", service.MsgTooLarge)
	case service.KindProcessing:
		slog.WarnContext(c.UserContext(), "mesh_processing_failed",
			"request_id", requestIDFromCtx(c),
			"error", se.Error(),
		)
		return writeError(c, fiber.StatusInternalServerError, "PROCESSING_ERROR", se.Message)
	default:
		slog.ErrorContext(c.UserContext(), "request_failed",
			"request_id", requestIDFromCtx(c),
			"path", c.Path(),
			"error", errString(se.Err),
		)
		// The fault's own text is the client message.
		msg := service.MsgInternal
		if se.Err != nil {
			msg = se.Err.Error()
		}
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", msg)
	}
}

func invalidCode(msg string) string {
	switch msg {
	case service.MsgNoFilePart:
		return "NO_FILE_PART"
	case service.MsgNoSelectedFile:
		return "NO_SELECTED_FILE"
	case service.MsgNotAllowed:
		return "FILE_TYPE_NOT_ALLOWED"
	case service.MsgMissingInfo:
		return "MISSING_INFORMATION"
	case service.MsgUnsupportedFormat:
		return "UNSUPPORTED_FORMAT"
	default:
		return "BAD_REQUEST"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
// It also renders the body limit rejection Fiber raises before any handler runs.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "FILE_TOO_LARGE", service.MsgTooLarge)
		default:
			if fe == nil {
				slog.ErrorContext(c.UserContext(), "unhandled_error",
					"request_id", requestIDFromCtx(c),
					"path", c.Path(),
					"error", err.Error(),
				)
			}
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
