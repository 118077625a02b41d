package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"

	"github.com/spec-kit/qr-ticket-service/internal/observability"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

// RegisterMiddlewares installs, outermost first: request id, timeout,
// error rendering, request logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(observability.RequestID())
	if timeout > 0 {
		app.Use(requestTimeout(timeout))
	}
	app.Use(renderErrors(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

// requestTimeout bounds the user context seen by handlers. Enqueue
// handlers return quickly; it mostly guards list and attendance queries.
func requestTimeout(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// errorBody is the JSON envelope of every failed request.
type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func renderErrors(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("request_id", observability.RequestIDFrom(c)),
					zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err == nil {
				return
			}

			domainErr := toDomainError(err)
			if metrics != nil {
				metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
			}
			if domainErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Error("request failed",
					zap.String("path", c.Path()),
					zap.String("code", domainErr.Code),
					zap.String("request_id", observability.RequestIDFrom(c)),
					zap.Error(domainErr))
			}
			err = c.Status(domainErr.HTTPStatus).JSON(errorBody{Error: errorPayload{
				Code:      domainErr.Code,
				Message:   domainErr.Message,
				Details:   domainErr.Details,
				RequestID: observability.RequestIDFrom(c),
			}})
		}()
		return c.Next()
	}
}

// toDomainError also maps framework errors such as unknown routes and
// malformed bodies.
func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch fiberErr.Code {
		case http.StatusNotFound:
			return apperrors.NewDomainError(apperrors.CodeNotFound, fiberErr.Message, fiberErr.Code, nil)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return apperrors.NewDomainError(apperrors.CodeValidation, fiberErr.Message, http.StatusBadRequest, nil)
		}
		code := strings.ToUpper(strings.ReplaceAll(http.StatusText(fiberErr.Code), " ", "_"))
		return apperrors.NewDomainError(code, fiberErr.Message, fiberErr.Code, nil)
	}
	return apperrors.ToDomainError(err)
}

// issueRateLimiter bounds ticket issuance requests per client IP.
func issueRateLimiter(perMinute int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return apperrors.NewDomainError(apperrors.CodeRateLimited, "too many issuance requests",
				http.StatusTooManyRequests, map[string]any{"limit_per_minute": perMinute})
		},
	})
}
