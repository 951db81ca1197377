package controllers

import (
	"errors"

	"github.com/captura-dev/captura/internal/domain"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// CaptureController exposes the broker's prime/capture/list/revoke operations
// over HTTP. Frame bytes go out as base64 inside JSON; image encoding is the
// caller's concern.
type CaptureController struct {
	broker domain.SessionBroker
}

type CaptureControllerDependencies struct {
	Broker domain.SessionBroker
}

func NewCaptureController(deps CaptureControllerDependencies) *CaptureController {
	return &CaptureController{broker: deps.Broker}
}

// Prime handles an explicit "obtain consent" request. Only brokers whose
// backend supports interactive consent implement the capability.
func (c *CaptureController) Prime(ctx fiber.Ctx) error {
	primer, ok := c.broker.(domain.ConsentPrimer)
	if !ok {
		return ctx.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "this capture backend does not support consent priming",
		})
	}

	var params domain.PrimeParams
	if err := ctx.Bind().Body(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if params.SourceID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "source_id is required")
	}

	result, err := primer.Prime(ctx.RequestCtx(), params)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.JSON(result)
}

// Capture acquires one frame for the source in the path, applying the
// requested transforms.
func (c *CaptureController) Capture(ctx fiber.Ctx) error {
	sourceID := ctx.Params("sourceID")
	if sourceID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "source id is required")
	}

	var opts domain.TransformOptions
	if len(ctx.Body()) > 0 {
		if err := ctx.Bind().Body(&opts); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid transform options")
		}
	}

	result, err := c.broker.Capture(ctx.RequestCtx(), sourceID, opts)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.JSON(result)
}

// ListSources enumerates primed source ids, or the informational placeholder
// when nothing has been primed yet.
func (c *CaptureController) ListSources(ctx fiber.Ctx) error {
	sources, err := c.broker.ListPrimedSources(ctx.RequestCtx())
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"sources": sources})
}

// Revoke deletes the stored credential for a source.
func (c *CaptureController) Revoke(ctx fiber.Ctx) error {
	sourceID := ctx.Params("sourceID")
	if sourceID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "source id is required")
	}

	existed, err := c.broker.Revoke(ctx.RequestCtx(), sourceID)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"revoked": existed})
}

// respondError maps the domain error taxonomy onto HTTP statuses. Hints from
// RemediationError ride along in the body; credential material never does.
func respondError(ctx fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrConsentDenied):
		status = fiber.StatusForbidden
	case errors.Is(err, domain.ErrTimeout):
		status = fiber.StatusGatewayTimeout
	case errors.Is(err, domain.ErrPortalUnavailable),
		errors.Is(err, domain.ErrSourceUnavailable):
		status = fiber.StatusBadGateway
	}

	log.Error().Err(err).Int("status", status).Msg("Capture request failed")

	body := fiber.Map{"error": err.Error()}
	var remediation *domain.RemediationError
	if errors.As(err, &remediation) {
		body["hint"] = remediation.Hint
	}
	return ctx.Status(status).JSON(body)
}
