package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"streamworks-assistant-be/internal/dto"
	"streamworks-assistant-be/internal/pkg/serverutils"
	"streamworks-assistant-be/internal/repository/contract"
	"streamworks-assistant-be/internal/service"
	"streamworks-assistant-be/pkg/extraction"
)

type IDialogController interface {
	RegisterRoutes(r fiber.Router)
	ProcessMessage(ctx *fiber.Ctx) error
	CorrectParameter(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	GetGenerationParameters(ctx *fiber.Ctx) error
	SignalGenerationResult(ctx *fiber.Ctx) error
	ResetSession(ctx *fiber.Ctx) error
}

type dialogController struct {
	service service.IDialogService
}

func NewDialogController(service service.IDialogService) IDialogController {
	return &dialogController{service: service}
}

func (c *dialogController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/dialog")
	h.Post("/message", c.ProcessMessage)
	h.Post("/correction", c.CorrectParameter)
	h.Get("/sessions/:id", c.GetSession)
	h.Get("/sessions/:id/generation-parameters", c.GetGenerationParameters)
	h.Post("/sessions/:id/generation-result", c.SignalGenerationResult)
	h.Post("/sessions/:id/reset", c.ResetSession)
}

func (c *dialogController) ProcessMessage(ctx *fiber.Ctx) error {
	var request dto.ProcessMessageRequest
	if err := serverutils.ParseAndValidate(ctx, &request); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}

	res, err := c.service.ProcessMessage(ctx.Context(), &request)
	if err != nil {
		return c.mapError(ctx, err)
	}
	return ctx.JSON(res)
}

func (c *dialogController) CorrectParameter(ctx *fiber.Ctx) error {
	var request dto.CorrectionRequest
	if err := serverutils.ParseAndValidate(ctx, &request); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}

	res, err := c.service.CorrectParameter(ctx.Context(), &request)
	if err != nil {
		return c.mapError(ctx, err)
	}
	return ctx.JSON(res)
}

func (c *dialogController) GetSession(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "invalid session id"))
	}
	res, err := c.service.GetSession(ctx.Context(), id)
	if err != nil {
		return c.mapError(ctx, err)
	}
	return ctx.JSON(res)
}

func (c *dialogController) GetGenerationParameters(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "invalid session id"))
	}
	res, err := c.service.GetParametersForGeneration(ctx.Context(), id)
	if err != nil {
		return c.mapError(ctx, err)
	}
	return ctx.JSON(res)
}

func (c *dialogController) SignalGenerationResult(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "invalid session id"))
	}
	var request dto.GenerationResultRequest
	if err := serverutils.ParseAndValidate(ctx, &request); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}
	res, err := c.service.SignalGenerationResult(ctx.Context(), id, &request)
	if err != nil {
		return c.mapError(ctx, err)
	}
	return ctx.JSON(res)
}

func (c *dialogController) ResetSession(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "invalid session id"))
	}
	res, err := c.service.ResetSession(ctx.Context(), id)
	if err != nil {
		return c.mapError(ctx, err)
	}
	return ctx.JSON(res)
}

// mapError translates engine failures onto HTTP statuses: unknown session
// is a 404, a timed-out or unavailable extraction collaborator is a 504/502
// the client may retry.
func (c *dialogController) mapError(ctx *fiber.Ctx, err error) error {
	if errors.Is(err, contract.ErrSessionNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, "session not found"))
	}
	if kind, ok := extraction.KindOf(err); ok {
		switch kind {
		case extraction.KindTimeout:
			return ctx.Status(fiber.StatusGatewayTimeout).JSON(serverutils.ErrorResponse(504, "extraction timed out, please retry"))
		case extraction.KindUnavailable:
			return ctx.Status(fiber.StatusBadGateway).JSON(serverutils.ErrorResponse(502, "extraction backend unavailable, please retry"))
		}
	}
	return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
}
