package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/lumenpress/automation/pkg/persistence"
	"github.com/lumenpress/automation/pkg/pipeline"
	"github.com/lumenpress/automation/pkg/scheduler"
	"github.com/lumenpress/automation/pkg/services"
	"github.com/lumenpress/automation/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("disabled").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func unprocessable(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(422).
		WithInstance(c.Path()).
		WithType("invalid_graph").
		WithDetail(detail)

	return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and execution errors onto problem
// responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var graphErr *scheduler.GraphError

	switch {
	case errors.As(err, &graphErr):
		return unprocessable(c, err.Error())
	case errors.Is(err, pipeline.ErrPipelineDisabled),
		errors.Is(err, workflow.ErrTemplateDisabled):
		return conflict(c, err.Error())
	case persistence.IsNotFound(err):
		return notFound(c, err.Error())
	case services.IsValidationError(err),
		errors.Is(err, workflow.ErrUnknownStepType):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}
