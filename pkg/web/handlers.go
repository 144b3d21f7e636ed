// Package web provides HTTP handlers and REST API endpoints for the
// automation execution core.
package web

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/lumenpress/automation/pkg/models"
	"github.com/lumenpress/automation/pkg/persistence"
	"github.com/lumenpress/automation/pkg/pipeline"
	"github.com/lumenpress/automation/pkg/registry"
	"github.com/lumenpress/automation/pkg/rules"
	"github.com/lumenpress/automation/pkg/services"
	"github.com/lumenpress/automation/pkg/workflow"
)

type APIHandlers struct {
	pipelineService *services.Pipelines
	scheduleService *services.Schedules
	executor        *pipeline.Executor
	workflowService *workflow.Service
	ruleEngine      *rules.Engine
	persistence     persistence.Persistence
	registry        *registry.Registry
	validator       *validator.Validate
}

func NewAPIHandlers(
	pipelineService *services.Pipelines,
	scheduleService *services.Schedules,
	executor *pipeline.Executor,
	workflowService *workflow.Service,
	ruleEngine *rules.Engine,
	store persistence.Persistence,
	reg *registry.Registry,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		pipelineService: pipelineService,
		scheduleService: scheduleService,
		executor:        executor,
		workflowService: workflowService,
		ruleEngine:      ruleEngine,
		persistence:     store,
		registry:        reg,
		validator:       validate,
	}
}

func (h *APIHandlers) GetPipelines(c fiber.Ctx) error {
	pipelines, err := h.pipelineService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"pipelines": pipelines})
}

func (h *APIHandlers) CreatePipeline(c fiber.Ctx) error {
	var req CreatePipelineRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.pipelineService.Create(c.Context(), &models.Pipeline{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Complexity:  req.Complexity,
		Enabled:     req.Enabled,
		Stages:      req.Stages,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetPipeline(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Pipeline ID is required")
	}

	found, err := h.pipelineService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) DeletePipeline(c fiber.Ctx) error {
	if err := h.pipelineService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecutePipeline runs the pipeline synchronously and returns the full
// structured result, partial progress included on failure.
func (h *APIHandlers) ExecutePipeline(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Pipeline ID is required")
	}

	var req ExecutePipelineRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	triggerData := req.TriggerData
	if triggerData == nil {
		triggerData = make(map[string]any)
	}

	if req.TriggerType != "" {
		triggerData["trigger_type"] = req.TriggerType
	}

	result, err := h.executor.Execute(c.Context(), id, triggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// GetExecution returns the persisted execution record, callable at any time
// during or after the run.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.persistence.Executions().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	templates, err := h.workflowService.Templates(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"templates": templates})
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.CreateTemplate(c.Context(), &models.WorkflowTemplate{
		Name:              req.Name,
		Description:       req.Description,
		Category:          req.Category,
		Complexity:        req.Complexity,
		EstimatedDuration: req.EstimatedDuration,
		Enabled:           req.Enabled,
		Steps:             req.Steps,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	found, err := h.workflowService.Template(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	if err := h.workflowService.DeleteTemplate(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecuteWorkflow starts an asynchronous run and returns its execution id
// immediately; progress is observable via GetExecution.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	executionID, err := h.workflowService.Execute(c.Context(), c.Params("id"), req.Config)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecuteWorkflowResponse{ExecutionID: executionID})
}

func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	ruleList, err := h.ruleEngine.Rules(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"rules": ruleList})
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	var req CreateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.ruleEngine.CreateRule(c.Context(), &models.AutomationRule{
		Name:        req.Name,
		Description: req.Description,
		Trigger:     req.Trigger,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		Enabled:     req.Enabled,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) DeleteRule(c fiber.Ctx) error {
	if err := h.ruleEngine.DeleteRule(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecuteRule evaluates a rule against the posted fields. The response is a
// bare success flag; diagnostics go to the logs and rule statistics.
func (h *APIHandlers) ExecuteRule(c fiber.Ctx) error {
	var req ExecuteRuleRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	success, err := h.ruleEngine.ExecuteRule(c.Context(), c.Params("id"), req.Fields)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ExecuteRuleResponse{Success: success})
}

func (h *APIHandlers) GetSchedules(c fiber.Ctx) error {
	schedules, err := h.scheduleService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"schedules": schedules})
}

func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.scheduleService.Create(c.Context(), &models.Schedule{
		PipelineID:  req.PipelineID,
		CronExpr:    req.CronExpr,
		TriggerData: req.TriggerData,
		Enabled:     req.Enabled,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	if err := h.scheduleService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.pipelineService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Automation API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Automation API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checks": fiber.Map{
			"registry":    registryCheck,
			"persistence": repositoryCheck,
		},
	})
}
