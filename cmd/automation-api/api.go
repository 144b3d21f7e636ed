// Package main provides the automation API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/lumenpress/automation/pkg/eventbus"
	"github.com/lumenpress/automation/pkg/persistence"
	"github.com/lumenpress/automation/pkg/pipeline"
	"github.com/lumenpress/automation/pkg/registry"
	"github.com/lumenpress/automation/pkg/rules"
	"github.com/lumenpress/automation/pkg/services"
	"github.com/lumenpress/automation/pkg/web"
	"github.com/lumenpress/automation/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	bus         eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(logger *slog.Logger, store persistence.Persistence, bus eventbus.EventBus) *API {
	return &API{
		logger:      logger,
		persistence: store,
		registry:    registry.NewRegistry(logger),
		bus:         bus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Registry exposes the handler registry so the host can bind stage and step
// handlers before Start.
func (a *API) Registry() *registry.Registry {
	return a.registry
}

func (a *API) App() *fiber.App {
	pipelineService := services.NewPipelines(a.persistence)
	scheduleService := services.NewSchedules(a.persistence)
	executor := pipeline.NewExecutor(a.logger, a.persistence, a.registry, a.bus)
	workflowService := workflow.NewService(a.logger, a.persistence, a.registry, a.bus)
	dispatcher := rules.NewDispatcher(a.logger, rules.ActionHandlers{})
	ruleEngine := rules.NewEngine(a.logger, a.persistence, dispatcher)

	handlers := web.NewAPIHandlers(
		pipelineService,
		scheduleService,
		executor,
		workflowService,
		ruleEngine,
		a.persistence,
		a.registry,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Lumenpress Automation API")
	})

	p := app.Group("/pipelines")
	p.Get("/", handlers.GetPipelines)
	p.Post("/", handlers.CreatePipeline)
	p.Get("/:id", handlers.GetPipeline)
	p.Delete("/:id", handlers.DeletePipeline)
	p.Post("/:id/execute", handlers.ExecutePipeline)

	app.Get("/executions/:id", handlers.GetExecution)

	t := app.Group("/templates")
	t.Get("/", handlers.GetTemplates)
	t.Post("/", handlers.CreateTemplate)
	t.Get("/:id", handlers.GetTemplate)
	t.Delete("/:id", handlers.DeleteTemplate)
	t.Post("/:id/execute", handlers.ExecuteWorkflow)

	r := app.Group("/rules")
	r.Get("/", handlers.GetRules)
	r.Post("/", handlers.CreateRule)
	r.Delete("/:id", handlers.DeleteRule)
	r.Post("/:id/execute", handlers.ExecuteRule)

	s := app.Group("/schedules")
	s.Get("/", handlers.GetSchedules)
	s.Post("/", handlers.CreateSchedule)
	s.Delete("/:id", handlers.DeleteSchedule)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
