package main

import (
	"context"
	"fmt"
	"log"

	"go-reports/internal/cache"
	common_api "go-reports/internal/common/api"
	"go-reports/internal/config"
	"go-reports/internal/database"
	emails "go-reports/internal/email"
	"go-reports/internal/features/audit"
	"go-reports/internal/features/entity"
	"go-reports/internal/features/record"
	"go-reports/internal/features/report"
	"go-reports/internal/features/role"
	"go-reports/internal/features/schedule"
	"go-reports/internal/features/user"
	"go-reports/internal/logger"
	"go-reports/internal/middleware"
	"go-reports/internal/queue"
	"go-reports/pkg/condition"
	"go-reports/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates the Fiber app instance.
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())
	return app
}

// AsRoute tags a constructor so Fx collects it into the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes calls Setup() on every collected route.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
	log.Printf("Registered %d routes\n", len(routes))
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer runs Fiber in a goroutine and shuts it down with the app.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// NewExporter binds the configured row ceiling into the serializer.
func NewExporter(cfg *config.Config, l *zap.Logger) *report.Exporter {
	return report.NewExporter(cfg.ReportMaxRows, l)
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewFiberServer,

			database.NewDatabase,
			database.NewRedis,
			cache.NewRedisStore,
			queue.NewClient,
			queue.NewInspector,
			condition.NewEngine,

			audit.NewAuditRepository,
			entity.NewEntityRepository,
			record.NewRecordRepository,
			report.NewReportRepository,
			schedule.NewScheduleRepository,
			role.NewRoleRepository,
			user.NewUserRepository,
			emails.NewRepository,

			audit.NewAuditService,
			entity.NewEntityService,
			record.NewRecordService,
			role.NewRoleService,
			user.NewUserService,
			emails.NewService,
			report.NewEvaluator,
			NewExporter,
			report.NewReportService,
			schedule.NewScheduleService,

			// Interface adapters keep the feature packages decoupled
			func(s entity.EntityService) entity.Introspector { return s },
			func(s role.RoleService) middleware.RoleService { return s },
			func(s role.RoleService) report.PermissionChecker { return s },
			func(s user.UserService) report.UserResolver { return s },

			entity.NewEntityController,
			record.NewRecordController,
			report.NewReportController,
			schedule.NewScheduleController,
			audit.NewAuditController,
			user.NewUserController,

			AsRoute(entity.NewEntityApi),
			AsRoute(record.NewRecordApi),
			AsRoute(report.NewReportApi),
			AsRoute(schedule.NewScheduleApi),
			AsRoute(audit.NewAuditApi),
			AsRoute(role.NewRoleApi),
			AsRoute(user.NewUserApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config) { utils.SetSecret(cfg.JWTSecret) },
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, scheduleService schedule.ScheduleService) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return scheduleService.InitializeScheduler(ctx)
					},
					OnStop: func(ctx context.Context) error {
						return scheduleService.StopScheduler()
					},
				})
			},
		),
	)

	app.Run()
}
