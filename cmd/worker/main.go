package main

import (
	"context"

	"go-reports/internal/cache"
	"go-reports/internal/config"
	"go-reports/internal/database"
	emails "go-reports/internal/email"
	"go-reports/internal/features/audit"
	"go-reports/internal/features/entity"
	"go-reports/internal/features/record"
	"go-reports/internal/features/report"
	"go-reports/internal/features/role"
	"go-reports/internal/features/user"
	"go-reports/internal/logger"
	"go-reports/internal/queue"
	"go-reports/pkg/condition"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewExporter binds the configured row ceiling into the serializer.
func NewExporter(cfg *config.Config, l *zap.Logger) *report.Exporter {
	return report.NewExporter(cfg.ReportMaxRows, l)
}

// StartWorker runs the queue consumer for the app's lifetime.
func StartWorker(lc fx.Lifecycle, srv *asynq.Server, handler *report.TaskHandler, l *zap.Logger) {
	mux := asynq.NewServeMux()
	handler.Register(mux)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Run(mux); err != nil {
					l.Fatal("worker failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Shutdown()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,

			database.NewDatabase,
			database.NewRedis,
			cache.NewRedisStore,
			queue.NewClient,
			queue.NewInspector,
			queue.NewServer,
			condition.NewEngine,

			audit.NewAuditRepository,
			entity.NewEntityRepository,
			record.NewRecordRepository,
			report.NewReportRepository,
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
			report.NewTaskHandler,

			func(s entity.EntityService) entity.Introspector { return s },
			func(s role.RoleService) report.PermissionChecker { return s },
			func(s user.UserService) report.UserResolver { return s },
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(StartWorker),
	)

	app.Run()
}
