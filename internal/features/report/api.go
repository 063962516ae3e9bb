package report

import (
	"go-reports/internal/config"
	"go-reports/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ReportApi struct {
	ReportController *ReportController
	Config           *config.Config
	RoleService      middleware.RoleService
}

func NewReportApi(reportController *ReportController, config *config.Config, roleService middleware.RoleService) *ReportApi {
	return &ReportApi{
		ReportController: reportController,
		Config:           config,
		RoleService:      roleService,
	}
}

func (api *ReportApi) Setup(app *fiber.App) {
	group := app.Group("/api/reports", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Post("/", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "reports.add_report"), api.ReportController.Create)
	group.Get("/", api.ReportController.List)
	group.Get("/:id", api.ReportController.Get)
	group.Put("/:id", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "reports.change_report"), api.ReportController.Update)
	group.Delete("/:id", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "reports.delete_report"), api.ReportController.Delete)

	group.Post("/:id/copy", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "reports.add_report"), api.ReportController.Copy)
	group.Post("/:id/star", api.ReportController.Star)
	group.Get("/:id/preview", api.ReportController.Preview)
	group.Get("/:id/download", api.ReportController.Download)
	group.Post("/:id/export", api.ReportController.Export)
	group.Get("/:id/status", api.ReportController.Status)

	selection := app.Group("/api/export-selection", middleware.AuthMiddleware(api.Config.SkipAuth))
	selection.Post("/", api.ReportController.ExportSelection)
}
