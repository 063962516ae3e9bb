package schedule

import (
	"go-reports/internal/config"
	"go-reports/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ScheduleApi struct {
	ScheduleController *ScheduleController
	Config             *config.Config
	RoleService        middleware.RoleService
}

func NewScheduleApi(scheduleController *ScheduleController, config *config.Config, roleService middleware.RoleService) *ScheduleApi {
	return &ScheduleApi{
		ScheduleController: scheduleController,
		Config:             config,
		RoleService:        roleService,
	}
}

func (api *ScheduleApi) Setup(app *fiber.App) {
	group := app.Group("/api/schedules", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Post("/", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "schedules.add_schedule"), api.ScheduleController.Create)
	group.Get("/", api.ScheduleController.List)
	group.Get("/:id", api.ScheduleController.Get)
	group.Put("/:id", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "schedules.change_schedule"), api.ScheduleController.Update)
	group.Delete("/:id", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "schedules.delete_schedule"), api.ScheduleController.Delete)
	group.Post("/:id/run", api.ScheduleController.Run)
}
