package record

import (
	"go-reports/internal/config"
	"go-reports/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type RecordApi struct {
	RecordController *RecordController
	Config           *config.Config
	RoleService      middleware.RoleService
}

func NewRecordApi(recordController *RecordController, config *config.Config, roleService middleware.RoleService) *RecordApi {
	return &RecordApi{
		RecordController: recordController,
		Config:           config,
		RoleService:      roleService,
	}
}

func (api *RecordApi) Setup(app *fiber.App) {
	group := app.Group("/api/records/:entity", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Post("/", api.RecordController.Create)
	group.Get("/", api.RecordController.List)
	group.Get("/:id", api.RecordController.Get)
	group.Put("/:id", api.RecordController.Update)
	group.Delete("/:id", api.RecordController.Delete)
	group.Put("/:id/custom/:field", api.RecordController.SetCustomValue)
}
