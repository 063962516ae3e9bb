package entity

import (
	"go-reports/internal/config"
	"go-reports/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type EntityApi struct {
	EntityController *EntityController
	Config           *config.Config
	RoleService      middleware.RoleService
}

func NewEntityApi(entityController *EntityController, config *config.Config, roleService middleware.RoleService) *EntityApi {
	return &EntityApi{
		EntityController: entityController,
		Config:           config,
		RoleService:      roleService,
	}
}

func (api *EntityApi) Setup(app *fiber.App) {
	group := app.Group("/api/entities", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Post("/", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "entities.add_entity"), api.EntityController.Create)
	group.Get("/", api.EntityController.List)
	group.Get("/:name", api.EntityController.Get)
	group.Get("/:name/fields", api.EntityController.Fields)
	group.Put("/:name", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "entities.change_entity"), api.EntityController.Update)
	group.Delete("/:name", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "entities.delete_entity"), api.EntityController.Delete)
}
