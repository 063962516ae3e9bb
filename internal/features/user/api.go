package user

import (
	"go-reports/internal/config"
	"go-reports/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type UserApi struct {
	UserController *UserController
	Config         *config.Config
	RoleService    middleware.RoleService
}

func NewUserApi(userController *UserController, config *config.Config, roleService middleware.RoleService) *UserApi {
	return &UserApi{
		UserController: userController,
		Config:         config,
		RoleService:    roleService,
	}
}

func (api *UserApi) Setup(app *fiber.App) {
	app.Post("/api/auth/login", api.UserController.Login)

	group := app.Group("/api/users", middleware.AuthMiddleware(api.Config.SkipAuth))
	group.Post("/", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "users.add_user"), api.UserController.Create)
	group.Get("/", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "users.view_user"), api.UserController.List)
	group.Get("/:id", api.UserController.Get)
}
