package role

import (
	"go-reports/internal/config"
	"go-reports/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type RoleApi struct {
	RoleService RoleService
	Config      *config.Config
}

func NewRoleApi(roleService RoleService, config *config.Config) *RoleApi {
	return &RoleApi{
		RoleService: roleService,
		Config:      config,
	}
}

func (api *RoleApi) Setup(app *fiber.App) {
	group := app.Group("/api/roles", middleware.AuthMiddleware(api.Config.SkipAuth))

	group.Post("/", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "roles.add_role"), api.create)
	group.Get("/", api.list)
	group.Get("/:id", api.get)
	group.Put("/:id", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "roles.change_role"), api.update)
	group.Delete("/:id", middleware.RequirePermission(api.RoleService, api.Config.SkipAuth, "roles.delete_role"), api.delete)
}

func (api *RoleApi) create(ctx *fiber.Ctx) error {
	var role Role
	if err := ctx.BodyParser(&role); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	created, err := api.RoleService.CreateRole(ctx.Context(), &role)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(created)
}

func (api *RoleApi) list(ctx *fiber.Ctx) error {
	roles, err := api.RoleService.ListRoles(ctx.Context())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(roles)
}

func (api *RoleApi) get(ctx *fiber.Ctx) error {
	role, err := api.RoleService.GetRoleByID(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Role not found"})
	}
	return ctx.JSON(role)
}

func (api *RoleApi) update(ctx *fiber.Ctx) error {
	var role Role
	if err := ctx.BodyParser(&role); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := api.RoleService.UpdateRole(ctx.Context(), ctx.Params("id"), &role); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(role)
}

func (api *RoleApi) delete(ctx *fiber.Ctx) error {
	if err := api.RoleService.DeleteRole(ctx.Context(), ctx.Params("id")); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
