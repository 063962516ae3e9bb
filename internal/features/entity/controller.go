package entity

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type EntityController struct {
	EntityService EntityService
}

func NewEntityController(entityService EntityService) *EntityController {
	return &EntityController{EntityService: entityService}
}

func (c *EntityController) Create(ctx *fiber.Ctx) error {
	var e Entity
	if err := ctx.BodyParser(&e); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := c.EntityService.CreateEntity(ctx.Context(), &e); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusCreated).JSON(e)
}

func (c *EntityController) List(ctx *fiber.Ctx) error {
	entities, err := c.EntityService.ListEntities(ctx.Context())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(entities)
}

func (c *EntityController) Get(ctx *fiber.Ctx) error {
	name := ctx.Params("name")
	e, err := c.EntityService.GetEntity(ctx.Context(), name)
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Entity not found"})
	}
	return ctx.JSON(e)
}

// Fields resolves the relation path given in the "path" query parameter and
// returns the target entity's fields. Used by the report designer UI.
func (c *EntityController) Fields(ctx *fiber.Ctx) error {
	name := ctx.Params("name")
	path := ctx.Query("path", "")

	info, err := c.EntityService.ResolveFields(ctx.Context(), name, path)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrEntityNotFound) {
			status = fiber.StatusNotFound
		} else if errors.Is(err, ErrInvalidPath) || errors.Is(err, ErrUnknownField) {
			status = fiber.StatusBadRequest
		}
		return ctx.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(fiber.Map{
		"entity":        info.Entity.Name,
		"namespace":     info.Namespace,
		"path_verbose":  info.PathVerbose,
		"fields":        info.Fields,
		"properties":    info.Properties,
		"custom_fields": info.CustomFields,
		"relations":     info.Relations,
	})
}

func (c *EntityController) Update(ctx *fiber.Ctx) error {
	name := ctx.Params("name")
	var e Entity
	if err := ctx.BodyParser(&e); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	e.Name = name

	if err := c.EntityService.UpdateEntity(ctx.Context(), &e); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(e)
}

func (c *EntityController) Delete(ctx *fiber.Ctx) error {
	name := ctx.Params("name")
	if err := c.EntityService.DeleteEntity(ctx.Context(), name); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
