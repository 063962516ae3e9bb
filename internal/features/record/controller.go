package record

import (
	"errors"

	"go-reports/internal/features/entity"

	"github.com/gofiber/fiber/v2"
)

type RecordController struct {
	RecordService RecordService
}

func NewRecordController(recordService RecordService) *RecordController {
	return &RecordController{RecordService: recordService}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrEntityNotFound), errors.Is(err, ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, entity.ErrUnknownField), errors.Is(err, entity.ErrInvalidPath):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func (c *RecordController) Create(ctx *fiber.Ctx) error {
	var values map[string]interface{}
	if err := ctx.BodyParser(&values); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	id, err := c.RecordService.CreateRecord(ctx.Context(), ctx.Params("entity"), values)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (c *RecordController) List(ctx *fiber.Ctx) error {
	limit := int64(ctx.QueryInt("limit", 100))
	offset := int64(ctx.QueryInt("offset", 0))

	records, err := c.RecordService.ListRecords(ctx.Context(), ctx.Params("entity"), limit, offset)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(records)
}

func (c *RecordController) Get(ctx *fiber.Ctx) error {
	doc, err := c.RecordService.GetRecord(ctx.Context(), ctx.Params("entity"), ctx.Params("id"))
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(doc)
}

func (c *RecordController) Update(ctx *fiber.Ctx) error {
	var values map[string]interface{}
	if err := ctx.BodyParser(&values); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := c.RecordService.UpdateRecord(ctx.Context(), ctx.Params("entity"), ctx.Params("id"), values); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *RecordController) Delete(ctx *fiber.Ctx) error {
	if err := c.RecordService.DeleteRecord(ctx.Context(), ctx.Params("entity"), ctx.Params("id")); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *RecordController) SetCustomValue(ctx *fiber.Ctx) error {
	var body struct {
		Value interface{} `json:"value"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	err := c.RecordService.SetCustomValue(ctx.Context(), ctx.Params("entity"), ctx.Params("id"), ctx.Params("field"), body.Value)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
