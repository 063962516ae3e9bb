package schedule

import (
	"errors"

	"go-reports/internal/features/report"

	"github.com/gofiber/fiber/v2"
)

type ScheduleController struct {
	ScheduleService ScheduleService
}

func NewScheduleController(scheduleService ScheduleService) *ScheduleController {
	return &ScheduleController{ScheduleService: scheduleService}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrScheduleNotFound), errors.Is(err, report.ErrReportNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func (c *ScheduleController) Create(ctx *fiber.Ctx) error {
	var s Schedule
	if err := ctx.BodyParser(&s); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := c.ScheduleService.CreateSchedule(ctx.Context(), &s); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(s)
}

func (c *ScheduleController) List(ctx *fiber.Ctx) error {
	schedules, err := c.ScheduleService.ListSchedules(ctx.Context())
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(schedules)
}

func (c *ScheduleController) Get(ctx *fiber.Ctx) error {
	s, err := c.ScheduleService.GetSchedule(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(s)
}

func (c *ScheduleController) Update(ctx *fiber.Ctx) error {
	existing, err := c.ScheduleService.GetSchedule(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}

	var s Schedule
	if err := ctx.BodyParser(&s); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	s.ID = existing.ID
	s.CreatedBy = existing.CreatedBy
	s.CreatedAt = existing.CreatedAt

	if err := c.ScheduleService.UpdateSchedule(ctx.Context(), &s); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(s)
}

func (c *ScheduleController) Delete(ctx *fiber.Ctx) error {
	if err := c.ScheduleService.DeleteSchedule(ctx.Context(), ctx.Params("id")); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *ScheduleController) Run(ctx *fiber.Ctx) error {
	if err := c.ScheduleService.RunSchedule(ctx.Context(), ctx.Params("id")); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"status": "delivered"})
}
