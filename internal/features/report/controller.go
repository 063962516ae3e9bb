package report

import (
	"errors"
	"fmt"

	"go-reports/internal/features/entity"
	"go-reports/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type ReportController struct {
	ReportService ReportService
}

func NewReportController(reportService ReportService) *ReportController {
	return &ReportController{ReportService: reportService}
}

func claims(ctx *fiber.Ctx) *utils.UserClaims {
	if c, ok := ctx.Locals(utils.UserClaimsKey).(*utils.UserClaims); ok {
		return c
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrReportNotFound), errors.Is(err, entity.ErrEntityNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, entity.ErrInvalidPath),
		errors.Is(err, entity.ErrUnknownField):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func exportFormat(ctx *fiber.Ctx) Format {
	if ctx.Query("format") == string(FormatCSV) {
		return FormatCSV
	}
	return FormatXLSX
}

func (c *ReportController) Create(ctx *fiber.Ctx) error {
	var r Report
	if err := ctx.BodyParser(&r); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := c.ReportService.CreateReport(ctx.Context(), &r, claims(ctx)); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(r)
}

func (c *ReportController) List(ctx *fiber.Ctx) error {
	limit := int64(ctx.QueryInt("limit", 50))
	offset := int64(ctx.QueryInt("offset", 0))

	reports, err := c.ReportService.ListReports(ctx.Context(), limit, offset)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(reports)
}

func (c *ReportController) Get(ctx *fiber.Ctx) error {
	r, err := c.ReportService.GetReport(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(r)
}

func (c *ReportController) Update(ctx *fiber.Ctx) error {
	existing, err := c.ReportService.GetReport(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}

	var r Report
	if err := ctx.BodyParser(&r); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	r.ID = existing.ID

	if err := c.ReportService.UpdateReport(ctx.Context(), &r, claims(ctx)); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(r)
}

func (c *ReportController) Delete(ctx *fiber.Ctx) error {
	if err := c.ReportService.DeleteReport(ctx.Context(), ctx.Params("id")); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *ReportController) Copy(ctx *fiber.Ctx) error {
	copied, err := c.ReportService.Duplicate(ctx.Context(), ctx.Params("id"), claims(ctx))
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(copied)
}

func (c *ReportController) Star(ctx *fiber.Ctx) error {
	user := claims(ctx)
	if user == nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	starred, err := c.ReportService.ToggleStar(ctx.Context(), ctx.Params("id"), user.UserID)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"starred": starred})
}

// Preview runs a capped evaluation and returns the rows as JSON.
func (c *ReportController) Preview(ctx *fiber.Ctx) error {
	result, header, err := c.ReportService.Run(ctx.Context(), ctx.Params("id"), claims(ctx), true)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{
		"header":  header,
		"rows":    result.Rows,
		"message": result.Message,
	})
}

// Download serves the export synchronously, from cache when warm.
func (c *ReportController) Download(ctx *fiber.Ctx) error {
	payload, err := c.ReportService.RequestExport(ctx.Context(), ctx.Params("id"), claims(ctx), exportFormat(ctx))
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}

	ctx.Set(fiber.HeaderContentType, payload.ContentType)
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", payload.Filename))
	return ctx.Send(payload.Content)
}

// Export enqueues background generation and reports the job state.
func (c *ReportController) Export(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	format := exportFormat(ctx)

	user := claims(ctx)
	userID := ""
	if user != nil {
		userID = user.UserID
	}
	if err := c.ReportService.EnqueueExport(ctx.Context(), id, userID, format); err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}

	state, err := c.ReportService.ExportStatus(ctx.Context(), id, format)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{"state": state})
}

// Status polls the background job until the cached payload appears.
func (c *ReportController) Status(ctx *fiber.Ctx) error {
	state, err := c.ReportService.ExportStatus(ctx.Context(), ctx.Params("id"), exportFormat(ctx))
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"state": state})
}

// ExportSelection exports chosen records of an entity with ad-hoc field
// specs.
func (c *ReportController) ExportSelection(ctx *fiber.Ctx) error {
	var body struct {
		Entity string   `json:"entity"`
		IDs    []string `json:"ids"`
		Fields []string `json:"fields"`
		Format Format   `json:"format"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if body.Format == "" {
		body.Format = FormatXLSX
	}

	payload, err := c.ReportService.ExportSelection(ctx.Context(), body.Entity, body.IDs, body.Fields, claims(ctx), body.Format)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}

	ctx.Set(fiber.HeaderContentType, payload.ContentType)
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", payload.Filename))
	return ctx.Send(payload.Content)
}
