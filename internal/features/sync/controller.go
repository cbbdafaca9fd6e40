package sync

import (
	"errors"
	"strconv"
	"time"

	"go-kobo-connect/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type SyncController struct {
	service SyncService
}

func NewSyncController(service SyncService) *SyncController {
	return &SyncController{service: service}
}

func isConfigError(err error) bool {
	return errors.Is(err, ErrMissingUID) ||
		errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrMissingBaseURL)
}

// StartSync runs a synchronization pass for a form.
func (ctrl *SyncController) StartSync(c *fiber.Ctx) error {
	dryRun := c.QueryBool("dry_run")
	userID := middleware.UserID(c)

	if minutes := c.QueryInt("minutes"); minutes > 0 {
		report, err := ctrl.service.SyncSince(c.Context(), c.Params("id"), minutes, userID)
		return ctrl.renderReport(c, report, err)
	}

	opts := SyncOptions{DryRun: dryRun}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "since must be RFC3339",
			})
		}
		opts.Since = &since
	}

	report, err := ctrl.service.StartSync(c.Context(), c.Params("id"), userID, opts)
	return ctrl.renderReport(c, report, err)
}

func (ctrl *SyncController) renderReport(c *fiber.Ctx, report *RunReport, err error) error {
	if err != nil {
		status := fiber.StatusInternalServerError
		if isConfigError(err) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sync completed",
		"data":    report,
	})
}

// SyncSubmission pulls a single submission by its Kobo id.
func (ctrl *SyncController) SyncSubmission(c *fiber.Ctx) error {
	dryRun := c.QueryBool("dry_run")
	userID := middleware.UserID(c)

	t, err := ctrl.service.SyncOne(c.Context(), c.Params("id"), c.Params("submissionId"), userID, dryRun)
	if err != nil {
		status := fiber.StatusInternalServerError
		if isConfigError(err) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if t == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Submission not found",
		})
	}

	return c.JSON(fiber.Map{
		"data": t,
	})
}

// ListLogs returns recent sync log entries for a form.
func (ctrl *SyncController) ListLogs(c *fiber.Ctx) error {
	limit, _ := strconv.ParseInt(c.Query("limit", "50"), 10, 64)

	logs, err := ctrl.service.ListLogs(c.Context(), c.Params("id"), limit)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data": logs,
	})
}

// ExportLogs streams a form's sync logs as an Excel workbook.
func (ctrl *SyncController) ExportLogs(c *fiber.Ctx) error {
	limit, _ := strconv.ParseInt(c.Query("limit", "500"), 10, 64)

	data, filename, err := ctrl.service.ExportLogs(c.Context(), c.Params("id"), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(data)
}

// GenerateMappings creates mappings from the form's remote schema.
func (ctrl *SyncController) GenerateMappings(c *fiber.Ctx) error {
	created, err := ctrl.service.GenerateMappings(c.Context(), c.Params("id"))
	if err != nil {
		status := fiber.StatusInternalServerError
		if isConfigError(err) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Mappings generated",
		"data":    created,
	})
}

// SuggestUnmapped lists schema fields without a mapping.
func (ctrl *SyncController) SuggestUnmapped(c *fiber.Ctx) error {
	fields, err := ctrl.service.SuggestUnmapped(c.Context(), c.Params("id"))
	if err != nil {
		status := fiber.StatusInternalServerError
		if isConfigError(err) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data": fields,
	})
}
