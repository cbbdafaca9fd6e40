package form

import (
	"strings"

	"go-kobo-connect/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FormController struct {
	FormRepo    FormRepository
	MappingRepo MappingRepository
}

func NewFormController(formRepo FormRepository, mappingRepo MappingRepository) *FormController {
	return &FormController{
		FormRepo:    formRepo,
		MappingRepo: mappingRepo,
	}
}

// CreateForm registers a new Kobo form for synchronization.
func (ctrl *FormController) CreateForm(c *fiber.Ctx) error {
	var f KoboForm
	if err := c.BodyParser(&f); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(f.KoboUID) == "" || strings.TrimSpace(f.Name) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name and kobo_uid are required",
		})
	}
	f.UserID = middleware.UserID(c)

	if err := ctrl.FormRepo.Create(c.Context(), &f); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Form created successfully",
		"data":    f,
	})
}

// ListForms returns the forms owned by the caller.
func (ctrl *FormController) ListForms(c *fiber.Ctx) error {
	forms, err := ctrl.FormRepo.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data": forms,
	})
}

// GetForm returns a single form by id.
func (ctrl *FormController) GetForm(c *fiber.Ctx) error {
	f, err := ctrl.FormRepo.Get(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(f)
}

// UpdateForm patches a form's sync settings.
func (ctrl *FormController) UpdateForm(c *fiber.Ctx) error {
	oid, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid form id",
		})
	}

	var updates map[string]interface{}
	if err := c.BodyParser(&updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Watermark and cached id are owned by the synchronizer
	delete(updates, "last_sync_at")
	delete(updates, "kobo_id")

	if err := ctrl.FormRepo.Update(c.Context(), oid, updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Form updated successfully",
	})
}

// DeleteForm removes a form and its mappings.
func (ctrl *FormController) DeleteForm(c *fiber.Ctx) error {
	oid, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid form id",
		})
	}

	if err := ctrl.MappingRepo.DeleteByForm(c.Context(), oid); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err := ctrl.FormRepo.Delete(c.Context(), c.Params("id")); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Form deleted successfully",
	})
}

// CreateMapping adds a field mapping to a form.
func (ctrl *FormController) CreateMapping(c *fiber.Ctx) error {
	oid, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid form id",
		})
	}

	var m FieldMapping
	if err := c.BodyParser(&m); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(m.KoboField) == "" || strings.TrimSpace(m.TicketField) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "kobo_field and ticket_field are required",
		})
	}
	m.FormID = oid

	if err := ctrl.MappingRepo.Create(c.Context(), &m); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Mapping created successfully",
		"data":    m,
	})
}

// ListMappings returns a form's field mappings.
func (ctrl *FormController) ListMappings(c *fiber.Ctx) error {
	oid, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid form id",
		})
	}

	mappings, err := ctrl.MappingRepo.ListByForm(c.Context(), oid)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data": mappings,
	})
}

// DeleteMapping removes a field mapping.
func (ctrl *FormController) DeleteMapping(c *fiber.Ctx) error {
	if err := ctrl.MappingRepo.Delete(c.Context(), c.Params("mappingId")); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Mapping deleted successfully",
	})
}
