package credential

import (
	"strings"

	"go-kobo-connect/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type CredentialController struct {
	Repo CredentialRepository
}

func NewCredentialController(repo CredentialRepository) *CredentialController {
	return &CredentialController{
		Repo: repo,
	}
}

// CreateCredential stores a Kobo API credential.
func (ctrl *CredentialController) CreateCredential(c *fiber.Ctx) error {
	var cred Credential
	if err := c.BodyParser(&cred); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(cred.BaseURL) == "" || strings.TrimSpace(cred.Token) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "base_url and token are required",
		})
	}
	cred.UserID = middleware.UserID(c)

	if err := ctrl.Repo.Create(c.Context(), &cred); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Credential created successfully",
		"data":    cred,
	})
}

// ListCredentials returns the caller's credentials.
func (ctrl *CredentialController) ListCredentials(c *fiber.Ctx) error {
	creds, err := ctrl.Repo.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data": creds,
	})
}

// GetCredential returns a credential by id.
func (ctrl *CredentialController) GetCredential(c *fiber.Ctx) error {
	cred, err := ctrl.Repo.Get(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(cred)
}

// UpdateCredential patches a stored credential.
func (ctrl *CredentialController) UpdateCredential(c *fiber.Ctx) error {
	var updates map[string]interface{}
	if err := c.BodyParser(&updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ctrl.Repo.Update(c.Context(), c.Params("id"), updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Credential updated successfully",
	})
}

// DeleteCredential removes a credential.
func (ctrl *CredentialController) DeleteCredential(c *fiber.Ctx) error {
	if err := ctrl.Repo.Delete(c.Context(), c.Params("id")); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Credential deleted successfully",
	})
}
