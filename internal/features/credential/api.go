package credential

import (
	"go-kobo-connect/internal/common/api"
	"go-kobo-connect/internal/config"
	"go-kobo-connect/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type CredentialApi struct {
	controller *CredentialController
	config     *config.Config
}

func NewCredentialApi(controller *CredentialController, config *config.Config) api.Route {
	return &CredentialApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers the credential routes
func (h *CredentialApi) Setup(app *fiber.App) {
	group := app.Group("/api/kobo/credentials", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Post("/", h.controller.CreateCredential)
	group.Get("/", h.controller.ListCredentials)
	group.Get("/:id", h.controller.GetCredential)
	group.Put("/:id", h.controller.UpdateCredential)
	group.Delete("/:id", h.controller.DeleteCredential)
}
