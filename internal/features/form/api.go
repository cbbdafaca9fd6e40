package form

import (
	"go-kobo-connect/internal/common/api"
	"go-kobo-connect/internal/config"
	"go-kobo-connect/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type FormApi struct {
	controller *FormController
	config     *config.Config
}

func NewFormApi(controller *FormController, config *config.Config) api.Route {
	return &FormApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers the form and mapping routes
func (h *FormApi) Setup(app *fiber.App) {
	group := app.Group("/api/kobo/forms", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Post("/", h.controller.CreateForm)
	group.Get("/", h.controller.ListForms)
	group.Get("/:id", h.controller.GetForm)
	group.Put("/:id", h.controller.UpdateForm)
	group.Delete("/:id", h.controller.DeleteForm)

	group.Post("/:id/mappings", h.controller.CreateMapping)
	group.Get("/:id/mappings", h.controller.ListMappings)
	group.Delete("/:id/mappings/:mappingId", h.controller.DeleteMapping)
}
