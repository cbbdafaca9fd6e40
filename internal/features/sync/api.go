package sync

import (
	"go-kobo-connect/internal/common/api"
	"go-kobo-connect/internal/config"
	"go-kobo-connect/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type SyncApi struct {
	controller *SyncController
	config     *config.Config
}

func NewSyncApi(controller *SyncController, config *config.Config) api.Route {
	return &SyncApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers the sync routes under the form resource
func (h *SyncApi) Setup(app *fiber.App) {
	group := app.Group("/api/kobo/forms", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Post("/:id/sync", h.controller.StartSync)
	group.Post("/:id/sync/submissions/:submissionId", h.controller.SyncSubmission)
	group.Get("/:id/logs", h.controller.ListLogs)
	group.Get("/:id/logs/export", h.controller.ExportLogs)
	group.Post("/:id/mappings/generate", h.controller.GenerateMappings)
	group.Get("/:id/mappings/suggest", h.controller.SuggestUnmapped)
}
