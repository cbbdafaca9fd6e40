package ticket

import (
	"go-kobo-connect/internal/common/api"
	"go-kobo-connect/internal/config"
	"go-kobo-connect/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type TicketApi struct {
	controller *TicketController
	config     *config.Config
}

func NewTicketApi(controller *TicketController, config *config.Config) api.Route {
	return &TicketApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers the ticket routes
func (h *TicketApi) Setup(app *fiber.App) {
	group := app.Group("/api/tickets", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Get("/", h.controller.ListTickets)
	group.Get("/:id", h.controller.GetTicket)
}
