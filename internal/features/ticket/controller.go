package ticket

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TicketController struct {
	Repo TicketRepository
}

func NewTicketController(repo TicketRepository) *TicketController {
	return &TicketController{
		Repo: repo,
	}
}

// ListTickets returns tickets with basic filtering.
func (ctrl *TicketController) ListTickets(c *fiber.Ctx) error {
	filter := bson.M{}
	if status := c.Query("status"); status != "" {
		filter["status"] = status
	}
	if channel := c.Query("channel"); channel != "" {
		filter["channel"] = channel
	}

	page := int64(c.QueryInt("page", 1))
	limit := int64(c.QueryInt("limit", 20))

	tickets, total, err := ctrl.Repo.FindAll(c.Context(), filter, page, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data":  tickets,
		"total": total,
	})
}

// GetTicket returns a ticket by id.
func (ctrl *TicketController) GetTicket(c *fiber.Ctx) error {
	oid, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ticket id",
		})
	}

	t, err := ctrl.Repo.FindByID(c.Context(), oid)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrNotFound) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(t)
}
