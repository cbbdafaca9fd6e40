package sync

import (
	"context"
	"strings"

	"go-kobo-connect/internal/features/form"
	"go-kobo-connect/internal/features/location"
	"go-kobo-connect/internal/features/ticket"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// locationCodeFields and locationNameFields are the submission paths probed
// for the geographic reference, most specific first. Codes are matched
// exactly, names case-insensitively.
var locationCodeFields = []string{
	"group_geo/district",
	"group_geo/sous_prefecture",
	"group_geo/prefecture",
	"group_geo/region",
}

var locationNameFields = []string{
	"group_geo/district",
	"group_geo/sous_prefecture",
	"group_geo/prefecture",
	"group_geo/region",
}

// EntityResolver locates the ticket a submission belongs to and resolves
// auxiliary references from submission fields
type EntityResolver struct {
	tickets   ticket.TicketRepository
	locations location.LocationRepository
	codeField string // kobo field mapped onto the ticket code, "" when unmapped
	logger    *zap.Logger
}

// NewEntityResolver derives the code-field source from the configured
// mappings: the last mapping targeting "code" wins, matching mapper order.
func NewEntityResolver(tickets ticket.TicketRepository, locations location.LocationRepository, mappings []form.FieldMapping, logger *zap.Logger) *EntityResolver {
	codeField := ""
	for _, m := range mappings {
		if strings.TrimSpace(m.TicketField) == "code" {
			codeField = m.KoboField
		}
	}
	return &EntityResolver{
		tickets:   tickets,
		locations: locations,
		codeField: codeField,
		logger:    logger,
	}
}

// FindTicket returns the existing ticket for a submission, or nil when the
// caller should create a new one. Lookup order: business code, then the
// remote unique identifiers.
func (r *EntityResolver) FindTicket(ctx context.Context, sub Submission) (*ticket.Ticket, error) {
	if r.codeField != "" {
		if code, ok := sub.String(r.codeField); ok && code != "" {
			t, err := r.tickets.FindByCode(ctx, code)
			if err != nil {
				return nil, err
			}
			if t != nil {
				return t, nil
			}
		}
	}

	uuid := sub.UUID()
	instanceID := sub.InstanceID()
	if uuid == "" && instanceID == "" {
		return nil, nil
	}
	return r.tickets.FindByKoboRef(ctx, uuid, instanceID)
}

// ResolveLocation probes the geographic submission fields and returns the id
// of the first matching location. Absence of a match, or any lookup failure,
// yields nil: location resolution never fails a row.
func (r *EntityResolver) ResolveLocation(ctx context.Context, sub Submission) *primitive.ObjectID {
	if r.locations == nil {
		return nil
	}

	for _, field := range locationCodeFields {
		value, ok := sub.String(field)
		if !ok || value == "" {
			continue
		}
		loc, err := r.locations.FindByCode(ctx, value)
		if err != nil {
			r.logger.Warn("Location code lookup failed",
				zap.String("field", field), zap.Error(err))
			continue
		}
		if loc != nil {
			return &loc.ID
		}
	}

	for _, field := range locationNameFields {
		value, ok := sub.String(field)
		if !ok || value == "" {
			continue
		}
		loc, err := r.locations.FindByName(ctx, value)
		if err != nil {
			r.logger.Warn("Location name lookup failed",
				zap.String("field", field), zap.Error(err))
			continue
		}
		if loc != nil {
			return &loc.ID
		}
	}

	return nil
}
