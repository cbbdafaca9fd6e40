package ticket

import (
	"context"
	"errors"
	"time"

	"go-kobo-connect/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EscalationRuleRepository stores the escalation rules
type EscalationRuleRepository interface {
	ListActive(ctx context.Context) ([]EscalationRule, error)
}

type EscalationRuleRepositoryImpl struct {
	collection *mongo.Collection
}

func NewEscalationRuleRepository(db *database.MongodbDB) EscalationRuleRepository {
	return &EscalationRuleRepositoryImpl{
		collection: db.DB.Collection("escalation_rules"),
	}
}

func (r *EscalationRuleRepositoryImpl) ListActive(ctx context.Context) ([]EscalationRule, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rules []EscalationRule
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// EscalationService bootstraps escalation state on tickets entering the system
type EscalationService interface {
	// BootstrapTicket evaluates active rules against a freshly created ticket
	// and records the first matching escalation, if any.
	BootstrapTicket(ctx context.Context, t *Ticket) error
}

type EscalationServiceImpl struct {
	RuleRepo   EscalationRuleRepository
	TicketRepo TicketRepository
	Logger     *zap.Logger
}

func NewEscalationService(ruleRepo EscalationRuleRepository, ticketRepo TicketRepository, logger *zap.Logger) EscalationService {
	return &EscalationServiceImpl{
		RuleRepo:   ruleRepo,
		TicketRepo: ticketRepo,
		Logger:     logger,
	}
}

func (s *EscalationServiceImpl) BootstrapTicket(ctx context.Context, t *Ticket) error {
	if t == nil || t.ID.IsZero() {
		return errors.New("escalation: ticket not persisted")
	}

	rules, err := s.RuleRepo.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if rule.Priority != nil && *rule.Priority != t.Priority {
			continue
		}

		entry := EscalationHistoryEntry{
			Level:       rule.EscalateLevel,
			EscalatedAt: time.Now(),
			Reason:      rule.Reason,
			RuleID:      rule.ID,
		}
		t.EscalationLevel = rule.EscalateLevel
		t.EscalationHistory = append(t.EscalationHistory, entry)

		err := s.TicketRepo.Update(ctx, t.ID, bson.M{
			"escalation_level":   t.EscalationLevel,
			"escalation_history": t.EscalationHistory,
		})
		if err != nil {
			return err
		}

		s.Logger.Info("Ticket escalation bootstrapped",
			zap.String("ticket_id", t.ID.Hex()),
			zap.String("rule", rule.Name),
			zap.Int("level", rule.EscalateLevel))
		return nil
	}

	return nil
}
