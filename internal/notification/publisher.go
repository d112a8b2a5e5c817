// Package notification delivers engine notifications once a cascade has committed.
package notification

import (
	"context"
	"fmt"

	"matrix/internal/domain"
	"matrix/pkg/logger"
)

// Publisher hands committed notifications to whatever delivers them to users.
type Publisher interface {
	Publish(ctx context.Context, notifications []domain.Notification) error
}

// Message renders the human-readable text for a notification.
func Message(n domain.Notification) string {
	switch n.Kind {
	case domain.NotifyTierActivated:
		return fmt.Sprintf("Tier %d activated for %s.", n.Tier, n.Amount)
	case domain.NotifyPayout:
		return fmt.Sprintf("You received %s from slot %d of your tier %d table.", n.Amount, n.Slot, n.Tier)
	case domain.NotifySpillover:
		return fmt.Sprintf("Participant %d was placed in your tier %d table from below.", n.RelatedID, n.Tier)
	case domain.NotifyReinjection:
		return fmt.Sprintf("Your tier %d table cycled; %s was placed with participant %d.", n.Tier, n.Amount, n.RelatedID)
	case domain.NotifyCycleClosed:
		return fmt.Sprintf("Your tier %d table completed cycle %d.", n.Tier, n.Cycle)
	case domain.NotifyAutoUpgrade:
		return fmt.Sprintf("Tier %d was activated automatically from your earnings.", n.Tier)
	default:
		return fmt.Sprintf("Event: %s", n.Kind)
	}
}

// LogPublisher writes each notification to the service log.
type LogPublisher struct {
	logger logger.Logger
}

func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log}
}

func (p *LogPublisher) Publish(ctx context.Context, notifications []domain.Notification) error {
	for _, n := range notifications {
		p.logger.Info("Notification Sent", map[string]interface{}{
			"notification_id": n.ID.String(),
			"event_id":        n.EventID.String(),
			"participant_id":  n.ParticipantID,
			"type":            string(n.Kind),
			"tier":            n.Tier,
			"amount":          n.Amount.String(),
			"message":         Message(n),
		})
	}
	return nil
}
