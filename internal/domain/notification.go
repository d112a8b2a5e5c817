package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind names an outbound engine event.
type NotificationKind string

const (
	NotifyTierActivated NotificationKind = "tier_activated"
	NotifyPayout        NotificationKind = "payout_received"
	NotifySpillover     NotificationKind = "spillover"
	NotifyReinjection   NotificationKind = "reinjection"
	NotifyCycleClosed   NotificationKind = "table_cycle_closed"
	NotifyAutoUpgrade   NotificationKind = "auto_upgrade"
)

// Notification is produced by the engine; delivery is someone else's job.
type Notification struct {
	ID            uuid.UUID        `json:"id"`
	EventID       uuid.UUID        `json:"event_id"`
	Kind          NotificationKind `json:"kind"`
	ParticipantID int64            `json:"participant_id"`
	Tier          int              `json:"tier"`
	Amount        Money            `json:"amount"`
	Slot          int              `json:"slot,omitempty"`
	Cycle         int              `json:"cycle,omitempty"`
	RelatedID     int64            `json:"related_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
