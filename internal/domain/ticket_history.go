package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeCategory TicketChangeType = "category_change"
	ChangeTypePriority TicketChangeType = "priority_change"
	ChangeTypeStatus   TicketChangeType = "status_change"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID         int64
	TicketID   int64
	ChangeType TicketChangeType
	OldValue   string
	NewValue   string
	CreatedAt  time.Time
}
