package domain

import (
	"strings"
	"time"
)

// TitleMaxLength bounds Ticket.Title in characters.
const TitleMaxLength = 200

// TicketCategory groups tickets by subject area.
type TicketCategory string

const (
	TicketCategoryBilling   TicketCategory = "billing"
	TicketCategoryTechnical TicketCategory = "technical"
	TicketCategoryAccount   TicketCategory = "account"
	TicketCategoryGeneral   TicketCategory = "general"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

var (
	categories = []TicketCategory{TicketCategoryBilling, TicketCategoryTechnical, TicketCategoryAccount, TicketCategoryGeneral}
	priorities = []TicketPriority{TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical}
	statuses   = []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed}
)

// Categories returns the allowed categories in declaration order.
func Categories() []TicketCategory { return append([]TicketCategory(nil), categories...) }

// Priorities returns the allowed priorities from lowest to highest.
func Priorities() []TicketPriority { return append([]TicketPriority(nil), priorities...) }

// Valid reports whether c is one of the fixed categories.
func (c TicketCategory) Valid() bool {
	for _, candidate := range categories {
		if c == candidate {
			return true
		}
	}
	return false
}

// Valid reports whether p is one of the fixed priorities.
func (p TicketPriority) Valid() bool {
	return p.Rank() >= 0
}

// Rank orders priorities from low (0) to critical (3); -1 for unknown values.
func (p TicketPriority) Rank() int {
	for i, candidate := range priorities {
		if p == candidate {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the fixed statuses.
func (s TicketStatus) Valid() bool {
	for _, candidate := range statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// ParseCategory lowercases raw and reports whether it names a known category.
// Surrounding whitespace is not stripped and makes the value unknown.
func ParseCategory(raw string) (TicketCategory, bool) {
	c := TicketCategory(strings.ToLower(raw))
	return c, c.Valid()
}

// ParsePriority lowercases raw and reports whether it names a known priority.
func ParsePriority(raw string) (TicketPriority, bool) {
	p := TicketPriority(strings.ToLower(raw))
	return p, p.Valid()
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          int64
	Title       string
	Description string
	Category    TicketCategory
	Priority    TicketPriority
	Status      TicketStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ApplyDefaults fills empty enum fields with their defaults.
func (t *Ticket) ApplyDefaults() {
	if t.Category == "" {
		t.Category = TicketCategoryGeneral
	}
	if t.Priority == "" {
		t.Priority = TicketPriorityMedium
	}
	if t.Status == "" {
		t.Status = TicketStatusOpen
	}
}
