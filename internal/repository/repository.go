package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrConstraintViolation is returned when the database rejects a value
	// through a CHECK or length constraint.
	ErrConstraintViolation = errors.New("value violates storage constraint")
)

const defaultListLimit = 20

// TicketFilter captures list parameters. Nil fields are not filtered on.
type TicketFilter struct {
	Category *domain.TicketCategory
	Priority *domain.TicketPriority
	Status   *domain.TicketStatus
	Search   *string
	Limit    int
	Offset   int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes category, priority and status and appends history for the
	// ticket in one transaction. Nothing is stored when any write fails.
	Update(ctx context.Context, ticket *domain.Ticket, history []domain.TicketHistory) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int64, error)
	Stats(ctx context.Context) (domain.TicketStats, error)
}

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error)
}

// whereClause renders the filter as a WHERE clause using placeholder(n) for
// the n-th (1-based) argument.
func whereClause(filter TicketFilter, placeholder func(int) string) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		clauses = append(clauses, "category="+placeholder(len(args)))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		clauses = append(clauses, "priority="+placeholder(len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, "status="+placeholder(len(args)))
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		search := "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(*filter.Search))) + "%"
		args = append(args, search)
		p := placeholder(len(args))
		args = append(args, search)
		p2 := placeholder(len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(title) LIKE %s ESCAPE '\' OR LOWER(description) LIKE %s ESCAPE '\')`, p, p2))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// likeEscaper makes LIKE metacharacters in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func pageBounds(filter TicketFilter) (int, int) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
