package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

const ticketColumns = `id, title, description, category, priority, status, created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, category, priority, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	return translatePgError(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, history []domain.TicketHistory) error {
	const query = `
        UPDATE tickets SET category=$1, priority=$2, status=$3, updated_at=NOW()
        WHERE id=$4
        RETURNING updated_at`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ticket update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var updatedAt time.Time
	err = tx.QueryRow(ctx, query,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.ID,
	).Scan(&updatedAt)
	if err != nil {
		return translatePgError(err)
	}
	for i := range history {
		history[i].TicketID = ticket.ID
		if err := insertHistory(ctx, tx, &history[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ticket update: %w", err)
	}
	ticket.UpdatedAt = updatedAt
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translatePgError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := whereClause(filter, pgPlaceholder)
	limit, offset := pageBounds(filter)
	query := fmt.Sprintf(`SELECT %s FROM tickets%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int64, error) {
	where, args := whereClause(filter, pgPlaceholder)
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`+where, args...).Scan(&total)
	return total, err
}

func (r *ticketRepository) Stats(ctx context.Context) (domain.TicketStats, error) {
	stats := domain.NewTicketStats()

	const totalsQuery = `
        SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'open') FROM tickets`
	if err := r.pool.QueryRow(ctx, totalsQuery).Scan(&stats.TotalTickets, &stats.OpenTickets); err != nil {
		return stats, fmt.Errorf("ticket totals: %w", err)
	}

	if err := r.pool.QueryRow(ctx, pgAvgTicketsPerDayQuery).Scan(&stats.AvgTicketsPerDay); err != nil {
		return stats, fmt.Errorf("tickets per day: %w", err)
	}

	if err := r.groupCounts(ctx, "priority", func(key string, n int64) {
		stats.PriorityBreakdown[domain.TicketPriority(key)] = n
	}); err != nil {
		return stats, err
	}
	if err := r.groupCounts(ctx, "category", func(key string, n int64) {
		stats.CategoryBreakdown[domain.TicketCategory(key)] = n
	}); err != nil {
		return stats, err
	}
	return stats, nil
}

// groupCounts runs COUNT(*) grouped by column; column must be a trusted identifier.
func (r *ticketRepository) groupCounts(ctx context.Context, column string, set func(string, int64)) error {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM tickets GROUP BY %s`, column, column))
	if err != nil {
		return fmt.Errorf("%s breakdown: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("%s breakdown: %w", column, err)
		}
		set(key, n)
	}
	return rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func pgPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// translatePgError maps driver errors onto repository sentinels.
// pgAvgTicketsPerDayQuery buckets by UTC calendar day regardless of the
// session time zone.
const pgAvgTicketsPerDayQuery = `
        SELECT COALESCE(AVG(day_count), 0)::float8 FROM (
            SELECT COUNT(*) AS day_count FROM tickets
            GROUP BY DATE(created_at AT TIME ZONE 'UTC')
        ) per_day`

func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23514", "22001", "23503": // check, string truncation, foreign key
			return fmt.Errorf("%w: %s", ErrConstraintViolation, pgErr.Message)
		}
	}
	return err
}
