package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// sqliteTimeLayout is fixed-width so lexical ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

type sqliteTicketRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteTicketRepository builds a ticket repository on a sqlite handle.
func NewSQLiteTicketRepository(db *sql.DB) TicketRepository {
	return &sqliteTicketRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *sqliteTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO tickets (title, description, category, priority, status, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?)`,
		ticket.Title,
		ticket.Description,
		string(ticket.Category),
		string(ticket.Priority),
		string(ticket.Status),
		now.Format(sqliteTimeLayout),
		now.Format(sqliteTimeLayout),
	)
	if err != nil {
		return translateSQLiteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ticket.ID = id
	ticket.CreatedAt = now.Truncate(time.Microsecond)
	ticket.UpdatedAt = ticket.CreatedAt
	return nil
}

func (r *sqliteTicketRepository) Update(ctx context.Context, ticket *domain.Ticket, history []domain.TicketHistory) error {
	now := r.now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ticket update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
        UPDATE tickets SET category=?, priority=?, status=?, updated_at=? WHERE id=?`,
		string(ticket.Category),
		string(ticket.Priority),
		string(ticket.Status),
		now.Format(sqliteTimeLayout),
		ticket.ID,
	)
	if err != nil {
		return translateSQLiteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	for i := range history {
		history[i].TicketID = ticket.ID
		if err := insertSQLiteHistory(ctx, tx, now, &history[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ticket update: %w", err)
	}
	ticket.UpdatedAt = now.Truncate(time.Microsecond)
	return nil
}

func (r *sqliteTicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id)
	ticket, err := scanSQLiteTicket(row)
	if err != nil {
		return nil, translateSQLiteError(err)
	}
	return ticket, nil
}

func (r *sqliteTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := whereClause(filter, sqlitePlaceholder)
	limit, offset := pageBounds(filter)
	query := fmt.Sprintf(`SELECT %s FROM tickets%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanSQLiteTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *sqliteTicketRepository) Count(ctx context.Context, filter TicketFilter) (int64, error) {
	where, args := whereClause(filter, sqlitePlaceholder)
	var total int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`+where, args...).Scan(&total)
	return total, err
}

func (r *sqliteTicketRepository) Stats(ctx context.Context) (domain.TicketStats, error) {
	stats := domain.NewTicketStats()

	const totalsQuery = `
        SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END), 0) FROM tickets`
	if err := r.db.QueryRowContext(ctx, totalsQuery).Scan(&stats.TotalTickets, &stats.OpenTickets); err != nil {
		return stats, fmt.Errorf("ticket totals: %w", err)
	}

	const avgQuery = `
        SELECT COALESCE(AVG(day_count), 0.0) FROM (
            SELECT COUNT(*) AS day_count FROM tickets GROUP BY substr(created_at, 1, 10)
        )`
	if err := r.db.QueryRowContext(ctx, avgQuery).Scan(&stats.AvgTicketsPerDay); err != nil {
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

func (r *sqliteTicketRepository) groupCounts(ctx context.Context, column string, set func(string, int64)) error {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM tickets GROUP BY %s`, column, column))
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket                     domain.Ticket
		category, priority, status string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&category,
		&priority,
		&status,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Category = domain.TicketCategory(category)
	ticket.Priority = domain.TicketPriority(priority)
	ticket.Status = domain.TicketStatus(status)
	return &ticket, nil
}

func sqlitePlaceholder(int) string {
	return "?"
}

func translateSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s", ErrConstraintViolation, sqliteErr.Error())
	}
	return err
}
