package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

type sqliteTicketHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteTicketHistoryRepository builds the sqlite history repository.
func NewSQLiteTicketHistoryRepository(db *sql.DB) TicketHistoryRepository {
	return &sqliteTicketHistoryRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// sqliteExecer is satisfied by both *sql.DB and *sql.Tx.
type sqliteExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *sqliteTicketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	return insertSQLiteHistory(ctx, r.db, r.now(), history)
}

func insertSQLiteHistory(ctx context.Context, ex sqliteExecer, now time.Time, history *domain.TicketHistory) error {
	res, err := ex.ExecContext(ctx, `
        INSERT INTO ticket_history (ticket_id, change_type, old_value, new_value, created_at)
        VALUES (?,?,?,?,?)`,
		history.TicketID,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
		now.Format(sqliteTimeLayout),
	)
	if err != nil {
		return translateSQLiteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	history.ID = id
	history.CreatedAt = now.Truncate(time.Microsecond)
	return nil
}

func (r *sqliteTicketHistoryRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, ticket_id, change_type, old_value, new_value, created_at
        FROM ticket_history WHERE ticket_id=? ORDER BY created_at ASC, id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketHistory{}
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
