package mocks

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/repository"
)

// MockTicketRepository is a function-based TicketRepository for tests.
type MockTicketRepository struct {
	CreateFunc  func(ctx context.Context, ticket *domain.Ticket) error
	UpdateFunc  func(ctx context.Context, ticket *domain.Ticket, history []domain.TicketHistory) error
	GetByIDFunc func(ctx context.Context, id int64) (*domain.Ticket, error)
	ListFunc    func(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error)
	CountFunc   func(ctx context.Context, filter repository.TicketFilter) (int64, error)
	StatsFunc   func(ctx context.Context) (domain.TicketStats, error)
}

// Create implements repository.TicketRepository.
func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, ticket)
	}
	return errors.New("CreateFunc not implemented")
}

// Update implements repository.TicketRepository.
func (m *MockTicketRepository) Update(ctx context.Context, ticket *domain.Ticket, history []domain.TicketHistory) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, ticket, history)
	}
	return errors.New("UpdateFunc not implemented")
}

// GetByID implements repository.TicketRepository.
func (m *MockTicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, errors.New("GetByIDFunc not implemented")
}

// List implements repository.TicketRepository.
func (m *MockTicketRepository) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, errors.New("ListFunc not implemented")
}

// Count implements repository.TicketRepository.
func (m *MockTicketRepository) Count(ctx context.Context, filter repository.TicketFilter) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, filter)
	}
	return 0, errors.New("CountFunc not implemented")
}

// Stats implements repository.TicketRepository.
func (m *MockTicketRepository) Stats(ctx context.Context) (domain.TicketStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return domain.TicketStats{}, errors.New("StatsFunc not implemented")
}

// MockTicketHistoryRepository is a function-based TicketHistoryRepository.
type MockTicketHistoryRepository struct {
	CreateFunc       func(ctx context.Context, history *domain.TicketHistory) error
	ListByTicketFunc func(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error)
}

// Create implements repository.TicketHistoryRepository.
func (m *MockTicketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, history)
	}
	return errors.New("CreateFunc not implemented")
}

// ListByTicket implements repository.TicketHistoryRepository.
func (m *MockTicketHistoryRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	if m.ListByTicketFunc != nil {
		return m.ListByTicketFunc(ctx, ticketID)
	}
	return nil, errors.New("ListByTicketFunc not implemented")
}
