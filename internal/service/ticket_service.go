package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/ticket-triage/internal/cache"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/repository"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util/errorutil"
)

// StatsCacheKey is the cache key holding the serialized TicketStats.
const StatsCacheKey = "tickets:stats"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrClassificationUnavailable is returned when no suggestion could be produced.
var ErrClassificationUnavailable = apperrors.NewUnavailable(
	"CLASSIFICATION_UNAVAILABLE",
	"ai classification is unavailable; choose category and priority manually",
)

// TicketClassifier proposes a category and priority for a description.
// ok=false means no suggestion.
type TicketClassifier interface {
	Classify(ctx context.Context, description string) (result domain.ClassificationResult, ok bool)
	ProviderName() string
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	classifier TicketClassifier
	dispatcher events.Dispatcher
	cache      cache.Cacher
	statsTTL   time.Duration
	metrics    *observability.Metrics
	logger     *zap.Logger
	sf         singleflight.Group
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Classifier  TicketClassifier
	Dispatcher  events.Dispatcher
	Cache       cache.Cacher
	StatsTTL    time.Duration
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// TicketCreateInput describes ticket creation payload. Nil enum fields take
// their defaults.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    *string
	Priority    *string
	Status      *string
}

// TicketUpdateInput carries the mutable fields. Nil fields are left unchanged.
type TicketUpdateInput struct {
	Category *string
	Priority *string
	Status   *string
}

// TicketListFilter describes list query parameters as received from callers.
type TicketListFilter struct {
	Category *string
	Priority *string
	Status   *string
	Search   *string
	Page     int
	PageSize int
}

// TicketPage is one page of tickets with the total match count.
type TicketPage struct {
	Items    []domain.Ticket
	Total    int64
	Page     int
	PageSize int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		classifier: deps.Classifier,
		dispatcher: deps.Dispatcher,
		cache:      deps.Cache,
		statsTTL:   deps.StatsTTL,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// CreateTicket validates and stores a new ticket.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
	}

	details := map[string]any{}
	switch {
	case ticket.Title == "":
		details["title"] = "this field is required"
	case utf8.RuneCountInString(ticket.Title) > domain.TitleMaxLength:
		details["title"] = "title cannot exceed 200 characters"
	}
	if ticket.Description == "" {
		details["description"] = "this field is required"
	}
	applyEnums(ticket, input.Category, input.Priority, input.Status, details)
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}
	ticket.ApplyDefaults()

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, translateRepoError(err, "ticket")
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, events.TicketCreatedPayload{
		Title:    ticket.Title,
		Category: ticket.Category,
		Priority: ticket.Priority,
	}))
	return ticket, nil
}

// ListTickets returns a filtered page, newest first.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) (*TicketPage, error) {
	details := map[string]any{}
	requested := &domain.Ticket{}
	applyEnums(requested, filter.Category, filter.Priority, filter.Status, details)
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid filter", details)
	}

	repoFilter := repository.TicketFilter{Search: filter.Search}
	if filter.Category != nil {
		repoFilter.Category = &requested.Category
	}
	if filter.Priority != nil {
		repoFilter.Priority = &requested.Priority
	}
	if filter.Status != nil {
		repoFilter.Status = &requested.Status
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	repoFilter.Limit = pageSize
	repoFilter.Offset = (page - 1) * pageSize

	items, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	total, err := s.tickets.Count(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &TicketPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, "ticket")
	}
	return ticket, nil
}

// UpdateTicket changes category, priority and status. Each changed field is
// recorded in the ticket history in the same transaction as the update. An
// input with no changes returns the ticket untouched.
func (s *TicketService) UpdateTicket(ctx context.Context, id int64, input TicketUpdateInput) (*domain.Ticket, error) {
	details := map[string]any{}
	requested := &domain.Ticket{}
	applyEnums(requested, input.Category, input.Priority, input.Status, details)
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, "ticket")
	}

	var changes []events.FieldChange
	if input.Category != nil && requested.Category != ticket.Category {
		changes = append(changes, events.FieldChange{Field: domain.ChangeTypeCategory, OldValue: string(ticket.Category), NewValue: string(requested.Category)})
		ticket.Category = requested.Category
	}
	if input.Priority != nil && requested.Priority != ticket.Priority {
		changes = append(changes, events.FieldChange{Field: domain.ChangeTypePriority, OldValue: string(ticket.Priority), NewValue: string(requested.Priority)})
		ticket.Priority = requested.Priority
	}
	if input.Status != nil && requested.Status != ticket.Status {
		changes = append(changes, events.FieldChange{Field: domain.ChangeTypeStatus, OldValue: string(ticket.Status), NewValue: string(requested.Status)})
		ticket.Status = requested.Status
	}
	if len(changes) == 0 {
		return ticket, nil
	}

	history := make([]domain.TicketHistory, 0, len(changes))
	for _, change := range changes {
		history = append(history, domain.TicketHistory{
			ChangeType: change.Field,
			OldValue:   change.OldValue,
			NewValue:   change.NewValue,
		})
	}
	if err := s.tickets.Update(ctx, ticket, history); err != nil {
		return nil, translateRepoError(err, "ticket")
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketUpdated, ticket.ID, events.TicketUpdatedPayload{
		Title:    ticket.Title,
		Priority: ticket.Priority,
		Changes:  changes,
	}))
	return ticket, nil
}

// ListHistory returns the audit trail for a ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, id int64) ([]domain.TicketHistory, error) {
	if _, err := s.tickets.GetByID(ctx, id); err != nil {
		return nil, translateRepoError(err, "ticket")
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

// Stats returns dashboard aggregates, served from cache when available.
func (s *TicketService) Stats(ctx context.Context) (domain.TicketStats, error) {
	stats, err := cache.FindAndCache(ctx, s.cache, &s.sf, StatsCacheKey, s.statsTTL, s.logger, s.computeStats)
	if err != nil {
		return stats, apperrors.NewInternalError(err)
	}
	return stats, nil
}

// RefreshStats recomputes stats and overwrites the cached copy.
func (s *TicketService) RefreshStats(ctx context.Context) error {
	_, err := cache.Refresh(ctx, s.cache, StatsCacheKey, s.statsTTL, s.computeStats)
	return err
}

// InvalidateStats drops the cached stats so the next read recomputes them.
func (s *TicketService) InvalidateStats(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, StatsCacheKey)
}

func (s *TicketService) computeStats(ctx context.Context) (domain.TicketStats, error) {
	stats, err := s.tickets.Stats(ctx)
	if err != nil {
		return stats, err
	}
	stats.AvgTicketsPerDay = math.Round(stats.AvgTicketsPerDay*10) / 10
	return stats, nil
}

// Classify asks the configured model for a category and priority suggestion.
func (s *TicketService) Classify(ctx context.Context, description string) (domain.ClassificationResult, error) {
	if strings.TrimSpace(description) == "" {
		return domain.ClassificationResult{}, apperrors.NewValidationError("invalid payload", map[string]any{
			"description": "this field is required",
		})
	}
	if s.classifier == nil {
		s.metrics.RecordClassification("disabled", false)
		return domain.ClassificationResult{}, ErrClassificationUnavailable
	}

	result, ok := s.classifier.Classify(ctx, description)
	provider := s.classifier.ProviderName()
	s.metrics.RecordClassification(provider, ok)
	if !ok {
		return domain.ClassificationResult{}, ErrClassificationUnavailable
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketClassified, 0, events.TicketClassifiedPayload{
		Provider:          provider,
		SuggestedCategory: result.SuggestedCategory,
		SuggestedPriority: result.SuggestedPriority,
	}))
	return result, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// applyEnums copies the provided enum values onto ticket, recording invalid
// ones in details. Values must match exactly.
func applyEnums(ticket *domain.Ticket, category, priority, status *string, details map[string]any) {
	if category != nil {
		c := domain.TicketCategory(*category)
		if !c.Valid() {
			details["category"] = invalidChoice(*category)
		}
		ticket.Category = c
	}
	if priority != nil {
		p := domain.TicketPriority(*priority)
		if !p.Valid() {
			details["priority"] = invalidChoice(*priority)
		}
		ticket.Priority = p
	}
	if status != nil {
		st := domain.TicketStatus(*status)
		if !st.Valid() {
			details["status"] = invalidChoice(*status)
		}
		ticket.Status = st
	}
}

func invalidChoice(value string) string {
	return `"` + value + `" is not a valid choice`
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func translateRepoError(err error, resource string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, nil)
	case errors.Is(err, repository.ErrConstraintViolation):
		return apperrors.NewValidationError("value rejected by storage", map[string]any{"reason": err.Error()})
	default:
		return apperrors.NewInternalError(err)
	}
}
