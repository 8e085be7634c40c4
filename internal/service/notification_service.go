package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
)

const slackPostTimeout = 10 * time.Second

// StatsInvalidator drops cached ticket aggregates.
type StatsInvalidator interface {
	InvalidateStats(ctx context.Context) error
}

// NotificationService reacts to ticket events: it alerts Slack about urgent
// tickets and keeps the stats cache honest.
type NotificationService struct {
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	webhookURL  string
	minPriority domain.TicketPriority
	stats       StatsInvalidator
	inflight    sync.WaitGroup
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig, stats StatsInvalidator) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	minPriority, ok := domain.ParsePriority(cfg.MinPriority)
	if !ok {
		if cfg.MinPriority != "" {
			logger.Warn("unknown notification priority threshold; using critical", zap.String("min_priority", cfg.MinPriority))
		}
		minPriority = domain.TicketPriorityCritical
	}
	return &NotificationService{
		dispatcher:  dispatcher,
		logger:      logger,
		webhookURL:  strings.TrimSpace(cfg.SlackWebhookURL),
		minPriority: minPriority,
		stats:       stats,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.handleTicketUpdated)
	n.dispatcher.Subscribe(events.EventTicketClassified, n.handleTicketClassified)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.invalidateStats(ctx)

	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok || !n.shouldAlert(payload.Priority) {
		return nil
	}
	n.postWebhook(ctx, event.TicketID, &slack.WebhookMessage{
		Text: fmt.Sprintf("New %s ticket #%d: %s", payload.Priority, event.TicketID, payload.Title),
		Attachments: []slack.Attachment{{
			Color: colorFor(payload.Priority),
			Fields: []slack.AttachmentField{
				{Title: "Category", Value: string(payload.Category), Short: true},
				{Title: "Priority", Value: string(payload.Priority), Short: true},
			},
		}},
	})
	return nil
}

func (n *NotificationService) handleTicketUpdated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketUpdated", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.invalidateStats(ctx)

	payload, ok := event.Payload.(events.TicketUpdatedPayload)
	if !ok || !n.shouldAlert(payload.Priority) {
		return nil
	}
	fields := make([]slack.AttachmentField, 0, len(payload.Changes))
	for _, change := range payload.Changes {
		fields = append(fields, slack.AttachmentField{
			Title: string(change.Field),
			Value: change.OldValue + " → " + change.NewValue,
			Short: true,
		})
	}
	n.postWebhook(ctx, event.TicketID, &slack.WebhookMessage{
		Text:        fmt.Sprintf("Ticket #%d updated (%s): %s", event.TicketID, payload.Priority, payload.Title),
		Attachments: []slack.Attachment{{Color: colorFor(payload.Priority), Fields: fields}},
	})
	return nil
}

func (n *NotificationService) handleTicketClassified(ctx context.Context, event events.Event) error {
	n.logger.Debug("TicketClassified", zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) shouldAlert(priority domain.TicketPriority) bool {
	return n.webhookURL != "" && priority.Rank() >= n.minPriority.Rank()
}

func (n *NotificationService) invalidateStats(ctx context.Context) {
	if n.stats == nil {
		return
	}
	if err := n.stats.InvalidateStats(ctx); err != nil {
		n.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}

// postWebhook sends msg in the background so a slow Slack never holds up the
// request that published the event. The post outlives ctx's cancellation but
// is bounded by slackPostTimeout.
func (n *NotificationService) postWebhook(ctx context.Context, ticketID int64, msg *slack.WebhookMessage) {
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), slackPostTimeout)
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		defer cancel()
		if err := slack.PostWebhookContext(postCtx, n.webhookURL, msg); err != nil {
			n.logger.Warn("slack alert failed", zap.Int64("ticket_id", ticketID), zap.Error(err))
		}
	}()
}

// Wait blocks until every in-flight Slack alert has finished.
func (n *NotificationService) Wait() {
	n.inflight.Wait()
}

func colorFor(priority domain.TicketPriority) string {
	switch priority {
	case domain.TicketPriorityCritical:
		return "danger"
	case domain.TicketPriorityHigh:
		return "warning"
	default:
		return "good"
	}
}
