package domain

// ClassificationResult is a suggested category and priority for a ticket
// description. It is never persisted; callers decide whether to apply it.
type ClassificationResult struct {
	SuggestedCategory TicketCategory `json:"suggested_category"`
	SuggestedPriority TicketPriority `json:"suggested_priority"`
}
