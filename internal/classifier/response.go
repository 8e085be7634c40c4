package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// BuildPrompt embeds description verbatim in the classification instruction.
func BuildPrompt(description string) string {
	return fmt.Sprintf(`You are an AI support assistant. Classify the following ticket description into a category and priority.

Categories: %s
Priorities: %s

Description: "%s"

Respond ONLY with a valid JSON object in the following format:
{
    "category": "...",
    "priority": "..."
}`, joinValues(domain.Categories()), joinValues(domain.Priorities()), description)
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// ParseResponse extracts a classification from raw model output. Missing keys
// and out-of-set strings fall back to general/medium independently. Output
// that is not a JSON object, or a key holding anything but a string
// (null included), is an error.
func ParseResponse(raw string) (domain.ClassificationResult, error) {
	text := stripCodeFence(raw)

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("parse classification response: %w (response: %s)", err, truncate(text, 256))
	}
	if payload == nil {
		return domain.ClassificationResult{}, fmt.Errorf("parse classification response: not a json object (response: %s)", truncate(text, 256))
	}

	rawCategory, err := stringField(payload, "category", string(domain.TicketCategoryGeneral))
	if err != nil {
		return domain.ClassificationResult{}, err
	}
	rawPriority, err := stringField(payload, "priority", string(domain.TicketPriorityMedium))
	if err != nil {
		return domain.ClassificationResult{}, err
	}

	category, ok := domain.ParseCategory(rawCategory)
	if !ok {
		category = domain.TicketCategoryGeneral
	}
	priority, ok := domain.ParsePriority(rawPriority)
	if !ok {
		priority = domain.TicketPriorityMedium
	}
	return domain.ClassificationResult{SuggestedCategory: category, SuggestedPriority: priority}, nil
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// stringField returns payload[key], or fallback when the key is absent.
func stringField(payload map[string]any, key, fallback string) (string, error) {
	val, exists := payload[key]
	if !exists {
		return fallback, nil
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("parse classification response: %q is %T, not a string", key, val)
	}
	return s, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("... [truncated, total_length=%d]", len(s))
}
