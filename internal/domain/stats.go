package domain

// TicketStats aggregates ticket counts for the dashboard.
type TicketStats struct {
	TotalTickets      int64                    `json:"total_tickets"`
	OpenTickets       int64                    `json:"open_tickets"`
	AvgTicketsPerDay  float64                  `json:"avg_tickets_per_day"`
	PriorityBreakdown map[TicketPriority]int64 `json:"priority_breakdown"`
	CategoryBreakdown map[TicketCategory]int64 `json:"category_breakdown"`
}

// NewTicketStats returns stats with every category and priority present at zero.
func NewTicketStats() TicketStats {
	stats := TicketStats{
		PriorityBreakdown: make(map[TicketPriority]int64, len(priorities)),
		CategoryBreakdown: make(map[TicketCategory]int64, len(categories)),
	}
	for _, p := range priorities {
		stats.PriorityBreakdown[p] = 0
	}
	for _, c := range categories {
		stats.CategoryBreakdown[c] = 0
	}
	return stats
}
