package notify

import "time"

// MaxHistory is the number of records a History keeps by default.
const MaxHistory = 15

type Record struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	VehicleID int       `json:"vehicleId,omitempty"`
	Kind      Kind      `json:"kind,omitempty"`
}

// History is a most-recent-first list that drops its oldest records once it
// exceeds its limit.
type History struct {
	records []Record
	limit   int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = MaxHistory
	}
	return &History{records: make([]Record, 0, limit+1), limit: limit}
}

func (h *History) Push(r Record) {
	h.records = append(h.records, Record{})
	copy(h.records[1:], h.records)
	h.records[0] = r
	if len(h.records) > h.limit {
		h.records = h.records[:h.limit]
	}
}

// Records returns a copy, newest first.
func (h *History) Records() []Record {
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

func (h *History) Len() int { return len(h.records) }
