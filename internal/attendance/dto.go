package attendance

import (
	"time"
)

// MarkDTO is the payload for POST /attendance/mark. The device id may
// come from the body or the X-Device-ID header; the body wins.
type MarkDTO struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id,omitempty"`
}

func (d MarkDTO) Validate() error {
	if !ValidType(d.Type) {
		return ErrInvalidType
	}
	return nil
}

// historyDateLayouts are accepted for the from/to query parameters.
var historyDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
}

// ParseHistoryRange converts the from/to query strings into an inclusive
// window. Invalid or missing dates fall back to an unbounded-from/now-to
// default instead of erroring; clients sending garbage get their full
// history rather than a 400.
func ParseHistoryRange(fromStr, toStr string) (time.Time, time.Time) {
	from := time.Time{}
	if t, ok := parseHistoryDate(fromStr); ok {
		from = t
	}

	to := time.Now()
	if t, ok := parseHistoryDate(toStr); ok {
		// Make a bare date inclusive through end of day.
		if len(toStr) == len("2006-01-02") {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		to = t
	}

	return from, to
}

func parseHistoryDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range historyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
