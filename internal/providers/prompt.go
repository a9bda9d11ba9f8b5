package providers

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// BuildPrompt renders the request as the single user turn sent to the backend.
// loc controls the time zone of the timestamp line; nil means UTC.
func BuildPrompt(req Request, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	return fmt.Sprintf("Current Time (%s): %s\n\nRole:\n%s\n\nChat History:\n%s\n\nUser Current Message:\n%s",
		loc.String(),
		now.Format("2006-01-02 15:04:05 MST"),
		req.Persona,
		strings.Join(req.History, "\n"),
		req.Message,
	)
}
