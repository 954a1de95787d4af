package cli

import (
	"fmt"
	"time"

	"github.com/uwflow/uwflow/internal/api"
	"github.com/uwflow/uwflow/internal/config"
	"github.com/uwflow/uwflow/internal/history"
)

// cycleLayouts are the ISO 8601 forms accepted by --cycle.
var cycleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
}

// parseCycle reads an ISO 8601 cycle; times without a zone are UTC. An empty
// string is the zero time.
func parseCycle(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range cycleLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid cycle %q: want ISO 8601, e.g. 2024-05-06T12", s)
}

// openHistory opens the history database under the uwflow home.
func openHistory() (*history.DB, error) {
	return history.Open(config.Home())
}

// newService returns an api service recording to db. A nil db records
// nothing.
func newService(db *history.DB) *api.Service {
	if db == nil {
		return api.NewService(logger, nil)
	}
	return api.NewService(logger, db)
}
