package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/core/tracking"
)

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

type reportRecorder interface {
	RecordReport(ctx context.Context, r tracking.Report) error
}

// NewBusReport returns the report of bus `id` at (lat, lng), recorded at `recordedAt` (now if omitted).
func NewBusReport(id, routeID string, lat, lng float64, recordedAt ...time.Time) tracking.Report {
	tstamp := time.Now().UTC()
	if len(recordedAt) > 0 {
		tstamp = recordedAt[0].UTC()
	}
	return tracking.Report{
		EntityID:   id,
		Kind:       tracking.KindBus,
		RouteID:    routeID,
		Lat:        core.Float64Ptr(lat),
		Lng:        core.Float64Ptr(lng),
		RecordedAt: tstamp,
	}
}

func RecordReports(t *testing.T, repo reportRecorder, reports ...tracking.Report) {
	t.Helper()
	for _, r := range reports {
		if err := repo.RecordReport(context.Background(), r); err != nil {
			t.Fatalf("RecordReports() failed: %v", err)
		}
	}
}
