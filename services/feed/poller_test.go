package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/core/tracking"
	inmemdb "github.com/trezcool/schoolbus/storage/database/inmem"
	testutil "github.com/trezcool/schoolbus/tests"
)

type fakeSource struct {
	reports []tracking.Report
	err     error
	calls   int
}

func (s *fakeSource) Fetch(ctx context.Context) ([]tracking.Report, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.reports, nil
}

type fakeSink struct {
	mu    sync.Mutex
	syncs [][]tracking.Report
	err   error
	ch    chan struct{}
}

func (s *fakeSink) Sync(ctx context.Context, reports []tracking.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.syncs = append(s.syncs, reports)
	if s.ch != nil {
		s.ch <- struct{}{}
	}
	return nil
}

func bus(id, route string, lat, lng float64) tracking.Report {
	return tracking.Report{
		EntityID: id,
		Kind:     tracking.KindBus,
		RouteID:  route,
		Lat:      core.Float64Ptr(lat),
		Lng:      core.Float64Ptr(lng),
	}
}

func ids(reports []tracking.Report) []string {
	out := make([]string, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.EntityID)
	}
	return out
}

func TestPoller_Poll(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{}
	p := NewPoller(src, sink, testutil.NopLogger{}, time.Second, time.Second)
	ctx := context.Background()

	tests := []struct {
		name     string
		reports  []tracking.Report
		wantSync bool
		wantIDs  []string
	}{
		{name: "empty feed", wantSync: false},
		{
			name:     "first snapshot",
			reports:  []tracking.Report{bus("bus-2", "r1", 1, 1), bus("bus-1", "r1", 2, 2)},
			wantSync: true,
			wantIDs:  []string{"bus-1", "bus-2"},
		},
		{
			name:     "unchanged",
			reports:  []tracking.Report{bus("bus-1", "r1", 2, 2), bus("bus-2", "r1", 1, 1)},
			wantSync: false,
		},
		{
			name:     "moved",
			reports:  []tracking.Report{bus("bus-1", "r1", 2, 2.5), bus("bus-2", "r1", 1, 1)},
			wantSync: true,
			wantIDs:  []string{"bus-1", "bus-2"},
		},
		{
			name:     "changed route",
			reports:  []tracking.Report{bus("bus-1", "r2", 2, 2.5), bus("bus-2", "r1", 1, 1)},
			wantSync: true,
			wantIDs:  []string{"bus-1", "bus-2"},
		},
		{
			name:     "lost position",
			reports:  []tracking.Report{{EntityID: "bus-1", RouteID: "r2"}, bus("bus-2", "r1", 1, 1)},
			wantSync: true,
			wantIDs:  []string{"bus-1", "bus-2"},
		},
		{
			name:     "left the feed",
			reports:  []tracking.Report{bus("bus-2", "r1", 1, 1)},
			wantSync: true,
			wantIDs:  []string{"bus-2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src.reports = tt.reports
			before := len(sink.syncs)

			require.NoError(t, p.Poll(ctx))

			if !tt.wantSync {
				assert.Len(t, sink.syncs, before)
				return
			}
			require.Len(t, sink.syncs, before+1)
			assert.Equal(t, tt.wantIDs, ids(sink.syncs[before]))
		})
	}
}

func TestPoller_PollErrors(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{reports: []tracking.Report{bus("bus-1", "", 1, 1)}}
	sink := &fakeSink{err: tracking.ErrStopped}
	p := NewPoller(src, sink, testutil.NopLogger{}, time.Second, time.Second)

	err := p.Poll(ctx)
	assert.Equal(t, tracking.ErrStopped, errors.Cause(err))

	// a failed sync is retried on the next poll
	sink.err = nil
	require.NoError(t, p.Poll(ctx))
	assert.Len(t, sink.syncs, 1)

	src.err = errors.New("feed down")
	assert.Error(t, p.Poll(ctx))
	assert.Len(t, sink.syncs, 1)
}

func TestPoller_Run(t *testing.T) {
	src := &fakeSource{reports: []tracking.Report{bus("bus-1", "", 1, 1)}}
	sink := &fakeSink{ch: make(chan struct{}, 1)}
	p := NewPoller(src, sink, testutil.NopLogger{}, time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	select {
	case <-sink.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("first poll must happen right away")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 1, src.calls)
}

func TestPoller_RunStopsWithSink(t *testing.T) {
	src := &fakeSource{reports: []tracking.Report{bus("bus-1", "", 1, 1)}}
	sink := &fakeSink{err: tracking.ErrStopped}
	p := NewPoller(src, sink, testutil.NopLogger{}, time.Millisecond, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run must return once the tracking service is stopped")
	}
}

func TestPoller_nextWait(t *testing.T) {
	p := NewPoller(&fakeSource{}, &fakeSink{}, testutil.NopLogger{}, time.Second, time.Second)
	errFeed := errors.New("feed down")

	assert.Equal(t, time.Second, p.nextWait(10*time.Millisecond, nil))
	assert.Equal(t, 3*time.Second, p.nextWait(6*time.Second, nil), "slow sources are polled less often")

	var prev time.Duration
	for i := 0; i < 20; i++ {
		wait := p.nextWait(0, errFeed)
		assert.GreaterOrEqual(t, int64(wait), int64(time.Second/2))
		assert.LessOrEqual(t, int64(wait), int64(maxRetryInterval*3/2))
		prev = wait
	}
	assert.Greater(t, int64(prev), int64(10*time.Second), "retries back off")

	assert.Equal(t, time.Second, p.nextWait(0, nil), "a successful poll resets the backoff")
}

func TestRepositorySource_Fetch(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewLocationRepository(inmemdb.Open())
	t0 := time.Date(2021, time.March, 1, 7, 30, 0, 0, time.UTC)

	testutil.RecordReports(t, repo,
		testutil.NewBusReport("bus-1", "r1", 1, 1, t0),
		testutil.NewBusReport("bus-1", "r1", 2, 2, t0.Add(time.Minute)),
	)

	reports, err := NewRepositorySource(repo).Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 2.0, *reports[0].Lat)
}
