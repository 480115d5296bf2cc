package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/core/tracking"
)

// Sink receives feed snapshots; implemented by tracking.Service.
type Sink interface {
	Sync(ctx context.Context, reports []tracking.Report) error
}

var _ Sink = (*tracking.Service)(nil)

// failing sources are retried with an exponential backoff, up to maxRetryInterval.
const maxRetryInterval = time.Minute

// Poller periodically fetches a Source and forwards the snapshot to a Sink when it changed.
type Poller struct {
	source      Source
	sink        Sink
	logger      core.Logger
	minInterval time.Duration
	timeout     time.Duration
	retry       *backoff.ExponentialBackOff

	last map[string]tracking.Report
}

func NewPoller(source Source, sink Sink, logger core.Logger, minInterval, timeout time.Duration) *Poller {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = minInterval
	retry.MaxInterval = maxDuration(maxRetryInterval, minInterval)
	retry.MaxElapsedTime = 0 // never give up
	retry.Reset()

	return &Poller{
		source:      source,
		sink:        sink,
		logger:      logger,
		minInterval: minInterval,
		timeout:     timeout,
		retry:       retry,
		last:        make(map[string]tracking.Report),
	}
}

// Run polls until ctx is done or the Sink is stopped. The first fetch happens right away.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTimer(0)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			start := time.Now()
			err := p.Poll(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Cause(err) == tracking.ErrStopped {
					return
				}
				p.logger.Error("polling location feed", err)
			}
			t.Reset(p.nextWait(time.Since(start), err))
		}
	}
}

// nextWait returns the delay before the next poll.
// slow sources are polled less often: the interval is at least half the fetch duration.
func (p *Poller) nextWait(elapsed time.Duration, pollErr error) time.Duration {
	if pollErr != nil {
		return p.retry.NextBackOff()
	}
	p.retry.Reset()
	return maxDuration(elapsed/2, p.minInterval)
}

// Poll runs one fetch and syncs the result if anything changed since the last one.
func (p *Poller) Poll(ctx context.Context) error {
	fctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	reports, err := p.source.Fetch(fctx)
	if err != nil {
		return errors.Wrap(err, "fetching feed")
	}

	changed, current := p.detectChanges(reports)
	if !changed {
		return nil
	}
	p.logger.Debug(fmt.Sprintf("location feed changed: %d entities", len(current)))
	if err = p.sink.Sync(ctx, snapshot(current)); err != nil {
		return errors.Wrap(err, "syncing feed")
	}
	p.last = current
	return nil
}

func (p *Poller) detectChanges(in []tracking.Report) (bool, map[string]tracking.Report) {
	current := make(map[string]tracking.Report, len(in))
	var changed bool
	for _, r := range in {
		if r.Kind == "" {
			r.Kind = tracking.KindBus
		}
		prev, ok := p.last[r.EntityID]
		if !ok || !prev.SamePlace(r) {
			changed = true
		}
		current[r.EntityID] = r
	}
	if len(current) != len(p.last) {
		changed = true
	}
	return changed, current
}

func snapshot(reports map[string]tracking.Report) []tracking.Report {
	out := make([]tracking.Report, 0, len(reports))
	for _, r := range reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
