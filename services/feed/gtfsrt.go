package feed

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"

	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/core/tracking"
)

// GTFSRTSource reads bus positions from a GTFS-Realtime VehiclePositions feed.
type GTFSRTSource struct {
	url        string
	httpClient *http.Client
}

var _ Source = (*GTFSRTSource)(nil)

func NewGTFSRTSource(url string, timeout time.Duration) *GTFSRTSource {
	return &GTFSRTSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *GTFSRTSource) Fetch(ctx context.Context) ([]tracking.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building gtfs-rt request")
	}
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching gtfs-rt feed")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("gtfs-rt http status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading gtfs-rt feed")
	}
	var msg gtfs.FeedMessage
	if err = proto.Unmarshal(body, &msg); err != nil {
		return nil, errors.Wrap(err, "decoding gtfs-rt feed")
	}
	return reportsFromFeed(&msg), nil
}

// reportsFromFeed maps every vehicle position to a bus Report.
// a vehicle without a (complete) position is kept with nil coordinates, so it is tracked but not drawn.
func reportsFromFeed(msg *gtfs.FeedMessage) []tracking.Report {
	feedTime := time.Unix(int64(msg.GetHeader().GetTimestamp()), 0).UTC()

	reports := make([]tracking.Report, 0, len(msg.GetEntity()))
	seen := make(map[string]int, len(msg.GetEntity()))
	for _, ent := range msg.GetEntity() {
		vp := ent.GetVehicle()
		if vp == nil || ent.GetIsDeleted() {
			continue
		}

		id := core.CleanString(vp.GetVehicle().GetId())
		if id == "" {
			id = core.CleanString(ent.GetId())
		}
		if id == "" {
			continue
		}

		r := tracking.Report{
			EntityID:   id,
			Kind:       tracking.KindBus,
			RouteID:    vp.GetTrip().GetRouteId(),
			RecordedAt: feedTime,
		}
		if ts := vp.GetTimestamp(); ts > 0 {
			r.RecordedAt = time.Unix(int64(ts), 0).UTC()
		}
		if pos := vp.GetPosition(); pos != nil && pos.Latitude != nil && pos.Longitude != nil {
			r.Lat = core.Float64Ptr(float64(pos.GetLatitude()))
			r.Lng = core.Float64Ptr(float64(pos.GetLongitude()))
		}

		// a vehicle listed twice keeps its newest position
		if i, ok := seen[id]; ok {
			if r.RecordedAt.Before(reports[i].RecordedAt) {
				continue
			}
			reports[i] = r
			continue
		}
		seen[id] = len(reports)
		reports = append(reports, r)
	}
	return reports
}
