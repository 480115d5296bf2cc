package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/trezcool/schoolbus/core/tracking"
)

const feedTS = 1614583800 // 2021-03-01 07:30 UTC

func vehicleEntity(entID, vehicleID, routeID string, pos *gtfs.Position, ts uint64) *gtfs.FeedEntity {
	vp := &gtfs.VehiclePosition{
		Vehicle:  &gtfs.VehicleDescriptor{Id: proto.String(vehicleID)},
		Position: pos,
	}
	if routeID != "" {
		vp.Trip = &gtfs.TripDescriptor{RouteId: proto.String(routeID)}
	}
	if ts > 0 {
		vp.Timestamp = proto.Uint64(ts)
	}
	return &gtfs.FeedEntity{Id: proto.String(entID), Vehicle: vp}
}

func position(lat, lng float32) *gtfs.Position {
	return &gtfs.Position{Latitude: proto.Float32(lat), Longitude: proto.Float32(lng)}
}

func testFeed() *gtfs.FeedMessage {
	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(feedTS),
		},
		Entity: []*gtfs.FeedEntity{
			vehicleEntity("1", "bus-1", "r1", position(10.5, 20.25), feedTS-30),
			vehicleEntity("2", "bus-2", "", nil, 0),
			vehicleEntity("3", "", "r2", position(-4, 15.5), 0),
			{Id: proto.String("4"), IsDeleted: proto.Bool(true), Vehicle: &gtfs.VehiclePosition{
				Vehicle: &gtfs.VehicleDescriptor{Id: proto.String("bus-9")},
			}},
			{Id: proto.String("5")}, // not a vehicle position
			vehicleEntity("6", "bus-1", "r1", position(11, 21), feedTS-60),
		},
	}
}

func serveFeed(t *testing.T, msg *gtfs.FeedMessage, status int) *httptest.Server {
	t.Helper()
	body, err := proto.Marshal(msg)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGTFSRTSource_Fetch(t *testing.T) {
	srv := serveFeed(t, testFeed(), http.StatusOK)
	src := NewGTFSRTSource(srv.URL, time.Second)

	reports, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 3)

	bus1 := reports[0]
	assert.Equal(t, "bus-1", bus1.EntityID, "older duplicate must not win")
	assert.Equal(t, tracking.KindBus, bus1.Kind)
	assert.Equal(t, "r1", bus1.RouteID)
	require.NotNil(t, bus1.Lat)
	assert.Equal(t, 10.5, *bus1.Lat)
	assert.Equal(t, 20.25, *bus1.Lng)
	assert.Equal(t, time.Unix(feedTS-30, 0).UTC(), bus1.RecordedAt)

	bus2 := reports[1]
	assert.Equal(t, "bus-2", bus2.EntityID)
	assert.Nil(t, bus2.Lat, "vehicle without position is tracked without coordinates")
	assert.Nil(t, bus2.Lng)
	assert.Equal(t, time.Unix(feedTS, 0).UTC(), bus2.RecordedAt, "defaults to the feed timestamp")

	assert.Equal(t, "3", reports[2].EntityID, "falls back to the entity id")
	assert.Equal(t, "r2", reports[2].RouteID)
}

func TestGTFSRTSource_FetchErrors(t *testing.T) {
	tests := []struct {
		name string
		srv  func(t *testing.T) string
	}{
		{
			name: "http status",
			srv: func(t *testing.T) string {
				return serveFeed(t, testFeed(), http.StatusServiceUnavailable).URL
			},
		},
		{
			name: "garbage",
			srv: func(t *testing.T) string {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte("<html>not a feed</html>"))
				}))
				t.Cleanup(srv.Close)
				return srv.URL
			},
		},
		{
			name: "unreachable",
			srv: func(t *testing.T) string {
				srv := httptest.NewServer(http.NotFoundHandler())
				srv.Close()
				return srv.URL
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewGTFSRTSource(tt.srv(t), time.Second)
			reports, err := src.Fetch(context.Background())
			assert.Error(t, err)
			assert.Nil(t, reports)
		})
	}
}
