package inmemdb

import (
	"sync"
	"time"
)

type (
	DB struct {
		report *reportTable
	}

	reportRow struct {
		id         int64
		entityID   string
		kind       string
		routeID    string
		lat, lng   *float64
		recordedAt time.Time
	}

	reportTable struct {
		rows  []reportRow
		pk    int64
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{report: &reportTable{}}
}
