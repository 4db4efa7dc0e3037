// Package stats keeps per-client usage counters for a served share.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// RequestType is the category a served call is accounted under.
type RequestType int

const (
	InfoRequest RequestType = iota
	LibraryRequest
	PageRequest
	ThumbnailRequest
)

// String returns the string representation of the request type
func (t RequestType) String() string {
	switch t {
	case InfoRequest:
		return "info"
	case LibraryRequest:
		return "library"
	case PageRequest:
		return "page"
	case ThumbnailRequest:
		return "thumbnail"
	default:
		return "unknown"
	}
}

const numRequestTypes = 4

// ClientStats is a point-in-time copy of one client's counters.
type ClientStats struct {
	Address           string    `json:"address"`
	InfoRequests      int64     `json:"info_requests"`
	LibraryRequests   int64     `json:"library_requests"`
	PageRequests      int64     `json:"page_requests"`
	ThumbnailRequests int64     `json:"thumbnail_requests"`
	BytesServed       int64     `json:"bytes_served"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
}

// Count returns the counter for t.
func (c ClientStats) Count(t RequestType) int64 {
	switch t {
	case InfoRequest:
		return c.InfoRequests
	case LibraryRequest:
		return c.LibraryRequests
	case PageRequest:
		return c.PageRequests
	case ThumbnailRequest:
		return c.ThumbnailRequests
	default:
		return 0
	}
}

// Snapshot is a copy of every client's counters.
type Snapshot struct {
	Clients []ClientStats `json:"clients"`
	Taken   time.Time     `json:"taken"`
	Started time.Time     `json:"started"`
}

// Totals sums the counters of every client.
func (s Snapshot) Totals() ClientStats {
	var total ClientStats
	for _, c := range s.Clients {
		total.InfoRequests += c.InfoRequests
		total.LibraryRequests += c.LibraryRequests
		total.PageRequests += c.PageRequests
		total.ThumbnailRequests += c.ThumbnailRequests
		total.BytesServed += c.BytesServed
	}
	return total
}

// Client returns the counters recorded for address.
func (s Snapshot) Client(address string) (ClientStats, bool) {
	for _, c := range s.Clients {
		if c.Address == address {
			return c, true
		}
	}
	return ClientStats{}, false
}

type clientCounters struct {
	counts    [numRequestTypes]atomic.Int64
	bytes     atomic.Int64
	firstSeen time.Time
	lastSeen  atomic.Int64 // unix nanos
}

// Collector accumulates counters keyed by client address. Increments on
// a known client only take the read lock.
type Collector struct {
	clients map[string]*clientCounters
	mutex   sync.RWMutex
	now     func() time.Time
	started time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return newCollectorWithClock(time.Now)
}

func newCollectorWithClock(now func() time.Time) *Collector {
	return &Collector{
		clients: make(map[string]*clientCounters),
		now:     now,
		started: now(),
	}
}

// Add increments the counter for t and adds size bytes for client.
func (c *Collector) Add(client string, t RequestType, size int) {
	if t < 0 || int(t) >= numRequestTypes {
		return
	}
	counters := c.counters(client)
	counters.counts[t].Add(1)
	if size > 0 {
		counters.bytes.Add(int64(size))
	}
	counters.lastSeen.Store(c.now().UnixNano())
}

func (c *Collector) counters(client string) *clientCounters {
	c.mutex.RLock()
	counters, exists := c.clients[client]
	c.mutex.RUnlock()
	if exists {
		return counters
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if counters, exists := c.clients[client]; exists {
		return counters
	}
	now := c.now()
	counters = &clientCounters{firstSeen: now}
	counters.lastSeen.Store(now.UnixNano())
	c.clients[client] = counters
	return counters
}

// Snapshot copies the counters. Clients are ordered by address.
func (c *Collector) Snapshot() Snapshot {
	c.mutex.RLock()
	clients := make([]ClientStats, 0, len(c.clients))
	for address, counters := range c.clients {
		clients = append(clients, ClientStats{
			Address:           address,
			InfoRequests:      counters.counts[InfoRequest].Load(),
			LibraryRequests:   counters.counts[LibraryRequest].Load(),
			PageRequests:      counters.counts[PageRequest].Load(),
			ThumbnailRequests: counters.counts[ThumbnailRequest].Load(),
			BytesServed:       counters.bytes.Load(),
			FirstSeen:         counters.firstSeen,
			LastSeen:          time.Unix(0, counters.lastSeen.Load()),
		})
	}
	c.mutex.RUnlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].Address < clients[j].Address
	})

	return Snapshot{Clients: clients, Taken: c.now(), Started: c.started}
}

// Reset drops every client.
func (c *Collector) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.clients = make(map[string]*clientCounters)
}
