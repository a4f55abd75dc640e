// Package stats implements a single-owner stat aggregator: one goroutine
// serializes mutations and snapshot requests from many producers over a
// channel of messages. A snapshot request carries its own reply channel so
// the caller observes every update enqueued strictly before it.
//
// The owned counters are backed by prometheus client_golang Counter/Gauge
// objects registered against a private registry that is never served over
// HTTP; it exists purely to give the stat actor a real metrics
// representation instead of hand-rolled integers.
package stats

import (
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// JobStats is a read-only snapshot of the job's counters.
type JobStats struct {
	Bytes          uint64
	Files          uint64
	InFlight       uint64
	Last           string
	StartedAt      time.Time
	BytesPerSecond float64
}

type message struct {
	kind   msgKind
	bytes  uint64
	last   string
	replyC chan JobStats
}

type msgKind uint8

const (
	msgIncInFlight msgKind = iota
	msgDecInFlight
	msgRecord
	msgSnapshot
)

// Actor is the handle producers and the reporter use. It is cheap to copy
// and safe for concurrent use; all mutation flows through a single owning
// goroutine.
type Actor struct {
	ch chan message
}

// NewActor starts the owning goroutine and returns a handle to it.
func NewActor() *Actor {
	a := &Actor{ch: make(chan message, 1024)}
	go a.run()
	return a
}

func (a *Actor) run() {
	registry := prometheus.NewRegistry()
	bytesTotal := prometheus.NewCounter(prometheus.CounterOpts{Name: "dircrypt_bytes_total"})
	filesTotal := prometheus.NewCounter(prometheus.CounterOpts{Name: "dircrypt_files_total"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dircrypt_in_flight"})
	registry.MustRegister(bytesTotal, filesTotal, inFlight)

	started := time.Now()
	last := ""
	var inFlightCount uint64

	for msg := range a.ch {
		switch msg.kind {
		case msgIncInFlight:
			inFlightCount++
			inFlight.Inc()
		case msgDecInFlight:
			if inFlightCount == 0 {
				// Underflow is a caller bug; saturate at zero rather than wrap.
				continue
			}
			inFlightCount--
			inFlight.Dec()
		case msgRecord:
			bytesTotal.Add(float64(msg.bytes))
			filesTotal.Inc()
			last = msg.last
		case msgSnapshot:
			elapsed := time.Since(started).Seconds()
			snap := JobStats{
				Bytes:     uint64(gatherCounter(bytesTotal)),
				Files:     uint64(gatherCounter(filesTotal)),
				InFlight:  inFlightCount,
				Last:      last,
				StartedAt: started,
			}
			if elapsed > 0 {
				snap.BytesPerSecond = float64(snap.Bytes) / elapsed
			}
			msg.replyC <- snap
		}
	}
}

func gatherCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return 0
}

// IncInFlight marks one more file as being processed. Non-blocking for the
// caller.
func (a *Actor) IncInFlight() { a.ch <- message{kind: msgIncInFlight} }

// DecInFlight marks one file as no longer being processed, regardless of
// outcome.
func (a *Actor) DecInFlight() { a.ch <- message{kind: msgDecInFlight} }

// Record reports a completed Processed outcome: bytes read and the output
// path produced.
func (a *Actor) Record(bytes uint64, lastPath string) {
	a.ch <- message{kind: msgRecord, bytes: bytes, last: path.Clean(lastPath)}
}

// Snapshot blocks until the actor has processed every message enqueued
// strictly before this call, then returns a copy of the current stats.
func (a *Actor) Snapshot() JobStats {
	reply := make(chan JobStats, 1)
	a.ch <- message{kind: msgSnapshot, replyC: reply}
	return <-reply
}
