// Package observability wires the station orchestrator's lifecycle
// callouts into Prometheus counters and the history store. Writes are
// dispatched through a small buffered channel drained by a background
// goroutine, keeping persistence off the hot receive/transmit path.
package observability

import (
	"context"
	"log"
	"strconv"

	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/telemetry"
)

// Recorder is the subset of the history store's write API the observer
// needs; satisfied by *history.Store.
type Recorder interface {
	RecordSighting(ctx context.Context, link string, desc domain.BSSDescriptor) error
	RecordEvent(ctx context.Context, link, kind, bssid, detail string) error
}

type sightingJob struct {
	link string
	desc domain.BSSDescriptor
}

type eventJob struct {
	link, kind, bssid, detail string
}

// Broadcaster pushes a discovered-BSS event to live control-surface
// clients; satisfied by *control.Server. Optional.
type Broadcaster interface {
	BroadcastBSS(link string, desc domain.BSSDescriptor)
}

// Observer implements station.Observer, fanning each callout out to
// Prometheus and, best-effort, the history store.
type Observer struct {
	history     Recorder
	Broadcaster Broadcaster // set after construction once the control server exists

	sightings chan sightingJob
	events    chan eventJob
	stop      chan struct{}
}

// New builds an Observer. history may be nil, in which case events are only
// counted, never persisted.
func New(history Recorder) *Observer {
	o := &Observer{
		history:   history,
		sightings: make(chan sightingJob, 128),
		events:    make(chan eventJob, 128),
		stop:      make(chan struct{}),
	}
	if history != nil {
		go o.saveLoop()
	}
	return o
}

// Close stops the background persistence worker. Safe to call even when no
// history store was configured.
func (o *Observer) Close() {
	close(o.stop)
}

func (o *Observer) saveLoop() {
	ctx := context.Background()
	for {
		select {
		case j := <-o.sightings:
			if err := o.history.RecordSighting(ctx, j.link, j.desc); err != nil {
				log.Printf("history: record sighting: %v", err)
			}
		case j := <-o.events:
			if err := o.history.RecordEvent(ctx, j.link, j.kind, j.bssid, j.detail); err != nil {
				log.Printf("history: record event: %v", err)
			}
		case <-o.stop:
			return
		}
	}
}

func (o *Observer) enqueueEvent(link, kind, bssid, detail string) {
	if o.history == nil {
		return
	}
	select {
	case o.events <- eventJob{link, kind, bssid, detail}:
	default:
		log.Printf("history: event queue full, dropping %s/%s", link, kind)
	}
}

// StateTransition implements station.Observer.
func (o *Observer) StateTransition(link string, from, to domain.LinkState) {
	telemetry.StateTransitions.WithLabelValues(link, from.String(), to.String()).Inc()
	o.enqueueEvent(link, "state-transition", "", from.String()+"->"+to.String())
}

// ScanStarted implements station.Observer.
func (o *Observer) ScanStarted(link string, background bool) {
	telemetry.ScansStarted.WithLabelValues(link, strconv.FormatBool(background)).Inc()
	o.enqueueEvent(link, "scan-started", "", strconv.FormatBool(background))
}

// ScanCompleted implements station.Observer.
func (o *Observer) ScanCompleted(link string, joined bool) {
	telemetry.ScansCompleted.WithLabelValues(link, strconv.FormatBool(joined)).Inc()
	o.enqueueEvent(link, "scan-completed", "", strconv.FormatBool(joined))
}

// HandshakeFailed implements station.Observer.
func (o *Observer) HandshakeFailed(link string, reason error) {
	telemetry.HandshakeFailures.WithLabelValues(link).Inc()
	o.enqueueEvent(link, "handshake-failed", "", reason.Error())
}

// ReplayDropped implements station.Observer.
func (o *Observer) ReplayDropped(link, sender string) {
	telemetry.ReplayDrops.WithLabelValues(link, sender).Inc()
	o.enqueueEvent(link, "replay-dropped", "", sender)
}

// FrameReceived implements station.Observer. Receive-path accounting is
// counter-only; per-frame events are far too hot for the history store.
func (o *Observer) FrameReceived(link, class string) {
	telemetry.FramesReceived.WithLabelValues(link, class).Inc()
}

// FrameDropped implements station.Observer.
func (o *Observer) FrameDropped(link, reason string) {
	telemetry.FramesDropped.WithLabelValues(link, reason).Inc()
}

// BSSDiscovered implements station.Observer.
func (o *Observer) BSSDiscovered(link string, desc domain.BSSDescriptor) {
	if o.Broadcaster != nil {
		o.Broadcaster.BroadcastBSS(link, desc)
	}
	if o.history == nil {
		return
	}
	select {
	case o.sightings <- sightingJob{link, desc}:
	default:
		log.Printf("history: sighting queue full, dropping %s", link)
	}
}
