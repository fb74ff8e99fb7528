package statemachine

import (
	"log"
	"time"

	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/ports"
)

// Per-state timeouts for the states that arm the state timer.
// Authentication and association exchanges are expected to complete well
// within a beacon interval or two; Probing must outlast a full channel
// sweep (up to 14 channels at the default 100ms dwell), since the scan
// controller holds the link in Probing for the whole sweep.
var stateTimeout = map[domain.LinkState]time.Duration{
	domain.StateProbing:        5 * time.Second,
	domain.StateAuthenticating: 1 * time.Second,
	domain.StateAssociating:    1 * time.Second,
	domain.StateEncrypted:      2 * time.Second,
}

func filterStateFor(s domain.LinkState) ports.HardwareFilterState {
	switch s {
	case domain.StateEncrypted, domain.StateAssociated:
		return ports.FilterStateAssociated
	case domain.StateProbing, domain.StateAuthenticating, domain.StateAssociating, domain.StateReassociating:
		return ports.FilterStateConnecting
	default:
		return ports.FilterStateUnassociated
	}
}

// Controller owns the state-transition side effects for a single Link:
// the driver notification, pause-queue discipline and the state timer. It
// holds no network-stack or crypto knowledge; those are wired in by the
// link orchestrator via the exported hook fields.
type Controller struct {
	Link   *domain.Link
	Driver ports.Driver
	Clock  ports.Clock

	timer *timerDiscipline

	// InstallGroupKey is invoked on entry to Associated, before the pause
	// queue drains, to install the negotiated group key. Wired by the link
	// orchestrator once the EAPOL handshake has derived the GTK.
	InstallGroupKey func() error

	// DrainPaused flushes the pause queue to the driver once data traffic
	// resumes. Wired by the TX pipeline.
	DrainPaused func(packets [][]byte)

	// OnEnterInitializedFromFailure runs after a failed connection
	// attempt releases the active BSS and falls back to Initialized; the
	// link orchestrator uses it to fail a pending join. No scan is
	// restarted.
	OnEnterInitializedFromFailure func()

	// OnTimeout, if set, overrides the default timeout handling (fall
	// back to Initialized). Invoked with link.Lock held.
	OnTimeout func(expired domain.LinkState)
}

// NewController builds a Controller and starts its timer worker goroutine.
// Close must be called when the link is torn down.
func NewController(link *domain.Link, driver ports.Driver, clock ports.Clock) *Controller {
	c := &Controller{Link: link, Driver: driver, Clock: clock}
	c.timer = newTimerDiscipline(link, clock, c.onTimeout)
	return c
}

// Close stops the timer worker goroutine.
func (c *Controller) Close() {
	c.timer.Stop()
}

// SetState performs the full state-setter contract:
//  1. notify the driver of the coarse hardware filter state;
//  2. entering Associated installs the group key and drains the pause
//     queue;
//  3. leaving Associated re-pauses outbound data traffic;
//  4. arm the state timer for Probing/Authenticating/Associating/
//     Encrypted, cancel it otherwise;
//  5. falling back to Initialized releases the active BSS reference and
//     runs the OnEnterInitializedFromFailure hook.
//
// The caller must hold link.Lock.
func (c *Controller) SetState(next domain.LinkState) error {
	l := c.Link
	prev := l.State
	if prev == next {
		return nil
	}

	if err := c.Driver.SetState(filterStateFor(next)); err != nil {
		return err
	}
	l.State = next

	if prev == domain.StateAssociated && next != domain.StateAssociated {
		l.Flags |= domain.FlagDataPaused
	}

	if next == domain.StateAssociated {
		if c.InstallGroupKey != nil {
			if err := c.InstallGroupKey(); err != nil {
				log.Printf("net80211: %s group key install failed: %v", l.Name, err)
			}
		}
		l.Flags &^= domain.FlagDataPaused
		if len(l.PausedPackets) > 0 && c.DrainPaused != nil {
			pending := l.PausedPackets
			l.PausedPackets = nil
			c.DrainPaused(pending)
		}
	}

	if next.ExpectsTimer() {
		c.timer.Arm(stateTimeout[next])
	} else {
		c.timer.Cancel()
	}

	if next == domain.StateInitialized && l.ActiveBSS != nil {
		active := l.ActiveBSS
		l.ActiveBSS = nil
		active.Release()
		if c.OnEnterInitializedFromFailure != nil {
			c.OnEnterInitializedFromFailure()
		}
	}

	return nil
}

// onTimeout runs with link.Lock held, inside the timer worker goroutine.
func (c *Controller) onTimeout() {
	l := c.Link
	expired := l.State
	log.Printf("net80211: %s state timer expired in %s", l.Name, expired)

	if c.OnTimeout != nil {
		c.OnTimeout(expired)
		return
	}
	if err := c.SetState(domain.StateInitialized); err != nil {
		log.Printf("net80211: %s fallback to Initialized after timeout failed: %v", l.Name, err)
	}
}
