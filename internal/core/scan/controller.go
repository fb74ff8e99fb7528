// Package scan implements the scan controller: the channel
// sweep, probe issuance, dwell timing, and the post-sweep join-or-restore
// decision. It is built on top of the state machine and BSS table, and
// knows nothing about authentication/association itself — it hands off to
// a BeginAuthentication hook once it has picked a BSS to join, the same
// hook-field style the state machine and EAPOL handshake use to stay
// decoupled from their callers.
package scan

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/net80211/station/internal/core/bsstable"
	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/ports"
	"github.com/net80211/station/internal/core/statemachine"
)

// DefaultDwell is the per-channel dwell time.
const DefaultDwell = 100 * time.Millisecond

// Controller runs one scan to completion. A Controller is stateless
// between runs; all mutable state lives on the domain.Link and the
// domain.ScanState passed to Run.
type Controller struct {
	Link   *domain.Link
	Driver ports.Driver
	Clock  ports.Clock
	State  *statemachine.Controller

	// Dwell overrides DefaultDwell when non-zero (wired from config.Config
	// by the station orchestrator).
	Dwell time.Duration

	// BeginAuthentication is invoked, with link.Lock held, once the
	// post-sweep join step has picked the strongest matching BSS and
	// seeded its join parameters. It transitions Probing -> Authenticating
	// and sends the first authentication frame; wired by the station
	// orchestrator, which owns frame transmission for management frames.
	BeginAuthentication func(bss *domain.BSSEntry) error

	// SendProbeRequest transmits one probe request frame, broadcast (bssid
	// is the zero value) or directed. Wired by the station orchestrator so
	// the scan controller does not need its own frame-assembly knowledge
	// beyond the probe request itself, built in this package.
	SendProbeRequest func(bssid [6]byte, ssid string) error
}

// Run executes one scan to completion. The caller must NOT hold
// link.Lock; Run acquires it itself for each step and releases it across
// the dwell sleep, so receive dispatch never suspends while the lock is
// held.
func (c *Controller) Run(req *domain.ScanState) error {
	l := c.Link

	l.Lock.Lock()
	if l.State == domain.StateProbing && !req.IsBackground() {
		l.Lock.Unlock()
		return domain.ErrAlreadyScanning
	}

	original := l.State
	if err := c.State.SetState(domain.StateProbing); err != nil {
		l.Lock.Unlock()
		return err
	}
	l.Lock.Unlock()

	channels := req.Channels
	if req.TargetBSSID != ([6]byte{}) {
		// A directed probe dwells on the target's known channel only,
		// falling back to the sweep list when the BSS has not been seen
		// yet.
		l.Lock.Lock()
		if e := bsstable.FindByBSSID(l, req.TargetBSSID); e != nil && e.Descriptor.Channel != 0 {
			channels = []int{e.Descriptor.Channel}
		}
		l.Lock.Unlock()
	}

	for _, ch := range channels {
		l.Lock.Lock()
		if l.State == domain.StateUninitialized {
			// Link torn down mid-scan: exit
			// without touching the BSS table.
			l.Lock.Unlock()
			return nil
		}
		l.Lock.Unlock()

		if err := c.Driver.SetChannel(ch); err != nil {
			continue // Unsupported: skip this channel, keep sweeping
		}

		if c.SendProbeRequest != nil {
			_ = c.SendProbeRequest(req.TargetBSSID, req.TargetSSID)
		}

		// Dwell without the link lock held: beacons/probe responses
		// arriving during this window are harvested by the ordinary
		// receive-path management handler, which takes the lock itself
		// per frame.
		dwell := c.Dwell
		if dwell == 0 {
			dwell = DefaultDwell
		}
		c.Clock.Sleep(dwell)
	}

	l.Lock.Lock()
	defer l.Lock.Unlock()

	if l.State == domain.StateUninitialized {
		return nil
	}

	if req.JoinAfter() {
		best := strongestMatch(l, req.TargetSSID)
		if best == nil {
			return c.State.SetState(domain.StateInitialized)
		}
		best.SetJoinParameters(req.TargetSSID, req.TargetPassphrase)
		if c.BeginAuthentication != nil {
			return c.BeginAuthentication(best)
		}
		return nil
	}

	return c.State.SetState(original)
}

// strongestMatch returns the highest-RSSI BSS entry on the table whose
// SSID matches ssid, or nil. The caller must hold link.Lock.
func strongestMatch(link *domain.Link, ssid string) *domain.BSSEntry {
	var best *domain.BSSEntry
	for _, e := range bsstable.All(link) {
		if e.Descriptor.SSID != ssid {
			continue
		}
		if best == nil || e.Descriptor.RSSI > best.Descriptor.RSSI {
			best = e
		}
	}
	return best
}

// BuildProbeRequest serializes a broadcast or directed probe request
// , following the same RadioTap+Dot11+IE serialization
// idiom the TX pipeline uses for data frames. bssid is the zero value for
// broadcast probing; management frames are sequence-numbered by hardware,
// not by the link's data counter.
func BuildProbeRequest(srcMAC, bssid [6]byte, ssid string) ([]byte, error) {
	dst := broadcast
	if bssid != ([6]byte{}) {
		dst = bssid
	}
	dot11 := &layers.Dot11{
		Type:     layers.Dot11TypeMgmtProbeReq,
		Address1: dst[:],
		Address2: srcMAC[:],
		Address3: dst[:],
	}
	ssidIE := append([]byte{0x00, byte(len(ssid))}, []byte(ssid)...)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &layers.RadioTap{}, dot11, gopacket.Payload(ssidIE)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var broadcast = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
