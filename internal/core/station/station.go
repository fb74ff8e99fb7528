// Package station is the link orchestrator: it wires the state machine,
// BSS table, scan controller, frame codec, TX pipeline and EAPOL handshake
// into the single object a driver and an upper-layer stack actually talk
// to. None of the packages it composes know about each other directly;
// Station is where the cross-component interactions are assembled.
package station

import (
	"errors"
	"sync"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/net80211/station/internal/core/bsstable"
	"github.com/net80211/station/internal/core/codec"
	"github.com/net80211/station/internal/core/codec/ie"
	"github.com/net80211/station/internal/core/crypto"
	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/eapol"
	"github.com/net80211/station/internal/core/ports"
	"github.com/net80211/station/internal/core/scan"
	"github.com/net80211/station/internal/core/statemachine"
	"github.com/net80211/station/internal/core/tx"
)

// Observer receives best-effort notifications of link lifecycle events. It
// is the seam the ambient stack (telemetry, history store) hangs off;
// Station calls ScanStarted, ScanCompleted and FrameReceived without
// holding link.Lock; every other method is called with link.Lock held, so
// a slow observer holds up the receive/transmit path. A nil *Observer field is
// never dereferenced: Station always calls through the no-op default
// unless one is supplied.
type Observer interface {
	StateTransition(link string, from, to domain.LinkState)
	ScanStarted(link string, background bool)
	ScanCompleted(link string, joined bool)
	HandshakeFailed(link string, reason error)
	ReplayDropped(link, sender string)
	BSSDiscovered(link string, desc domain.BSSDescriptor)
	FrameReceived(link, class string)
	FrameDropped(link, reason string)
}

type noopObserver struct{}

func (noopObserver) StateTransition(string, domain.LinkState, domain.LinkState) {}
func (noopObserver) ScanStarted(string, bool)                                   {}
func (noopObserver) ScanCompleted(string, bool)                                 {}
func (noopObserver) HandshakeFailed(string, error)                              {}
func (noopObserver) ReplayDropped(string, string)                               {}
func (noopObserver) BSSDiscovered(string, domain.BSSDescriptor)                 {}
func (noopObserver) FrameReceived(string, string)                               {}
func (noopObserver) FrameDropped(string, string)                                {}

// Station is the per-interface facade: the Link plus everything that
// drives it.
type Station struct {
	Link   *domain.Link
	Driver ports.Driver
	Upper  ports.UpperStack
	Clock  ports.Clock

	state *statemachine.Controller
	txp   *tx.Pipeline
	scanc *scan.Controller
	dedup *codec.DuplicateFilter

	obs Observer

	joinMu   sync.Mutex
	joinDone chan error // non-nil while a foreground join is outstanding
}

// New builds a Station around link, wiring the state machine, TX pipeline
// and scan controller together and installing every cross-component hook.
// obs may be nil, in which case lifecycle events are simply not observed.
func New(link *domain.Link, driver ports.Driver, upper ports.UpperStack, clock ports.Clock, obs Observer) *Station {
	return newStation(link, driver, upper, clock, obs, 0)
}

// NewWithDwell is New plus an explicit scan dwell override, wired from
// config.Config.DwellTime by the daemon entry point.
func NewWithDwell(link *domain.Link, driver ports.Driver, upper ports.UpperStack, clock ports.Clock, obs Observer, dwell time.Duration) *Station {
	return newStation(link, driver, upper, clock, obs, dwell)
}

func newStation(link *domain.Link, driver ports.Driver, upper ports.UpperStack, clock ports.Clock, obs Observer, dwell time.Duration) *Station {
	if obs == nil {
		obs = noopObserver{}
	}
	s := &Station{
		Link:   link,
		Driver: driver,
		Upper:  upper,
		Clock:  clock,
		dedup:  codec.NewDuplicateFilter(),
		obs:    obs,
	}
	s.state = statemachine.NewController(link, driver, clock)
	s.txp = tx.New(link, driver)
	s.scanc = &scan.Controller{Link: link, Driver: driver, Clock: clock, State: s.state, Dwell: dwell}

	s.state.InstallGroupKey = func() error { return nil } // GTK is installed by the handshake itself (M3)
	s.state.DrainPaused = s.txp.Drain
	s.state.OnEnterInitializedFromFailure = func() {
		s.signalJoinDone(domain.ErrTimeout)
	}

	s.scanc.SendProbeRequest = func(bssid [6]byte, ssid string) error {
		frame, err := scan.BuildProbeRequest(link.Properties.MACAddress, bssid, ssid)
		if err != nil {
			return err
		}
		return driver.Submit(frame)
	}
	s.scanc.BeginAuthentication = s.beginAuthentication

	return s
}

// Close tears the station down: cancels and drains the state timer,
// releases the active BSS reference, and frees every BSS entry. The caller
// must have already waited for any outstanding scan worker and for the
// link's own reference count to reach one.
func (s *Station) Close() {
	s.state.Close()

	s.Link.Lock.Lock()
	defer s.Link.Lock.Unlock()

	if s.Link.ActiveBSS != nil {
		s.Link.ActiveBSS.Release()
		s.Link.ActiveBSS = nil
	}
	for _, e := range s.Link.BSSList {
		e.Release()
	}
	s.Link.BSSList = nil
	s.Link.PausedPackets = nil // queued packets are simply released on hard teardown
}

// BringUp transitions Uninitialized -> Initialized, the first
// event after the driver registers the interface.
func (s *Station) BringUp() error {
	s.Link.Lock.Lock()
	defer s.Link.Lock.Unlock()
	from := s.Link.State
	if err := s.state.SetState(domain.StateInitialized); err != nil {
		return err
	}
	s.obs.StateTransition(s.Link.Name, from, domain.StateInitialized)
	return nil
}

// ScanRequest mirrors the CLI-mirrored `scan` control surface:
// background/broadcast flags and an optional SSID/BSSID filter.
type ScanRequest struct {
	Background bool
	Broadcast  bool
	SSID       string
	BSSID      [6]byte
}

// Scan runs a standalone scan (no join) to completion and then returns the
// link to the state it was in before the scan. Background=true also lets a
// scan start while the link is already in Probing.
func (s *Station) Scan(req ScanRequest) error {
	flags := domain.ScanFlag(0)
	if req.Background {
		flags |= domain.ScanFlagBackground
	}
	if req.Broadcast {
		flags |= domain.ScanFlagBroadcast
	}
	state := &domain.ScanState{
		Link:        s.Link,
		Flags:       flags,
		Channels:    s.Link.Properties.SupportedChannels,
		TargetBSSID: req.BSSID,
		TargetSSID:  req.SSID,
	}
	s.obs.ScanStarted(s.Link.Name, req.Background)
	err := s.scanc.Run(state)
	s.obs.ScanCompleted(s.Link.Name, false)
	return err
}

// Join starts a scan-then-associate sequence and blocks until the link
// reaches Associated or the attempt fails. It is idempotent: a Join called
// while already Associated to the same SSID is a no-op success.
func (s *Station) Join(ssid, passphrase string) error {
	s.Link.Lock.Lock()
	if s.Link.State == domain.StateAssociated && s.Link.ActiveBSS != nil && s.Link.ActiveBSS.SSID == ssid {
		s.Link.Lock.Unlock()
		return nil
	}
	s.Link.Lock.Unlock()

	done := make(chan error, 1)
	s.joinMu.Lock()
	s.joinDone = done
	s.joinMu.Unlock()

	state := &domain.ScanState{
		Link:             s.Link,
		Flags:            domain.ScanFlagBroadcast | domain.ScanFlagJoin,
		Channels:         s.Link.Properties.SupportedChannels,
		TargetSSID:       ssid,
		TargetPassphrase: passphrase,
	}

	s.obs.ScanStarted(s.Link.Name, false)
	if err := s.scanc.Run(state); err != nil {
		s.obs.ScanCompleted(s.Link.Name, false)
		s.clearJoinWaiter()
		return err
	}

	// The sweep found no BSS advertising this SSID: the scan controller has
	// already fallen back to Initialized, and nothing will ever signal the
	// join waiter.
	s.Link.Lock.Lock()
	noMatch := s.Link.State == domain.StateInitialized
	s.Link.Lock.Unlock()
	if noMatch {
		s.obs.ScanCompleted(s.Link.Name, false)
		s.clearJoinWaiter()
		return domain.ErrTimeout
	}

	err := <-done
	s.obs.ScanCompleted(s.Link.Name, err == nil)
	s.clearJoinWaiter()
	return err
}

func (s *Station) clearJoinWaiter() {
	s.joinMu.Lock()
	s.joinDone = nil
	s.joinMu.Unlock()
}

func (s *Station) signalJoinDone(err error) {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()
	if s.joinDone != nil {
		select {
		case s.joinDone <- err:
		default:
		}
	}
}

// Leave disassociates. Idempotent: calling it when
// already Initialized succeeds without effect.
func (s *Station) Leave() error {
	s.Link.Lock.Lock()
	defer s.Link.Lock.Unlock()
	if s.Link.State == domain.StateInitialized {
		return nil
	}
	from := s.Link.State
	if err := s.state.SetState(domain.StateInitialized); err != nil {
		return err
	}
	s.obs.StateTransition(s.Link.Name, from, domain.StateInitialized)
	return nil
}

// Send hands one outbound payload to the TX pipeline.
func (s *Station) Send(srcMAC, dstMAC [6]byte, etherType uint16, payload []byte) error {
	s.Link.Lock.Lock()
	defer s.Link.Lock.Unlock()
	return s.txp.Send(srcMAC, dstMAC, etherType, payload)
}

// StationInfo is one row of the `stations` CLI mirror.
type StationInfo struct {
	SSID    string
	BSSID   [6]byte
	RSSI    int
	Channel int
	Cipher  domain.Cipher
}

// Stations enumerates the BSS table.
func (s *Station) Stations() []StationInfo {
	s.Link.Lock.Lock()
	defer s.Link.Lock.Unlock()

	out := make([]StationInfo, 0, len(s.Link.BSSList))
	for _, e := range bsstable.All(s.Link) {
		out = append(out, StationInfo{
			SSID:    e.Descriptor.SSID,
			BSSID:   e.Descriptor.BSSID,
			RSSI:    e.Descriptor.RSSI,
			Channel: e.Descriptor.Channel,
			Cipher:  e.Encryption.Pairwise,
		})
	}
	return out
}

// Receive is the driver's entry point: classify the MPDU and dispatch to
// the management, control, or data path. Receive-path errors are counted
// and the frame dropped, never surfaced upward.
func (s *Station) Receive(raw []byte) {
	c, err := codec.Classify(raw)
	if err != nil {
		s.obs.FrameDropped(s.Link.Name, "malformed")
		return
	}

	switch c.Class {
	case codec.ClassManagement:
		s.obs.FrameReceived(s.Link.Name, "management")
		s.receiveManagement(c)
	case codec.ClassData:
		s.obs.FrameReceived(s.Link.Name, "data")
		s.receiveData(c)
	default:
		// Control frames are mostly consumed by hardware; unrecognized
		// ones are silently dropped.
		s.obs.FrameReceived(s.Link.Name, "control")
	}
}

func (s *Station) receiveManagement(c *codec.Classified) {
	s.Link.Lock.Lock()
	defer s.Link.Lock.Unlock()

	switch codec.SubtypeOf(c.Dot11.Type) {
	case codec.MgmtBeacon, codec.MgmtProbeResponse:
		s.handleBeaconOrProbeResp(c)
	case codec.MgmtAuthentication:
		s.handleAuthResponse(c)
	case codec.MgmtAssociationResponse, codec.MgmtReassociationResponse:
		s.handleAssocResponse(c)
	case codec.MgmtDeauthentication, codec.MgmtDisassociation:
		s.handleDeauthOrDisassoc()
	}
}

// capPrivacy is the privacy bit of the 802.11 capability-information field.
const capPrivacy = 0x0010

func (s *Station) handleBeaconOrProbeResp(c *codec.Classified) {
	info, err := codec.ParseBeaconOrProbeResp(c, rssiOf(c))
	if err != nil {
		return
	}

	existing := bsstable.FindByBSSID(s.Link, info.BSSID)
	if existing == nil {
		entry := domain.NewBSSEntry(info.Descriptor)
		entry.Encryption.ApRSN = info.RSN
		s.applyRSN(entry, info.RSN)
		if len(info.RSN) == 0 && info.Descriptor.Capabilities&capPrivacy != 0 {
			// Privacy bit without an RSN element: legacy WEP network.
			entry.Encryption.Pairwise = domain.CipherWEP
			entry.Encryption.Group = domain.CipherWEP
		}
		bsstable.Insert(s.Link, entry)
		s.obs.BSSDiscovered(s.Link.Name, info.Descriptor)
		return
	}
	existing.RefreshFromScan(info.Descriptor, info.RSN)
}

func (s *Station) applyRSN(entry *domain.BSSEntry, rsn []byte) {
	if len(rsn) == 0 {
		entry.Encryption.Pairwise = domain.CipherNone
		return
	}
	parsed, err := ie.ParseRSN(rsn)
	if err != nil {
		return
	}
	if len(parsed.PairwiseCiphers) > 0 {
		entry.Encryption.Pairwise = parsed.PairwiseCiphers[0]
	}
	entry.Encryption.Group = parsed.GroupCipher
}

func rssiOf(c *codec.Classified) int {
	if rt := c.Packet.Layer(layers.LayerTypeRadioTap); rt != nil {
		if r, ok := rt.(*layers.RadioTap); ok {
			return int(r.DBMAntennaSignal)
		}
	}
	return 0
}

// beginAuthentication is the scan controller's BeginAuthentication hook:
// it moves the link into Authenticating against the chosen BSS and sends
// the first authentication frame. The caller holds link.Lock.
func (s *Station) beginAuthentication(bss *domain.BSSEntry) error {
	// An RSN without a PSK AKM suite needs 802.1X credentials this station
	// does not have; refuse the join up front instead of timing out in the
	// handshake.
	if len(bss.Encryption.ApRSN) > 0 {
		if parsed, err := ie.ParseRSN(bss.Encryption.ApRSN); err == nil && !parsed.RequiresPSK() {
			_ = s.state.SetState(domain.StateInitialized)
			return domain.ErrUnsupported
		}
	}

	from := s.Link.State
	if err := s.state.SetState(domain.StateAuthenticating); err != nil {
		return err
	}
	s.obs.StateTransition(s.Link.Name, from, domain.StateAuthenticating)
	bsstable.SetActive(s.Link, bss)

	frame, err := buildAuthRequest(s.Link.Properties.MACAddress, bss.Descriptor.BSSID)
	if err != nil {
		return err
	}
	return s.Driver.Submit(frame)
}

func (s *Station) handleAuthResponse(c *codec.Classified) {
	if s.Link.State != domain.StateAuthenticating {
		return
	}
	if !authStatusOK(c) {
		return
	}

	from := s.Link.State
	if err := s.state.SetState(domain.StateAssociating); err != nil {
		return
	}
	s.obs.StateTransition(s.Link.Name, from, domain.StateAssociating)

	active := bsstable.GetActive(s.Link)
	if active == nil {
		return
	}
	defer active.Release()

	// The station echoes the AP's RSN element as its own selection; both
	// sides of the Encryption descriptor are populated exactly when the
	// network is protected.
	if len(active.Encryption.ApRSN) > 0 {
		active.SetStationRSN(active.Encryption.ApRSN)
	}

	frame, err := buildAssocRequest(s.Link.Properties.MACAddress, active.Descriptor.BSSID, active.Encryption.ApRSN)
	if err != nil {
		return
	}
	_ = s.Driver.Submit(frame)
}

func (s *Station) handleAssocResponse(c *codec.Classified) {
	if s.Link.State != domain.StateAssociating {
		return
	}
	if !assocStatusOK(c) {
		return
	}

	active := bsstable.GetActive(s.Link)
	if active == nil {
		return
	}
	defer active.Release()

	switch active.Encryption.Pairwise {
	case domain.CipherNone, domain.CipherWEP:
		if active.Encryption.Pairwise == domain.CipherWEP {
			// Static-key WEP: the join passphrase IS the key; no handshake.
			active.InstallKey(domain.NewKey(0, domain.KeyDirectionPairwise, domain.CipherWEP, []byte(active.Passphrase)))
			active.SetRequiresEncryption(true)
		}
		from := s.Link.State
		if err := s.state.SetState(domain.StateAssociated); err != nil {
			return
		}
		s.obs.StateTransition(s.Link.Name, from, domain.StateAssociated)
		s.signalJoinDone(nil)
		return
	}

	from := s.Link.State
	if err := s.state.SetState(domain.StateEncrypted); err != nil {
		return
	}
	s.obs.StateTransition(s.Link.Name, from, domain.StateEncrypted)
	s.startHandshake(active)
}

func (s *Station) startHandshake(active *domain.BSSEntry) {
	pmk := crypto.DerivePMK(active.Passphrase, active.SSID)
	hs := eapol.New(s.Link, active, s.Link.Properties.MACAddress, pmk, s.txp, s.Clock)
	// OnComplete/OnFailed fire from eapol.Handshake.HandleFrame, which the
	// data receive path calls with link.Lock already held.
	// sync.Mutex is not reentrant, so the lock-taking
	// work here is handed off to a goroutine the same way the state
	// timer's deferred callback hands off to its worker (statemachine/
	// timer.go): the goroutine simply blocks on Lock until the caller's
	// critical section ends, then runs normally.
	hs.OnComplete = func() {
		go func() {
			s.Link.Lock.Lock()
			defer s.Link.Lock.Unlock()
			from := s.Link.State
			if err := s.state.SetState(domain.StateAssociated); err != nil {
				return
			}
			s.obs.StateTransition(s.Link.Name, from, domain.StateAssociated)
			s.signalJoinDone(nil)
		}()
	}
	hs.OnFailed = func(reason error) {
		go func() {
			s.Link.Lock.Lock()
			defer s.Link.Lock.Unlock()
			s.obs.HandshakeFailed(s.Link.Name, reason)
			// Signal the waiter before SetState: falling back to Initialized
			// fires the generic failure hook, whose Timeout signal would
			// otherwise win the race and mislabel the error.
			s.signalJoinDone(domain.ErrHandshakeFailed)
			from := s.Link.State
			_ = s.state.SetState(domain.StateInitialized)
			s.obs.StateTransition(s.Link.Name, from, domain.StateInitialized)
		}()
	}
	active.Handshake = hs
}

func (s *Station) handleDeauthOrDisassoc() {
	if !s.Link.State.IsConnected() && s.Link.State != domain.StateEncrypted {
		return
	}
	from := s.Link.State
	if err := s.state.SetState(domain.StateInitialized); err != nil {
		return
	}
	s.obs.StateTransition(s.Link.Name, from, domain.StateInitialized)
}

func (s *Station) receiveData(c *codec.Classified) {
	s.Link.Lock.Lock()
	defer s.Link.Lock.Unlock()

	df, err := codec.ParseDataFrame(c)
	if err != nil {
		s.obs.FrameDropped(s.Link.Name, "malformed")
		return
	}
	if !s.dedup.Accept(df.Transmitter, df.SequenceNumber, df.Retry) {
		s.obs.FrameDropped(s.Link.Name, "duplicate")
		return
	}

	active := s.Link.ActiveBSS
	var plaintext []byte
	if df.Protected {
		if active == nil {
			s.obs.FrameDropped(s.Link.Name, "no-active-bss")
			return
		}
		// The key-id bits occupy the same spot in the WEP and CCMP headers.
		if len(df.Payload) < 4 {
			s.obs.FrameDropped(s.Link.Name, "malformed")
			return
		}
		key := active.Key(int(df.Payload[3] >> 6))
		if key == nil {
			s.obs.FrameDropped(s.Link.Name, "no-key")
			return
		}
		var pt []byte
		var err error
		switch key.Cipher {
		case domain.CipherWEP:
			pt, err = crypto.DecryptWEP(key, df.Payload)
		default:
			aad := crypto.BuildAAD(df.FrameControl, df.Address1, df.Address2, df.Address3, df.SequenceField, nil)
			pt, err = crypto.Decrypt(key, 0, df.Transmitter, aad, df.Payload)
		}
		if err != nil {
			if errors.Is(err, domain.ErrReplayDetected) {
				s.obs.ReplayDropped(s.Link.Name, macString(df.Transmitter))
				s.obs.FrameDropped(s.Link.Name, "replay")
			} else {
				s.obs.FrameDropped(s.Link.Name, "integrity")
			}
			return
		}
		plaintext = pt
	} else {
		plaintext = df.Payload
	}

	etherType, inner, err := codec.DecapSNAP(plaintext)
	if err != nil {
		s.obs.FrameDropped(s.Link.Name, "malformed")
		return
	}

	if etherType == codec.EAPOLEtherType {
		// inner is the full EAPOL frame; skip the 4-byte 802.1X header and
		// dispatch only EAPOL-Key frames to the handshake.
		if active != nil && active.Handshake != nil && len(inner) > 4 && inner[1] == 3 {
			if hs, ok := active.Handshake.(*eapol.Handshake); ok {
				hs.HandleFrame(df.Transmitter, inner[4:])
			}
		}
		return
	}

	s.Upper.DeliverFrame(df.Destination, df.Source, etherType, inner)
}

func macString(m [6]byte) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 0, 17)
	for i, c := range m {
		if i > 0 {
			b = append(b, ':')
		}
		b = append(b, hex[c>>4], hex[c&0xf])
	}
	return string(b)
}
