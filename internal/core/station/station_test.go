package station

import (
	"crypto/hmac"
	"crypto/sha1"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/net80211/station/internal/core/codec"
	"github.com/net80211/station/internal/core/codec/ie"
	"github.com/net80211/station/internal/core/crypto"
	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/eapol"
	"github.com/net80211/station/internal/core/ports"
)

// fakeDriver is a recording ports.Driver; it never touches real hardware.
type fakeDriver struct {
	mu        sync.Mutex
	submitted [][]byte
	channels  []int
}

func (d *fakeDriver) SetChannel(ch int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
	return nil
}
func (d *fakeDriver) SetState(ports.HardwareFilterState) error { return nil }
func (d *fakeDriver) Submit(packet []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := append([]byte(nil), packet...)
	d.submitted = append(d.submitted, cp)
	return nil
}
func (d *fakeDriver) SupportedChannels() []int { return []int{1, 6, 11} }

func (d *fakeDriver) last() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.submitted) == 0 {
		return nil
	}
	return d.submitted[len(d.submitted)-1]
}

// fakeUpper records delivered frames.
type fakeUpper struct {
	mu        sync.Mutex
	delivered []struct {
		dst, src  [6]byte
		etherType uint16
		payload   []byte
	}
}

func (u *fakeUpper) DeliverFrame(dst, src [6]byte, etherType uint16, payload []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.delivered = append(u.delivered, struct {
		dst, src  [6]byte
		etherType uint16
		payload   []byte
	}{dst, src, etherType, payload})
}

// fakeTimer fires synchronously when Fire is called; real scheduling is
// driven explicitly by tests rather than wall-clock sleeps.
type fakeTimer struct {
	stopped bool
	fn      func()
}

func (t *fakeTimer) Stop() bool               { s := !t.stopped; t.stopped = true; return s }
func (t *fakeTimer) Reset(time.Duration) bool { return true }

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time      { return time.Time{} }
func (c *fakeClock) Sleep(time.Duration) {} // scans proceed instantly in tests
func (c *fakeClock) AfterFunc(_ time.Duration, f func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) fireAll() {
	c.mu.Lock()
	pending := append([]*fakeTimer(nil), c.timers...)
	c.timers = nil
	c.mu.Unlock()
	for _, t := range pending {
		if !t.stopped {
			t.stopped = true
			t.fn()
		}
	}
}

var (
	testBSSID = [6]byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	testSTA   = [6]byte{0xaa, 1, 2, 3, 4, 5}
)

func newStationFixture(t *testing.T) (*Station, *fakeDriver, *fakeUpper, *fakeClock) {
	t.Helper()
	link := domain.NewLink("wlan-test", domain.RadioProperties{
		MACAddress:        testSTA,
		SupportedChannels: []int{1, 6, 11},
	})
	driver := &fakeDriver{}
	upper := &fakeUpper{}
	clock := &fakeClock{}
	s := New(link, driver, upper, clock, nil)
	t.Cleanup(s.Close)
	require.NoError(t, s.BringUp())
	return s, driver, upper, clock
}

func serializeBeacon(t *testing.T, bssid [6]byte, ssid string, channel byte, rsn []byte) []byte {
	return serializeBeaconCaps(t, bssid, ssid, channel, rsn, 0x0001)
}

func serializeBeaconCaps(t *testing.T, bssid [6]byte, ssid string, channel byte, rsn []byte, caps uint16) []byte {
	t.Helper()
	broadcast, _ := net.ParseMAC("ff:ff:ff:ff:ff:ff")
	dot11 := &layers.Dot11{Type: layers.Dot11TypeMgmtProbeResp, Address1: broadcast, Address2: bssid[:], Address3: bssid[:]}
	resp := &layers.Dot11MgmtProbeResp{Interval: 100, Flags: caps}

	var ies []byte
	ies = append(ies, 0, byte(len(ssid)))
	ies = append(ies, []byte(ssid)...)
	ies = append(ies, 3, 1, channel)
	if rsn != nil {
		ies = append(ies, 48, byte(len(rsn)))
		ies = append(ies, rsn...)
	}

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &layers.RadioTap{}, dot11, resp, gopacket.Payload(ies)))
	return buf.Bytes()
}

func serializeAuthResp(t *testing.T, bssid, sta [6]byte, status layers.Dot11Status) []byte {
	t.Helper()
	dot11 := &layers.Dot11{Type: layers.Dot11TypeMgmtAuthentication, Address1: sta[:], Address2: bssid[:], Address3: bssid[:]}
	auth := &layers.Dot11MgmtAuthentication{Algorithm: layers.Dot11AlgorithmOpen, Sequence: 2, Status: status}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &layers.RadioTap{}, dot11, auth))
	return buf.Bytes()
}

func serializeAssocResp(t *testing.T, bssid, sta [6]byte, status layers.Dot11Status) []byte {
	t.Helper()
	dot11 := &layers.Dot11{Type: layers.Dot11TypeMgmtAssociationResp, Address1: sta[:], Address2: bssid[:], Address3: bssid[:]}
	assoc := &layers.Dot11MgmtAssociationResp{CapabilityInfo: 1, Status: status, AID: 1}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &layers.RadioTap{}, dot11, assoc))
	return buf.Bytes()
}

// TestOpenNetworkJoinReachesAssociatedAndSends walks the full open-network
// join: scan, authenticate, associate, then a first data frame with
// sequence number 1.
func TestOpenNetworkJoinReachesAssociatedAndSends(t *testing.T) {
	s, driver, _, _ := newStationFixture(t)

	s.Receive(serializeBeacon(t, testBSSID, "cafe", 6, nil))

	joinErr := make(chan error, 1)
	go func() { joinErr <- s.Join("cafe", "") }()

	require.Eventually(t, func() bool {
		return linkStateIs(s, domain.StateAuthenticating)
	}, time.Second, time.Millisecond)
	s.Receive(serializeAuthResp(t, testBSSID, testSTA, layers.Dot11StatusSuccess))

	require.Eventually(t, func() bool {
		return linkStateIs(s, domain.StateAssociating)
	}, time.Second, time.Millisecond)
	s.Receive(serializeAssocResp(t, testBSSID, testSTA, layers.Dot11StatusSuccess))

	require.NoError(t, <-joinErr)

	s.Link.Lock.Lock()
	assert.Equal(t, domain.StateAssociated, s.Link.State)
	assert.False(t, s.Link.IsDataPaused())
	s.Link.Lock.Unlock()

	require.NoError(t, s.Send(testSTA, [6]byte{9, 9, 9, 9, 9, 9}, 0x0800, []byte("hi")))
	assert.Equal(t, uint16(1), s.Link.CurrentSequenceNumber())

	assert.NotEmpty(t, driver.submitted)
}

func linkStateIs(s *Station, want domain.LinkState) bool {
	s.Link.Lock.Lock()
	defer s.Link.Lock.Unlock()
	return s.Link.State == want
}

// TestAuthTimeoutDemotesAndFailsJoin: the AP never answers the
// authentication request, the state timer fires, and Join reports
// Timeout.
func TestAuthTimeoutDemotesAndFailsJoin(t *testing.T) {
	s, _, _, clock := newStationFixture(t)
	s.Receive(serializeBeacon(t, testBSSID, "ghost", 1, nil))

	joinErr := make(chan error, 1)
	go func() { joinErr <- s.Join("ghost", "") }()

	require.Eventually(t, func() bool {
		s.Link.Lock.Lock()
		defer s.Link.Lock.Unlock()
		return s.Link.State == domain.StateAuthenticating
	}, time.Second, time.Millisecond)

	clock.fireAll()

	err := <-joinErr
	assert.ErrorIs(t, err, domain.ErrTimeout)

	s.Link.Lock.Lock()
	assert.Equal(t, domain.StateInitialized, s.Link.State)
	s.Link.Lock.Unlock()
}

// TestReceiveDropsDuplicateDataFrame exercises the codec's per-sender
// duplicate suppression wired into Station.Receive.
func TestReceiveDropsDuplicateDataFrame(t *testing.T) {
	s, _, upper, _ := newStationFixture(t)
	s.Link.Lock.Lock()
	s.Link.State = domain.StateAssociated
	bss := domain.NewBSSEntry(domain.BSSDescriptor{BSSID: testBSSID, SSID: "cafe"})
	s.Link.ActiveBSS = bss
	s.Link.Lock.Unlock()

	s.Receive(serializeOpenData(t, testBSSID, testSTA, 5, false))
	s.Receive(serializeOpenData(t, testBSSID, testSTA, 5, true)) // retransmission: same sequence, retry bit set

	assert.Len(t, upper.delivered, 1)
}

// wpa2RSN is a WPA2-PSK/CCMP RSN element body: version 1, group CCMP, one
// pairwise suite (CCMP), one AKM suite (PSK), no capabilities.
var wpa2RSN = []byte{1, 0, 0x00, 0x0f, 0xac, 4, 1, 0, 0x00, 0x0f, 0xac, 4, 1, 0, 0x00, 0x0f, 0xac, 2, 0, 0}

// serializeAPData wraps payload in an AP->station 802.11 data frame with
// LLC/SNAP encapsulation, the shape the receive path decaps.
func serializeAPData(t *testing.T, bssid, sta [6]byte, seq uint16, etherType layers.EthernetType, payload []byte) []byte {
	t.Helper()
	dot11 := &layers.Dot11{
		Type:           layers.Dot11TypeData,
		Flags:          layers.Dot11Flags(0x02), // from-DS=1
		Address1:       sta[:],
		Address2:       bssid[:],
		Address3:       bssid[:],
		SequenceNumber: seq,
	}
	llc := &layers.LLC{DSAP: 0xaa, SSAP: 0xaa, Control: 0x03}
	snap := &layers.SNAP{OrganizationalCode: []byte{0, 0, 0}, Type: etherType}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &layers.RadioTap{}, dot11, llc, snap, gopacket.Payload(payload)))
	return buf.Bytes()
}

// eapolKeyMICOffset is the MIC field's offset within a full EAPOL frame
// (4-byte 802.1X header + 77 bytes of key-frame fields).
const eapolKeyMICOffset = 81

// serializeEAPOLKey renders a full EAPOL frame for f, MICed with kck when
// non-nil, as the AP side of the 4-way exchange would put it on the wire.
func serializeEAPOLKey(t *testing.T, f *eapol.KeyFrame, kck []byte) []byte {
	t.Helper()
	body := eapol.Build(f)
	full := append(eapol.EAPOLHeader(len(body)), body...)
	if kck != nil {
		mac := hmac.New(sha1.New, kck)
		mac.Write(full)
		copy(full[eapolKeyMICOffset:eapolKeyMICOffset+16], mac.Sum(nil)[:16])
	}
	return full
}

// lastEAPOLKey digs the most recent EAPOL-Key frame out of the driver's
// submitted list, or nil.
func lastEAPOLKey(t *testing.T, d *fakeDriver) *eapol.KeyFrame {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.submitted) - 1; i >= 0; i-- {
		c, err := codec.Classify(d.submitted[i])
		if err != nil || c.Class != codec.ClassData {
			continue
		}
		df, err := codec.ParseDataFrame(c)
		if err != nil {
			continue
		}
		etherType, inner, err := codec.DecapSNAP(df.Payload)
		if err != nil || etherType != codec.EAPOLEtherType || len(inner) <= 4 {
			continue
		}
		frame, err := eapol.ParseKeyFrame(inner[4:])
		if err != nil {
			continue
		}
		return frame
	}
	return nil
}

// TestWPA2JoinHandshakeAndEncryptedSend walks the full WPA2-PSK join:
// scan finds a CCMP network, the 4-way handshake completes in order, and
// the first data frame after association carries a valid CCMP header with
// PN=1.
func TestWPA2JoinHandshakeAndEncryptedSend(t *testing.T) {
	s, driver, _, _ := newStationFixture(t)

	s.Receive(serializeBeacon(t, testBSSID, "home", 6, wpa2RSN))

	joinErr := make(chan error, 1)
	go func() { joinErr <- s.Join("home", "abcdefgh") }()

	require.Eventually(t, func() bool { return linkStateIs(s, domain.StateAuthenticating) }, time.Second, time.Millisecond)
	s.Receive(serializeAuthResp(t, testBSSID, testSTA, layers.Dot11StatusSuccess))

	require.Eventually(t, func() bool { return linkStateIs(s, domain.StateAssociating) }, time.Second, time.Millisecond)
	s.Receive(serializeAssocResp(t, testBSSID, testSTA, layers.Dot11StatusSuccess))

	require.Eventually(t, func() bool { return linkStateIs(s, domain.StateEncrypted) }, time.Second, time.Millisecond)

	pmk := crypto.DerivePMK("abcdefgh", "home")
	anonce := make([]byte, 32)
	anonce[0] = 0x5a

	// M1: pairwise | Ack, descriptor version 2.
	m1 := &eapol.KeyFrame{DescriptorType: 2, KeyInformation: 0x008a, ReplayCounter: 1}
	copy(m1.Nonce[:], anonce)
	s.Receive(serializeAPData(t, testBSSID, testSTA, 20, layers.EthernetTypeEAPOL, serializeEAPOLKey(t, m1, nil)))

	m2 := lastEAPOLKey(t, driver)
	require.NotNil(t, m2, "station should have answered M1 with M2")
	require.Equal(t, 2, m2.DetermineMessageNumber())

	ptk := crypto.DerivePTK(pmk, testBSSID, testSTA, anonce, m2.Nonce[:])

	gtk := make([]byte, 16)
	for i := range gtk {
		gtk[i] = byte(0xa0 + i)
	}
	kde := ie.Build(ie.TagVendorSpecific, append([]byte{0x00, 0x0f, 0xac, 1, 0x01, 0x00}, gtk...))
	for len(kde)%8 != 0 {
		kde = append(kde, 0)
	}
	wrapped, err := eapol.AESWrap(crypto.KEK(ptk), kde)
	require.NoError(t, err)

	// M3: pairwise | Install | Ack | MIC | Secure | EncryptedKeyData.
	m3 := &eapol.KeyFrame{DescriptorType: 2, KeyInformation: 0x13ca, ReplayCounter: 2, KeyData: wrapped}
	s.Receive(serializeAPData(t, testBSSID, testSTA, 21, layers.EthernetTypeEAPOL, serializeEAPOLKey(t, m3, crypto.KCK(ptk))))

	require.NoError(t, <-joinErr)
	assert.True(t, linkStateIs(s, domain.StateAssociated))

	m4 := lastEAPOLKey(t, driver)
	require.NotNil(t, m4)
	assert.Equal(t, 4, m4.DetermineMessageNumber())

	require.NoError(t, s.Send(testSTA, [6]byte{9, 9, 9, 9, 9, 9}, 0x0800, []byte("secret")))

	sealed := driver.last()
	c, err := codec.Classify(sealed)
	require.NoError(t, err)
	df, err := codec.ParseDataFrame(c)
	require.NoError(t, err)
	assert.True(t, df.Protected)

	pn, keyID, err := crypto.ParseCCMPHeader(df.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pn)
	assert.Equal(t, 0, keyID)

	rxKey := domain.NewKey(0, domain.KeyDirectionPairwise, domain.CipherCCMP, crypto.TK(ptk))
	aad := crypto.BuildAAD(df.FrameControl, df.Address1, df.Address2, df.Address3, df.SequenceField, nil)
	plain, err := crypto.Decrypt(rxKey, 0, df.Transmitter, aad, df.Payload)
	require.NoError(t, err, "frame must decrypt with the negotiated temporal key")

	etherType, inner, err := codec.DecapSNAP(plain)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0800), etherType)
	assert.Equal(t, []byte("secret"), inner)
}

// TestJoinEnterpriseOnlyNetworkFails: an RSN whose only AKM suite is
// 802.1X cannot be joined with a passphrase; Join refuses up front instead
// of timing out in the handshake.
func TestJoinEnterpriseOnlyNetworkFails(t *testing.T) {
	s, _, _, _ := newStationFixture(t)

	// Same CCMP ciphers as wpa2RSN, but the AKM suite is 802.1X (type 1).
	enterpriseRSN := []byte{1, 0, 0x00, 0x0f, 0xac, 4, 1, 0, 0x00, 0x0f, 0xac, 4, 1, 0, 0x00, 0x0f, 0xac, 1, 0, 0}
	s.Receive(serializeBeacon(t, testBSSID, "corp", 6, enterpriseRSN))

	err := s.Join("corp", "abcdefgh")
	assert.ErrorIs(t, err, domain.ErrUnsupported)
	assert.True(t, linkStateIs(s, domain.StateInitialized))
}

// TestWEPJoinInstallsStaticKeyAndEncrypts covers the legacy static-key
// path: a privacy-flagged network without an RSN element takes the join
// passphrase as its WEP key, skips the 4-way handshake, and seals outbound
// data with RC4.
func TestWEPJoinInstallsStaticKeyAndEncrypts(t *testing.T) {
	s, driver, _, _ := newStationFixture(t)

	s.Receive(serializeBeaconCaps(t, testBSSID, "attic", 1, nil, 0x0011))

	joinErr := make(chan error, 1)
	go func() { joinErr <- s.Join("attic", "abcde") }()

	require.Eventually(t, func() bool { return linkStateIs(s, domain.StateAuthenticating) }, time.Second, time.Millisecond)
	s.Receive(serializeAuthResp(t, testBSSID, testSTA, layers.Dot11StatusSuccess))

	require.Eventually(t, func() bool { return linkStateIs(s, domain.StateAssociating) }, time.Second, time.Millisecond)
	s.Receive(serializeAssocResp(t, testBSSID, testSTA, layers.Dot11StatusSuccess))

	require.NoError(t, <-joinErr)
	assert.True(t, linkStateIs(s, domain.StateAssociated))

	require.NoError(t, s.Send(testSTA, [6]byte{9, 9, 9, 9, 9, 9}, 0x0800, []byte("legacy")))

	c, err := codec.Classify(driver.last())
	require.NoError(t, err)
	df, err := codec.ParseDataFrame(c)
	require.NoError(t, err)
	assert.True(t, df.Protected)

	rxKey := domain.NewKey(0, domain.KeyDirectionPairwise, domain.CipherWEP, []byte("abcde"))
	plain, err := crypto.DecryptWEP(rxKey, df.Payload)
	require.NoError(t, err)

	etherType, inner, err := codec.DecapSNAP(plain)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0800), etherType)
	assert.Equal(t, []byte("legacy"), inner)
}

// TestBackgroundScanWhileAssociatedDoesNotDemote: a background scan
// leaves the association intact and new BSS entries keep landing on the
// table.
func TestBackgroundScanWhileAssociatedDoesNotDemote(t *testing.T) {
	s, _, _, _ := newStationFixture(t)

	s.Link.Lock.Lock()
	bss := domain.NewBSSEntry(domain.BSSDescriptor{BSSID: testBSSID, SSID: "cafe"})
	s.Link.BSSList = append(s.Link.BSSList, bss)
	bss.AddRef()
	s.Link.ActiveBSS = bss
	s.Link.State = domain.StateAssociated
	s.Link.Flags &^= domain.FlagDataPaused
	s.Link.Lock.Unlock()

	require.NoError(t, s.Scan(ScanRequest{Background: true, Broadcast: true}))

	s.Link.Lock.Lock()
	assert.Equal(t, domain.StateAssociated, s.Link.State)
	assert.False(t, s.Link.IsDataPaused())
	s.Link.Lock.Unlock()

	other := [6]byte{0x02, 0x99, 0x88, 0x77, 0x66, 0x55}
	s.Receive(serializeBeacon(t, other, "neighbor", 11, nil))

	s.Link.Lock.Lock()
	assert.Len(t, s.Link.BSSList, 2)
	s.Link.Lock.Unlock()
}

func serializeOpenData(t *testing.T, bssid, sta [6]byte, seq uint16, retry bool) []byte {
	t.Helper()
	flags := layers.Dot11Flags(0x02) // from-DS=1
	if retry {
		flags |= 0x08
	}
	dot11 := &layers.Dot11{
		Type:           layers.Dot11TypeData,
		Flags:          flags,
		Address1:       sta[:],
		Address2:       bssid[:],
		Address3:       bssid[:],
		SequenceNumber: seq,
	}
	llc := &layers.LLC{DSAP: 0xaa, SSAP: 0xaa, Control: 0x03}
	snap := &layers.SNAP{OrganizationalCode: []byte{0, 0, 0}, Type: layers.EthernetTypeIPv4}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &layers.RadioTap{}, dot11, llc, snap, gopacket.Payload([]byte("payload"))))
	return buf.Bytes()
}
