package scan

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/ports"
	"github.com/net80211/station/internal/core/statemachine"
)

type fakeDriver struct {
	mu       sync.Mutex
	channels []int
}

func (d *fakeDriver) SetChannel(ch int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
	return nil
}
func (d *fakeDriver) SetState(ports.HardwareFilterState) error { return nil }
func (d *fakeDriver) Submit([]byte) error                      { return nil }
func (d *fakeDriver) SupportedChannels() []int                 { return []int{1, 6, 11} }

type fakeClock struct{ slept int }

func (c *fakeClock) Now() time.Time                              { return time.Time{} }
func (c *fakeClock) Sleep(time.Duration)                         { c.slept++ }
func (c *fakeClock) AfterFunc(time.Duration, func()) ports.Timer { return fakeTimer{} }

type fakeTimer struct{}

func (fakeTimer) Stop() bool               { return true }
func (fakeTimer) Reset(time.Duration) bool { return true }

func newScanFixture(t *testing.T) (*Controller, *domain.Link, *fakeDriver) {
	t.Helper()
	link := domain.NewLink("wlan-test", domain.RadioProperties{SupportedChannels: []int{1, 6, 11}})
	link.State = domain.StateInitialized
	driver := &fakeDriver{}
	clock := &fakeClock{}
	stateCtl := statemachine.NewController(link, driver, clock)
	t.Cleanup(stateCtl.Close)

	ctrl := &Controller{Link: link, Driver: driver, Clock: clock, State: stateCtl}
	return ctrl, link, driver
}

func TestScanSweepsEveryChannel(t *testing.T) {
	ctrl, link, driver := newScanFixture(t)
	req := &domain.ScanState{Link: link, Channels: []int{1, 6, 11}, Flags: domain.ScanFlagBroadcast}

	err := ctrl.Run(req)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 6, 11}, driver.channels)
	assert.Equal(t, domain.StateInitialized, link.State)
}

func TestScanAlreadyScanningRejectsForegroundScan(t *testing.T) {
	ctrl, link, _ := newScanFixture(t)
	link.State = domain.StateProbing

	req := &domain.ScanState{Link: link, Channels: []int{1}}
	err := ctrl.Run(req)
	assert.ErrorIs(t, err, domain.ErrAlreadyScanning)
}

func TestScanJoinPicksStrongestMatchingBSS(t *testing.T) {
	ctrl, link, _ := newScanFixture(t)

	weak := domain.NewBSSEntry(domain.BSSDescriptor{BSSID: [6]byte{1}, SSID: "cafe", RSSI: -80})
	strong := domain.NewBSSEntry(domain.BSSDescriptor{BSSID: [6]byte{2}, SSID: "cafe", RSSI: -40})
	link.BSSList = append(link.BSSList, weak, strong)

	var joined *domain.BSSEntry
	ctrl.BeginAuthentication = func(bss *domain.BSSEntry) error {
		joined = bss
		return nil
	}

	req := &domain.ScanState{
		Link:       link,
		Channels:   []int{1, 6, 11},
		Flags:      domain.ScanFlagBroadcast | domain.ScanFlagJoin,
		TargetSSID: "cafe",
	}
	err := ctrl.Run(req)
	require.NoError(t, err)
	require.NotNil(t, joined)
	assert.Equal(t, strong, joined)
	assert.Equal(t, "cafe", joined.SSID)
}

func TestScanJoinWithNoMatchFallsBackToInitialized(t *testing.T) {
	ctrl, link, _ := newScanFixture(t)
	req := &domain.ScanState{
		Link:       link,
		Channels:   []int{1},
		Flags:      domain.ScanFlagJoin,
		TargetSSID: "nowhere",
	}
	err := ctrl.Run(req)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInitialized, link.State)
}

// teardownClock flips the link to Uninitialized the first time Sleep is
// called, simulating link teardown racing a scan dwell.
type teardownClock struct {
	fakeClock
	link *domain.Link
}

func (c *teardownClock) Sleep(d time.Duration) {
	c.fakeClock.Sleep(d)
	c.link.Lock.Lock()
	c.link.State = domain.StateUninitialized
	c.link.Lock.Unlock()
}

func TestScanCancelledOnTeardownLeavesTableUntouched(t *testing.T) {
	link := domain.NewLink("wlan-test", domain.RadioProperties{SupportedChannels: []int{1, 6, 11}})
	link.State = domain.StateInitialized
	driver := &fakeDriver{}
	clock := &teardownClock{link: link}
	stateCtl := statemachine.NewController(link, driver, clock)
	t.Cleanup(stateCtl.Close)
	ctrl := &Controller{Link: link, Driver: driver, Clock: clock, State: stateCtl}

	req := &domain.ScanState{Link: link, Channels: []int{1, 6, 11}, Flags: domain.ScanFlagJoin, TargetSSID: "cafe"}
	err := ctrl.Run(req)
	require.NoError(t, err)
	assert.Empty(t, link.BSSList)
}
