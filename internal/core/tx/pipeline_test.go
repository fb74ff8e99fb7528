package tx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/net80211/station/internal/core/codec"
	"github.com/net80211/station/internal/core/domain"
	"github.com/net80211/station/internal/core/ports"
)

type recordingDriver struct {
	submitted [][]byte
}

func (d *recordingDriver) SetChannel(int) error                     { return nil }
func (d *recordingDriver) SetState(ports.HardwareFilterState) error { return nil }
func (d *recordingDriver) Submit(packet []byte) error {
	d.submitted = append(d.submitted, packet)
	return nil
}
func (d *recordingDriver) SupportedChannels() []int { return []int{1, 6, 11} }

func newTestLink() (*domain.Link, *domain.BSSEntry) {
	link := domain.NewLink("wlan-test", domain.RadioProperties{MACAddress: [6]byte{0xaa, 1, 2, 3, 4, 5}})
	link.State = domain.StateAssociated
	link.Flags &^= domain.FlagDataPaused // as SetState would have on entering Associated
	bss := domain.NewBSSEntry(domain.BSSDescriptor{BSSID: [6]byte{0xbb, 1, 2, 3, 4, 5}, SSID: "lab"})
	link.ActiveBSS = bss
	return link, bss
}

func TestSendOpenNetworkHitsDriverWithIncreasingSequence(t *testing.T) {
	link, _ := newTestLink()
	driver := &recordingDriver{}
	p := &Pipeline{Link: link, Driver: driver}

	require.NoError(t, p.Send(link.Properties.MACAddress, [6]byte{1, 2, 3, 4, 5, 6}, 0x0800, []byte("hello")))
	require.NoError(t, p.Send(link.Properties.MACAddress, [6]byte{1, 2, 3, 4, 5, 6}, 0x0800, []byte("world")))

	require.Len(t, driver.submitted, 2)
	assert.Equal(t, uint16(2), link.CurrentSequenceNumber())
}

func TestSendQueuesWhenPaused(t *testing.T) {
	link, _ := newTestLink()
	link.Flags |= domain.FlagDataPaused
	driver := &recordingDriver{}
	p := &Pipeline{Link: link, Driver: driver}

	require.NoError(t, p.Send(link.Properties.MACAddress, [6]byte{1}, 0x0800, []byte("queued")))
	assert.Empty(t, driver.submitted)
	assert.Len(t, link.PausedPackets, 1)
}

func TestDrainFlushesInOrder(t *testing.T) {
	link, _ := newTestLink()
	driver := &recordingDriver{}
	p := &Pipeline{Link: link, Driver: driver}

	p.Drain([][]byte{[]byte("a"), []byte("b"), []byte("c")})
	require.Len(t, driver.submitted, 3)
	assert.Equal(t, []byte("a"), driver.submitted[0])
	assert.Equal(t, []byte("c"), driver.submitted[2])
}

// TestPauseQueueDrainPreservesOrderAndSequence exercises the pause/resume
// contract end to end: frames queued while paused reach the driver in FIFO
// order with strictly increasing sequence numbers once resumed.
func TestPauseQueueDrainPreservesOrderAndSequence(t *testing.T) {
	link, _ := newTestLink()
	driver := &recordingDriver{}
	p := &Pipeline{Link: link, Driver: driver}

	p.Pause()
	for _, msg := range []string{"first", "second", "third"} {
		require.NoError(t, p.Send(link.Properties.MACAddress, [6]byte{1, 2, 3, 4, 5, 6}, 0x0800, []byte(msg)))
	}
	require.Empty(t, driver.submitted)
	require.Len(t, link.PausedPackets, 3)

	link.Flags &^= domain.FlagDataPaused
	pending := link.PausedPackets
	link.PausedPackets = nil
	p.Drain(pending)

	require.Len(t, driver.submitted, 3)
	var seqs []uint16
	for _, raw := range driver.submitted {
		c, err := codec.Classify(raw)
		require.NoError(t, err)
		df, err := codec.ParseDataFrame(c)
		require.NoError(t, err)
		seqs = append(seqs, df.SequenceNumber)
	}
	assert.Equal(t, []uint16{1, 2, 3}, seqs)
}

// A Send with the zero destination goes out as a broadcast frame.
func TestSendZeroDestinationBroadcasts(t *testing.T) {
	link, _ := newTestLink()
	driver := &recordingDriver{}
	p := &Pipeline{Link: link, Driver: driver}

	require.NoError(t, p.Send(link.Properties.MACAddress, [6]byte{}, 0x0800, []byte("hello")))
	require.Len(t, driver.submitted, 1)

	c, err := codec.Classify(driver.submitted[0])
	require.NoError(t, err)
	df, err := codec.ParseDataFrame(c)
	require.NoError(t, err)
	assert.Equal(t, [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, df.Destination)
}

func TestSendWithoutActiveBSSFails(t *testing.T) {
	link := domain.NewLink("wlan-test", domain.RadioProperties{})
	p := &Pipeline{Link: link, Driver: &recordingDriver{}}
	err := p.Send([6]byte{1}, [6]byte{2}, 0x0800, []byte("x"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
