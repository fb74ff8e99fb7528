package bsstable

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/net80211/station/internal/core/domain"
)

func newTestLink() *domain.Link {
	return domain.NewLink("wlan-test", domain.RadioProperties{})
}

func TestInsertFindRemove(t *testing.T) {
	link := newTestLink()
	entry := domain.NewBSSEntry(domain.BSSDescriptor{BSSID: [6]byte{1, 2, 3, 4, 5, 6}, SSID: "lab"})

	Insert(link, entry)
	assert.Equal(t, entry, FindByBSSID(link, [6]byte{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, entry, FindBySSID(link, "lab"))
	assert.Nil(t, FindByBSSID(link, [6]byte{9, 9, 9, 9, 9, 9}))

	assert.True(t, Remove(link, entry))
	assert.Nil(t, FindByBSSID(link, [6]byte{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, int32(0), entry.RefCount())
}

func TestRemoveUnknownEntryIsNoop(t *testing.T) {
	link := newTestLink()
	entry := domain.NewBSSEntry(domain.BSSDescriptor{})
	assert.False(t, Remove(link, entry))
}

func TestSetActiveTakesDistinctReference(t *testing.T) {
	link := newTestLink()
	entry := domain.NewBSSEntry(domain.BSSDescriptor{BSSID: [6]byte{1}})
	Insert(link, entry) // list holds ref 1

	SetActive(link, entry) // active slot holds ref 2
	assert.Equal(t, int32(2), entry.RefCount())

	active := GetActive(link) // caller holds ref 3
	assert.Equal(t, int32(3), entry.RefCount())
	active.Release()
	assert.Equal(t, int32(2), entry.RefCount())

	SetActive(link, nil) // releases the active slot's reference
	assert.Equal(t, int32(1), entry.RefCount())

	assert.True(t, Remove(link, entry)) // releases the list's reference
	assert.Equal(t, int32(0), entry.RefCount())
}

func TestSetActiveReplacesPrevious(t *testing.T) {
	link := newTestLink()
	a := domain.NewBSSEntry(domain.BSSDescriptor{BSSID: [6]byte{1}})
	b := domain.NewBSSEntry(domain.BSSDescriptor{BSSID: [6]byte{2}})

	SetActive(link, a)
	assert.Equal(t, int32(2), a.RefCount())

	SetActive(link, b)
	assert.Equal(t, int32(1), a.RefCount()) // previous active ref released
	assert.Equal(t, int32(2), b.RefCount())
}
