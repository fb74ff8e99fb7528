// Package bsstable implements the link's BSS list: lookup, insertion,
// removal and active-BSS selection, all performed under the link lock.
// Every accessor here assumes the caller already holds
// link.Lock; bsstable does not lock internally, since its operations are
// always one step of a larger state transition the link orchestrator
// already serializes.
package bsstable

import "github.com/net80211/station/internal/core/domain"

// FindByBSSID returns the entry matching bssid, or nil. Does not adjust
// the reference count; callers that retain the pointer beyond the current
// lock hold must AddRef it themselves.
func FindByBSSID(link *domain.Link, bssid [6]byte) *domain.BSSEntry {
	for _, e := range link.BSSList {
		if e.Descriptor.BSSID == bssid {
			return e
		}
	}
	return nil
}

// FindBySSID returns the first entry advertising ssid, or nil.
func FindBySSID(link *domain.Link, ssid string) *domain.BSSEntry {
	for _, e := range link.BSSList {
		if e.Descriptor.SSID == ssid {
			return e
		}
	}
	return nil
}

// Insert adds entry to the list, taking the list's reference. entry must
// not already be a member of link.BSSList.
func Insert(link *domain.Link, entry *domain.BSSEntry) {
	link.BSSList = append(link.BSSList, entry)
}

// Remove drops entry from the list and releases the list's reference;
// list membership is one counted reference among possibly several. Removing the active BSS does not clear link.ActiveBSS; callers
// that are tearing down the active BSS must clear that field themselves
// and release its separate reference.
func Remove(link *domain.Link, entry *domain.BSSEntry) bool {
	for i, e := range link.BSSList {
		if e == entry {
			link.BSSList = append(link.BSSList[:i], link.BSSList[i+1:]...)
			entry.Release()
			return true
		}
	}
	return false
}

// GetActive returns a new reference to the link's active BSS, or nil if
// none is set. The caller owns the returned reference and must Release it.
func GetActive(link *domain.Link) *domain.BSSEntry {
	if link.ActiveBSS == nil {
		return nil
	}
	link.ActiveBSS.AddRef()
	return link.ActiveBSS
}

// SetActive installs entry as the link's active BSS, taking a new
// reference for the active-BSS slot. Any previously active entry has its
// slot reference released. entry may be nil to clear the active BSS
// without installing a new one.
func SetActive(link *domain.Link, entry *domain.BSSEntry) {
	prev := link.ActiveBSS
	if entry != nil {
		entry.AddRef()
	}
	link.ActiveBSS = entry
	if prev != nil {
		prev.Release()
	}
}

// All returns the live BSS list. Callers must not retain the slice past
// the current lock hold.
func All(link *domain.Link) []*domain.BSSEntry {
	return link.BSSList
}
