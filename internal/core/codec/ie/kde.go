package ie

// Key Data Encapsulation vendor-OUI types (IEEE 802.11i table 8-1),
// carried as vendor-specific elements (tag 221) inside EAPOL Key Data.
const (
	kdeOUI0, kdeOUI1, kdeOUI2 = 0x00, 0x0f, 0xac
	kdeTypeGTK                = 1
	kdeTypePMKID              = 4
)

// FindGTKKDE returns the raw GTK bytes (key-id/tx byte and reserved byte
// stripped) from a decrypted Key Data field, or nil if absent.
func FindGTKKDE(keyData []byte) (gtk []byte, keyID int) {
	Iterate(keyData, func(id int, val []byte) {
		if gtk != nil || id != TagVendorSpecific || len(val) < 6 {
			return
		}
		if val[0] != kdeOUI0 || val[1] != kdeOUI1 || val[2] != kdeOUI2 || val[3] != kdeTypeGTK {
			return
		}
		keyID = int(val[4] & 0x03)
		gtk = append([]byte(nil), val[6:]...)
	})
	return gtk, keyID
}

// HasPMKIDKDE reports whether a PMKID KDE is present (used to recognize
// the fast-roaming PMKID hint some APs include in M1; this station does
// not implement PMK caching, so it only needs to recognize and ignore it).
func HasPMKIDKDE(keyData []byte) bool {
	found := false
	Iterate(keyData, func(id int, val []byte) {
		if found || id != TagVendorSpecific || len(val) < 4 {
			return
		}
		if val[0] == kdeOUI0 && val[1] == kdeOUI1 && val[2] == kdeOUI2 && val[3] == kdeTypePMKID {
			found = true
		}
	})
	return found
}
