package device

import (
	"fmt"
	"strings"
)

// macLength is the number of hex characters in a normalised MAC address.
const macLength = 12

// NormalizeMAC canonicalises a device identity to 12 uppercase hex
// characters with no separators. Accepts the common wire forms
// ("aa:bb:cc:dd:ee:ff", "AA-BB-CC-DD-EE-FF", "aabbccddeeff") and is
// idempotent: normalising an already-normalised identity returns it
// unchanged.
//
// Parameters:
//   - raw: Device identity as received (topic segment or payload field)
//
// Returns:
//   - string: Canonical identity
//   - error: ErrInvalidMAC if the input does not reduce to 12 hex chars
func NormalizeMAC(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '.', ' ':
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(raw))

	cleaned = strings.ToUpper(cleaned)

	if len(cleaned) != macLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, raw)
	}
	for _, r := range cleaned {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return "", fmt.Errorf("%w: %q", ErrInvalidMAC, raw)
		}
	}

	return cleaned, nil
}

// FriendlyName builds the default display name for a newly registered
// device from the last four characters of its normalised identity.
func FriendlyName(mac string) string {
	if len(mac) < 4 {
		return "New Device " + mac
	}
	return "New Device " + mac[len(mac)-4:]
}
