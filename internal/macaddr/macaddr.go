// Package macaddr canonicalizes MAC addresses and converts between the
// canonical form and SNMP OID decimal suffixes.
package macaddr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidMAC is wrapped by Normalize and ToOIDSuffix on malformed input.
var ErrInvalidMAC = errors.New("invalid MAC address")

// ErrInvalidOIDSuffix is wrapped by FromOIDSuffix on malformed input.
var ErrInvalidOIDSuffix = errors.New("invalid OID suffix")

// Normalize converts a MAC address to lowercase colon-separated form
// (aa:bb:cc:dd:ee:ff). Accepted inputs: colon-, dash-, or Cisco
// dot-separated, or bare 12 hex digits, any case, surrounding
// whitespace ignored. Empty input returns the empty string, which all
// callers treat as "absent".
func Normalize(mac string) (string, error) {
	if mac == "" {
		return "", nil
	}

	clean := strings.ToLower(strings.TrimSpace(mac))
	clean = strings.NewReplacer(":", "", "-", "", ".", "").Replace(clean)

	if len(clean) != 12 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	for _, c := range clean {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
		}
	}

	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(clean[i : i+2])
	}
	return b.String(), nil
}

// ToOIDSuffix converts a MAC address to its SNMP OID suffix of six
// decimal octets, e.g. aa:bb:cc:dd:ee:ff -> "170.187.204.221.238.255".
func ToOIDSuffix(mac string) (string, error) {
	normalized, err := Normalize(mac)
	if err != nil {
		return "", err
	}
	if normalized == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidMAC)
	}

	parts := make([]string, 0, 6)
	for _, octet := range strings.Split(normalized, ":") {
		v, err := strconv.ParseUint(octet, 16, 8)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
		}
		parts = append(parts, strconv.FormatUint(v, 10))
	}
	return strings.Join(parts, "."), nil
}

// FromOIDSuffix converts a six-component decimal OID suffix back to a
// canonical MAC, e.g. "170.187.204.221.238.255" -> aa:bb:cc:dd:ee:ff.
func FromOIDSuffix(suffix string) (string, error) {
	parts := strings.Split(suffix, ".")
	if len(parts) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidOIDSuffix, suffix)
	}

	octets := make([]string, 6)
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidOIDSuffix, suffix)
		}
		octets[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(octets, ":"), nil
}
