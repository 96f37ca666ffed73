package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DigitsOnly strips every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone turns free-form phone text into the digits-only international form used in
// messaging deep links. It is a heuristic, not an E.164 parse:
//   - already prefixed with countryCode: returned as-is
//   - 8 to 11 digits: treated as a local number, countryCode is prepended
//   - 12 to 15 digits: assumed to carry its own country code
//   - longer: digits returned unchanged
//
// Shorter inputs fail with ErrPhoneNormalization.
func NormalizePhone(raw string, countryCode string) (string, error) {
	digits := DigitsOnly(raw)
	cc := DigitsOnly(countryCode)

	if cc != "" && len(digits) > len(cc) && strings.HasPrefix(digits, cc) {
		return digits, nil
	}
	switch n := len(digits); {
	case n >= 8 && n <= 11:
		return cc + digits, nil
	case n > 11 && n <= 15:
		return digits, nil
	case n > 15:
		return digits, nil
	}
	return "", fmt.Errorf("%w: %q", ErrPhoneNormalization, raw)
}

// ValidatePhoneNumber checks a phone number against the numbering plan of the region that owns
// the given dialing code (e.g. "57" -> CO).
func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	region := "ZZ"
	if cc, err := strconv.Atoi(DigitsOnly(countryCode)); err == nil {
		region = libphonenumber.GetRegionCodeForCountryCode(cc)
	}
	p, err := libphonenumber.Parse(phoneNumber, region)
	if err != nil {
		return err
	}
	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}
	return nil
}
