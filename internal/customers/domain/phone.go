// Package domain holds the customer lookup primitives.
package domain

import "strings"

// SanitizePhone strips everything but digits, so "+351 912-345-678" and
// "912345678" compare equal. A leading + is dropped with its country
// formatting; digits are kept as entered.
func SanitizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ReversePhone returns the digits of a phone number reversed. Stored
// alongside the number it turns suffix search ("ends in 678") into an
// index-friendly prefix scan.
func ReversePhone(phone string) string {
	digits := SanitizePhone(phone)
	runes := []rune(digits)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// MinSuffixLen is the shortest phone fragment accepted for suffix search;
// shorter fragments match too much to be useful.
const MinSuffixLen = 3
