// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"mime"
	stdmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
)

// NormalizeAddress extracts the address from an RFC 5322 From header
// value and lower-cases both the address and its domain. Returns
// empty strings if no address can be parsed.
func NormalizeAddress(fromHeader string) (address, domain string) {
	fromHeader = strings.TrimSpace(fromHeader)
	if fromHeader == "" {
		return "", ""
	}

	addr, err := stdmail.ParseAddress(fromHeader)
	if err != nil {
		// Some From values carry a list; fall back to the first
		// parseable element.
		for _, part := range strings.Split(fromHeader, ",") {
			if a, err := stdmail.ParseAddress(strings.TrimSpace(part)); err == nil {
				addr = a
				break
			}
		}
	}

	var candidate string
	if addr != nil {
		candidate = addr.Address
	} else {
		// Bare addresses without display name still count.
		candidate = strings.Trim(fromHeader, "<>")
	}

	address = strings.ToLower(strings.TrimSpace(candidate))
	if at := strings.LastIndexByte(address, '@'); at > 0 && at < len(address)-1 {
		return address, address[at+1:]
	}
	return address, ""
}

// DecodeSubject decodes RFC 2047 encoded words in a Subject header.
// Undecodable input is returned as-is.
func DecodeSubject(raw string) string {
	dec := &mime.WordDecoder{
		CharsetReader: charset.Reader,
	}
	subject, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return subject
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
}

// ParseDate converts a Date header to UTC, trying the layouts Gmail
// is known to emit. A malformed header falls back to the given time
// instead of failing the item.
func ParseDate(header string, fallback time.Time) time.Time {
	header = strings.TrimSpace(header)
	if header == "" {
		return fallback
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, header); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

func ShortSubject(subject string) string {
	if (len(subject)) > 30 {
		subject = subject[:30] + "..."
	}
	return subject
}
