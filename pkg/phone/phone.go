// Package phone normalizes phone numbers and WhatsApp JIDs.
package phone

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	UserSuffix  = "@s.whatsapp.net"
	GroupSuffix = "@g.us"
	LIDSuffix   = "@lid"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// Digits keeps only the ASCII digits of raw.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize turns a phone or user JID into E.164 ("+5511988887777").
// Device suffixes (":12") and the user JID suffix are dropped. LIDs and
// group JIDs are not phones and yield "".
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || IsLID(raw) || IsGroupJID(raw) {
		return ""
	}
	local := LocalPart(raw)
	if i := strings.Index(local, ":"); i >= 0 {
		local = local[:i]
	}
	d := strings.TrimLeft(Digits(local), "0")
	if d == "" {
		return ""
	}
	return "+" + d
}

// IsE164 reports whether s is a valid E.164 number with the leading plus.
func IsE164(s string) bool {
	return e164.MatchString(s)
}

func IsLID(jid string) bool {
	return strings.HasSuffix(strings.TrimSpace(jid), LIDSuffix)
}

func IsGroupJID(jid string) bool {
	return strings.HasSuffix(strings.TrimSpace(jid), GroupSuffix)
}

func IsUserJID(jid string) bool {
	return strings.HasSuffix(strings.TrimSpace(jid), UserSuffix)
}

// LocalPart returns what precedes the "@" of a JID, or the input when there is none.
func LocalPart(jid string) string {
	if i := strings.Index(jid, "@"); i >= 0 {
		return jid[:i]
	}
	return jid
}

// UserJID renders "{digits}@s.whatsapp.net" for a phone in any format.
func UserJID(phoneNumber string) string {
	return Digits(LocalPart(phoneNumber)) + UserSuffix
}

// GroupJID makes sure id carries the group suffix.
func GroupJID(id string) string {
	id = strings.TrimSpace(id)
	if IsGroupJID(id) {
		return id
	}
	return LocalPart(id) + GroupSuffix
}
