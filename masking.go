package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"net/netip"
	"strconv"
	"strings"
)

const (
	defaultDeviceIDDelimiter = "-"

	// bytes of HMAC output behind an opaque mask, hex encoded on output
	opaqueMaskBytes = 16
)

// Masker pseudonymizes identifying fields with a keyed one-way hash. Output is
// deterministic for a given key, nothing is random and nothing is reversible
// without the key.
type Masker struct {
	key   []byte
	delim string
}

// NewMasker returns a Masker keyed with key. An empty key still hashes, but
// anyone with the algorithm can then confirm a guessed input.
func NewMasker(key, delim string) *Masker {
	if delim == "" {
		delim = defaultDeviceIDDelimiter
	}
	return &Masker{key: []byte(key), delim: delim}
}

func (m *Masker) Keyed() bool {
	return len(m.key) > 0
}

// Apply sets masked_ip and masked_device_id on rec and removes the raw ip and
// device_id fields.
func (m *Masker) Apply(rec Record) error {
	ip, err := requiredString(rec, fieldIP)
	if err != nil {
		return err
	}
	deviceID, err := requiredString(rec, fieldDeviceID)
	if err != nil {
		return err
	}

	rec[fieldMaskedIP] = m.MaskIP(ip)
	rec[fieldMaskedDeviceID] = m.MaskDeviceID(deviceID)
	delete(rec, fieldIP)
	delete(rec, fieldDeviceID)
	return nil
}

// MaskIP maps an address to another address of the same family. Values that
// do not parse as an address are masked like any other token.
func (m *Masker) MaskIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return m.MaskToken(ip)
	}
	addr = addr.Unmap().WithZone("")
	canonical := addr.String()

	var out netip.Addr
	for attempt := 0; ; attempt++ {
		if addr.Is4() {
			out = netip.AddrFrom4([4]byte(m.stream("ip", canonical, attempt, 4)))
		} else {
			out = netip.AddrFrom16([16]byte(m.stream("ip", canonical, attempt, 16)))
		}
		if out != addr {
			return out.String()
		}
	}
}

// MaskDeviceID masks each delimiter separated part on its own so the result
// keeps the identifier's layout, e.g. "abc-123" -> "qzk-804". Empty parts stay
// empty; an id made only of delimiters is masked as a whole.
func (m *Masker) MaskDeviceID(id string) string {
	parts := strings.Split(id, m.delim)
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = m.maskShape("device", p)
	}
	out := strings.Join(parts, m.delim)
	if out == id {
		return m.maskOpaque("device", id)
	}
	return out
}

// MaskToken masks s keeping its character classes when it is plain ASCII
// alphanumerics, otherwise as an opaque hex digest.
func (m *Masker) MaskToken(s string) string {
	return m.maskShape("token", s)
}

// maskShape replaces digits with digits and ASCII letters with letters of the
// same case. Anything else (punctuation, non-ASCII runes) would be copied
// through verbatim, so such input gets an opaque mask instead.
func (m *Masker) maskShape(domain, s string) string {
	if !shapeMaskable(s) {
		return m.maskOpaque(domain, s)
	}

	for attempt := 0; ; attempt++ {
		stream := m.stream(domain, s, attempt, len(s))
		b := make([]byte, len(s))
		for i := 0; i < len(s); i++ {
			c, r := s[i], stream[i]
			switch {
			case c >= '0' && c <= '9':
				b[i] = '0' + r%10
			case c >= 'a' && c <= 'z':
				b[i] = 'a' + r%26
			default:
				b[i] = 'A' + r%26
			}
		}
		if out := string(b); out != s {
			return out
		}
	}
}

// maskOpaque hex encodes the keyed stream over the whole input, nothing of s
// survives in the output
func (m *Masker) maskOpaque(domain, s string) string {
	for attempt := 0; ; attempt++ {
		out := hex.EncodeToString(m.stream(domain+"/opaque", s, attempt, opaqueMaskBytes))
		if out != s {
			return out
		}
	}
}

// stream returns n bytes of HMAC-SHA256 output bound to domain, value and attempt.
func (m *Masker) stream(domain, value string, attempt, n int) []byte {
	out := make([]byte, 0, n+sha256.Size)
	var block [8]byte
	for counter := uint64(0); len(out) < n; counter++ {
		mac := hmac.New(sha256.New, m.key)
		mac.Write([]byte(domain + ":" + strconv.Itoa(attempt) + ":"))
		mac.Write([]byte(value))
		binary.BigEndian.PutUint64(block[:], counter)
		mac.Write(block[:])
		out = mac.Sum(out)
	}
	return out[:n]
}

// shapeMaskable reports whether s is non-empty ASCII letters and digits only
func shapeMaskable(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}

func requiredString(rec Record, field string) (string, error) {
	raw, ok := rec[field]
	if !ok || raw == nil {
		return "", normalizationErrorf("record has no %s", field)
	}
	s, ok := raw.(string)
	if !ok {
		return "", normalizationErrorf("%s is %T, want string", field, raw)
	}
	if strings.TrimSpace(s) == "" {
		return "", normalizationErrorf("%s is empty", field)
	}
	return s, nil
}
