package main

import (
	"strconv"
	"strings"
	"time"
)

const (
	versionBase = 100
	// 100^9 still fits in an int64 with every segment at 99
	maxVersionSegments = 9
)

// layouts accepted for the response date header, RFC 1123 with an optional
// single digit day
var createDateLayouts = []string{
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// EncodeVersion folds a dotted version into one comparable integer, base 100
// per segment with the last segment least significant: "1.2.3" -> 10203.
// Segments must be decimal numbers below 100, anything else is rejected
// rather than carried into the neighbouring segment.
func EncodeVersion(version string) (int64, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return 0, normalizationErrorf("app_version is empty")
	}

	segments := strings.Split(version, ".")
	if len(segments) > maxVersionSegments {
		return 0, normalizationErrorf("app_version %q has more than %d segments", version, maxVersionSegments)
	}

	var code int64
	for _, seg := range segments {
		if seg == "" || strings.TrimLeft(seg, "0123456789") != "" {
			return 0, normalizationErrorf("app_version %q has non-numeric segment %q", version, seg)
		}
		n, err := strconv.ParseInt(seg, 10, 64)
		if err != nil || n >= versionBase {
			return 0, normalizationErrorf("app_version %q segment %q is out of range 0-%d", version, seg, versionBase-1)
		}
		code = code*versionBase + n
	}
	return code, nil
}

// DecodeVersion is the inverse of EncodeVersion for a known segment count.
func DecodeVersion(code int64, segments int) string {
	if segments < 1 {
		segments = 1
	}
	parts := make([]string, segments)
	for i := segments - 1; i >= 0; i-- {
		parts[i] = strconv.FormatInt(code%versionBase, 10)
		code /= versionBase
	}
	return strings.Join(parts, ".")
}

// ParseCreateDate parses a response date header such as
// "Mon, 01 Jan 2024 12:00:00 GMT" into a UTC timestamp.
func ParseCreateDate(header string) (time.Time, error) {
	header = strings.TrimSpace(header)
	for _, layout := range createDateLayouts {
		if t, err := time.Parse(layout, header); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, normalizationErrorf("date header %q is not an RFC 1123 timestamp", header)
}

// Normalize replaces app_version with its integer encoding and adds
// create_date parsed from the envelope date header.
func Normalize(rec Record, dateHeader string) error {
	raw, ok := rec[fieldAppVersion]
	if !ok || raw == nil {
		return normalizationErrorf("record has no app_version")
	}
	version, ok := raw.(string)
	if !ok {
		return normalizationErrorf("app_version is %T, want string", raw)
	}

	code, err := EncodeVersion(version)
	if err != nil {
		return err
	}

	created, err := ParseCreateDate(dateHeader)
	if err != nil {
		return err
	}

	rec[fieldAppVersion] = code
	rec[fieldCreateDate] = created
	return nil
}
