// Package validation implements the API boundary's inbound checks
// (spec §4.8): every rejection happens here, never downstream in the
// worker. Enum coercion is case-insensitive; text and audio uploads
// carry hard bounds the Job Store never has to re-check.
package validation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/voxforge/voxforge/internal/resilience"
)

const (
	MaxTextLength = 10000
	MinTextLength = 1

	// MaxRawTextBytes bounds the raw form field before sanitization: a
	// field this large is rejected as an oversized payload rather than
	// run through collapsing/length checks that only ever shrink it.
	MaxRawTextBytes = 10 * MaxTextLength

	MaxUploadBytes = 50 * 1024 * 1024 // 50 MiB

	MinVoiceNameLength = 1
	MaxVoiceNameLength = 100

	MaxPageSize = 100
)

// AcceptedUploadMIMETypes is the closed set of MIME types an audio
// upload may declare.
var AcceptedUploadMIMETypes = map[string]bool{
	"audio/wav":  true,
	"audio/mpeg": true,
	"audio/ogg":  true,
	"audio/flac": true,
	"audio/mp4":  true,
}

var languageCodePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// SanitizeText strips control characters (keeping \n and \t),
// collapses runs of whitespace, and enforces the 1-10000 length bound
// post-strip.
func SanitizeText(raw string) (string, error) {
	if len(raw) > MaxRawTextBytes {
		return "", resilience.New(resilience.KindPayloadTooLarge, "text field exceeds the accepted payload size").
			WithField("field", "text").
			WithField("size_bytes", len(raw))
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}

	collapsed := collapseWhitespace(b.String())
	length := len([]rune(collapsed))
	if length < MinTextLength || length > MaxTextLength {
		return "", resilience.New(resilience.KindValidation, "text must be between 1 and 10000 characters after sanitization").
			WithField("field", "text").
			WithField("length", length)
	}
	return collapsed, nil
}

// collapseWhitespace turns each run of whitespace other than \n and \t
// into a single space, keeps \n and \t as they are, and trims the ends.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) && r != '\n' && r != '\t' {
			pendingSpace = true
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// CoerceEnum performs case-insensitive lookup of value against
// accepted, returning the canonical accepted member. field names the
// offending form field in validation errors.
func CoerceEnum(field, value string, accepted []string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range accepted {
		if strings.ToLower(candidate) == lower {
			return candidate, nil
		}
	}
	return "", resilience.New(resilience.KindValidation, "unrecognized value for "+field).
		WithField("field", field).
		WithField("accepted", accepted).
		WithField("value", value)
}

// ValidateLanguageCode checks the shape ^[a-z]{2}(-[A-Z]{2})?$ after
// normalizing case (lowercase language, uppercase region).
func ValidateLanguageCode(code string) (string, error) {
	normalized := normalizeLanguageCode(code)
	if !languageCodePattern.MatchString(normalized) {
		return "", resilience.New(resilience.KindValidation, "language code must match ^[a-z]{2}(-[A-Z]{2})?$").
			WithField("field", "language").
			WithField("value", code)
	}
	return normalized, nil
}

func normalizeLanguageCode(code string) string {
	parts := strings.SplitN(strings.TrimSpace(code), "-", 2)
	if len(parts) == 0 || parts[0] == "" {
		return code
	}
	parts[0] = strings.ToLower(parts[0])
	if len(parts) == 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// ValidateVoiceProfileName enforces the 1-100 printable character bound.
// Collisions are permitted: the id, not the name, is the identity.
func ValidateVoiceProfileName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	length := len([]rune(trimmed))
	if length < MinVoiceNameLength || length > MaxVoiceNameLength {
		return "", resilience.New(resilience.KindValidation, "voice profile name must be between 1 and 100 characters").
			WithField("field", "name")
	}
	for _, r := range trimmed {
		if !unicode.IsPrint(r) {
			return "", resilience.New(resilience.KindValidation, "voice profile name must be printable characters only").
				WithField("field", "name")
		}
	}
	return trimmed, nil
}

// ValidateUploadMIME rejects any MIME type outside the accepted set.
func ValidateUploadMIME(mime string) error {
	if !AcceptedUploadMIMETypes[mime] {
		accepted := make([]string, 0, len(AcceptedUploadMIMETypes))
		for m := range AcceptedUploadMIMETypes {
			accepted = append(accepted, m)
		}
		return resilience.New(resilience.KindValidation, "unsupported audio MIME type").
			WithField("field", "file").
			WithField("accepted", accepted).
			WithField("value", mime)
	}
	return nil
}

// ValidateUploadSize rejects uploads over the 50 MiB bound with a
// dedicated payload-too-large kind (413), distinct from the 400s the
// rest of this package returns.
func ValidateUploadSize(size int64) error {
	if size > MaxUploadBytes {
		return resilience.New(resilience.KindPayloadTooLarge, "audio upload exceeds the 50 MiB limit").
			WithField("field", "file").
			WithField("size_bytes", size)
	}
	return nil
}

// ValidateUploadDuration rejects a probed duration outside [3s, 300s].
func ValidateUploadDuration(durationSeconds float64) error {
	if durationSeconds < 3.0 || durationSeconds > 300.0 {
		return resilience.New(resilience.KindValidation, "audio duration must be between 3 and 300 seconds").
			WithField("field", "file").
			WithField("duration_seconds", durationSeconds)
	}
	return nil
}

// ParsePagination parses page/page_size query parameters with the
// spec's bounds: page >= 1, 1 <= page_size <= 100.
func ParsePagination(pageStr, pageSizeStr string) (page, pageSize int, err error) {
	page = 1
	pageSize = 20

	if pageStr != "" {
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return 0, 0, resilience.New(resilience.KindValidation, "page must be a positive integer").WithField("field", "page")
		}
	}
	if pageSizeStr != "" {
		pageSize, err = strconv.Atoi(pageSizeStr)
		if err != nil || pageSize < 1 || pageSize > MaxPageSize {
			return 0, 0, resilience.New(resilience.KindValidation, "page_size must be between 1 and 100").WithField("field", "page_size")
		}
	}
	return page, pageSize, nil
}
