package taskw

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Separator ends structured arguments; everything after it is free text.
const Separator = "--"

var unprintable = runes.Remove(runes.Predicate(func(r rune) bool {
	return r == utf8.RuneError || !unicode.IsPrint(r)
}))

// StripUnsafeChars removes every non-printable rune from s, including
// control characters and invalid UTF-8 bytes.
func StripUnsafeChars(s string) string {
	out, _, err := transform.String(unprintable, s)
	if err != nil {
		// Remove never fails on in-memory input; fall back to a slow path.
		var b strings.Builder
		for _, r := range s {
			if r != utf8.RuneError && unicode.IsPrint(r) {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	return out
}

// AcceptablePrefix returns the normalized field name for prefix and
// whether it may be passed to the engine as a field assignment.
func AcceptablePrefix(prefix string, writable map[string]bool) (string, bool) {
	if strings.Contains(prefix, " ") {
		return "", false
	}
	lower := strings.ToLower(prefix)
	if writable[lower] {
		return lower, true
	}
	return "", false
}

// SanitizeArgs builds the argument vector for the engine. The first
// argument is the subcommand and is passed through. Every other argument
// is stripped of non-printable characters; "field:value" arguments whose
// field is writable come next, then Separator, then all remaining
// arguments as free text.
func SanitizeArgs(writable map[string]bool, args ...string) []string {
	if len(args) == 0 {
		return nil
	}
	fields := []string{args[0]}
	var text []string

	for _, raw := range args[1:] {
		arg := StripUnsafeChars(raw)

		prefix, value, ok := strings.Cut(arg, ":")
		if !ok {
			text = append(text, arg)
			continue
		}
		if field, ok := AcceptablePrefix(prefix, writable); ok {
			fields = append(fields, field+":"+value)
		} else {
			text = append(text, arg)
		}
	}

	out := make([]string, 0, len(fields)+1+len(text))
	out = append(out, fields...)
	out = append(out, Separator)
	return append(out, text...)
}
