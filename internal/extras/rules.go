package extras

import (
	"regexp"
	"strconv"
	"strings"
)

// Predicate decides whether a value is acceptable for a matched key.
type Predicate func(value string) bool

// Rule pairs a key pattern with the predicate its values must satisfy.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Accept  Predicate
}

// UDATypes are the attribute types the task engine understands.
var UDATypes = []string{"string", "numeric", "date", "duration"}

// DefaultRules is the whitelist of config overrides users may apply.
// Rules are evaluated in order and the first matching pattern decides.
var DefaultRules = []Rule{
	{
		Name:    "urgency coefficient",
		Pattern: regexp.MustCompile(`^urgency\.[^.]+\.coefficient$`),
		Accept:  IsNumeric,
	},
	{
		Name:    "tag urgency coefficient",
		Pattern: regexp.MustCompile(`^urgency\.user\.tag\.[^.]+\.coefficient$`),
		Accept:  IsNumeric,
	},
	{
		Name:    "project urgency coefficient",
		Pattern: regexp.MustCompile(`^urgency\.user\.project\.[^.]+\.coefficient$`),
		Accept:  IsNumeric,
	},
	{
		Name:    "maximum age urgency",
		Pattern: regexp.MustCompile(`^urgency\.age\.max$`),
		Accept:  IsNumeric,
	},
	{
		Name:    "uda urgency coefficient",
		Pattern: regexp.MustCompile(`^urgency\.uda\.[^.]+\.coefficient$`),
		Accept:  IsNumeric,
	},
	{
		Name:    "uda type",
		Pattern: regexp.MustCompile(`^uda\.[^.]+\.type$`),
		Accept:  IsUDAType,
	},
	{
		Name:    "uda label",
		Pattern: regexp.MustCompile(`^uda\.[^.]+\.label$`),
		Accept:  AnyValue,
	},
}

// IsNumeric accepts values that parse as a decimal floating-point number.
// Hexadecimal forms are rejected; the engine does not read them.
func IsNumeric(value string) bool {
	value = strings.TrimSpace(value)
	digits := strings.TrimLeft(value, "+-")
	if len(digits) >= 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		return false
	}
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// IsUDAType accepts one of UDATypes.
func IsUDAType(value string) bool {
	for _, t := range UDATypes {
		if value == t {
			return true
		}
	}
	return false
}

// AnyValue accepts every string.
func AnyValue(string) bool { return true }
