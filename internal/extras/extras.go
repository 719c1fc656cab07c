// Package extras validates user-supplied config overrides against a
// whitelist before they reach the task engine's config.
//
// Validation failures are collected per key and returned as data; they are
// never returned as errors.
package extras

import (
	"bytes"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/roach88/taskstore/internal/fsutil"
	"github.com/roach88/taskstore/internal/taskrc"
)

// Rejection records why a candidate key was not applied.
type Rejection struct {
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Result is the outcome of validating a set of overrides.
type Result struct {
	Applied map[string]string    `json:"applied"`
	Errored map[string]Rejection `json:"errored"`

	// order holds applied keys in input order.
	order []string
}

// AppliedKeys returns the applied keys in the order they were given.
func (r Result) AppliedKeys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Includer registers an include file with a config document.
type Includer interface {
	AddInclude(path string) error
}

// Validator evaluates overrides against an ordered rule table.
type Validator struct {
	rules []Rule
}

// New returns a Validator over rules, or DefaultRules when none are given.
func New(rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Validator{rules: rules}
}

// Check evaluates a single key. The first rule whose pattern matches key
// decides; a key matching no rule is rejected.
func (v *Validator) Check(key, value string) (bool, string) {
	for _, rule := range v.rules {
		if !rule.Pattern.MatchString(key) {
			continue
		}
		if rule.Accept(value) {
			return true, ""
		}
		return false, fmt.Sprintf("Setting '%s' has an invalid value.", key)
	}
	return false, fmt.Sprintf("Setting '%s' could not be applied.", key)
}

// Validate splits candidates into applied and errored keys.
func (v *Validator) Validate(candidates *taskrc.Values) Result {
	result := Result{
		Applied: make(map[string]string),
		Errored: make(map[string]Rejection),
	}
	if candidates == nil {
		return result
	}
	for _, key := range candidates.Keys() {
		value, _ := candidates.Get(key)
		if ok, reason := v.Check(key, value); ok {
			result.Applied[key] = value
			result.order = append(result.order, key)
		} else {
			result.Errored[key] = Rejection{Value: value, Reason: reason}
		}
	}
	return result
}

// Apply validates the raw override text, writes the accepted keys to
// extrasPath (one key=value line each), and registers extrasPath as an
// include of the config document. Rejected keys are never written.
//
// Include directives inside the raw text are ignored.
func (v *Validator) Apply(fs afero.Fs, extrasPath, raw string, includer Includer) (Result, error) {
	candidates, includes := taskrc.Parse(strings.NewReader(raw))
	if len(includes) != 0 {
		log.WithFields(log.Fields{
			"path":     extrasPath,
			"includes": includes,
		}).Warn("ignoring include directives in config overrides")
	}
	result := v.Validate(candidates)

	var buf bytes.Buffer
	for _, key := range result.order {
		fmt.Fprintf(&buf, "%s=%s\n", key, result.Applied[key])
	}
	if err := fsutil.WriteFileAtomic(fs, extrasPath, buf.Bytes(), 0644); err != nil {
		return result, fmt.Errorf("write extras: %w", err)
	}

	if includer != nil {
		if err := includer.AddInclude(extrasPath); err != nil {
			return result, fmt.Errorf("register extras include: %w", err)
		}
	}
	return result, nil
}
