package taskw

import "sort"

// KnownFields are the attributes of a task record.
var KnownFields = []string{
	"annotations",
	"depends",
	"description",
	"due",
	"end",
	"entry",
	"id",
	"imask",
	"mask",
	"modified",
	"parent",
	"priority",
	"project",
	"recur",
	"scheduled",
	"start",
	"status",
	"tags",
	"until",
	"urgency",
	"uuid",
	"wait",
}

// ReadOnlyFields are maintained by the engine and may not be assigned
// through user input.
var ReadOnlyFields = []string{
	"end",
	"entry",
	"id",
	"imask",
	"mask",
	"modified",
	"parent",
	"status",
	"urgency",
	"uuid",
}

// WritableFields returns the field prefixes user input may assign: the
// known fields minus the read-only ones, plus "uuid" for filtering, plus
// any extra names (typically user-defined attributes).
func WritableFields(extra ...string) map[string]bool {
	readOnly := make(map[string]bool, len(ReadOnlyFields))
	for _, f := range ReadOnlyFields {
		readOnly[f] = true
	}

	out := make(map[string]bool, len(KnownFields)+len(extra)+1)
	for _, f := range KnownFields {
		if !readOnly[f] {
			out[f] = true
		}
	}
	for _, f := range extra {
		if f != "" && !readOnly[f] {
			out[f] = true
		}
	}
	out["uuid"] = true
	return out
}

// sortedFields returns the names of a field set in lexical order.
func sortedFields(fields map[string]bool) []string {
	out := make([]string, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
