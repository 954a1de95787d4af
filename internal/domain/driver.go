// Package domain holds the types and errors shared between uwflow's layers.
// It has no infrastructure dependency.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ─── Requirements ───────────────────────────────────────────────────────────

// RequirementKind classifies an external dependency of a driver.
type RequirementKind string

const (
	RequireExecutable RequirementKind = "executable"
	RequireFile       RequirementKind = "file"
	RequireLinkTarget RequirementKind = "link-target"
)

// Requirement is an input the configuration implies but uwflow never produces.
type Requirement struct {
	Name string
	Kind RequirementKind
	Path string
}

// ─── Resources ──────────────────────────────────────────────────────────────

// Resources is the scheduler resource request derived from configuration.
// Account and Scheduler are always present; Fields carries the job-specific
// batch arguments verbatim.
type Resources struct {
	Account   string
	Scheduler string
	Fields    map[string]any
}

// Keys returns the job-specific field names in sorted order.
func (r Resources) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the resource request one "key: value" per line.
func (r Resources) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "account: %s\n", r.Account)
	fmt.Fprintf(&b, "scheduler: %s\n", r.Scheduler)
	for _, k := range r.Keys() {
		fmt.Fprintf(&b, "%s: %v\n", k, r.Fields[k])
	}
	return b.String()
}
