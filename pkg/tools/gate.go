package tools

import (
	"fmt"
	"log/slog"
	"strings"
)

// Unavailable names a tool that failed its configuration self-check.
type Unavailable struct {
	Name   string
	Reason string
}

// Availability partitions a tool set into usable and unusable tools for one
// harness run. It is recomputed per run and never shared.
type Availability struct {
	Ready       []Tool
	Unavailable []Unavailable
}

// ReadyNames returns the set of ready tool names.
func (a Availability) ReadyNames() map[string]bool {
	names := make(map[string]bool, len(a.Ready))
	for _, t := range a.Ready {
		names[t.Name] = true
	}
	return names
}

// EvaluateAvailability probes each tool's self-check. Tools without one are
// always ready. A panicking probe counts as unavailable; it never aborts the
// gate.
func EvaluateAvailability(toolSet []Tool) Availability {
	var avail Availability
	for _, t := range toolSet {
		result := verify(t)
		if result.OK {
			avail.Ready = append(avail.Ready, t)
			continue
		}
		reason := result.Reason
		if reason == "" {
			reason = "configuration check failed"
		}
		slog.Debug("Tool unavailable", "tool", t.Name, "reason", reason)
		avail.Unavailable = append(avail.Unavailable, Unavailable{Name: t.Name, Reason: reason})
	}
	return avail
}

func verify(t Tool) (result VerifyResult) {
	if t.VerifyConfiguration == nil {
		return VerifyResult{OK: true}
	}
	defer func() {
		if r := recover(); r != nil {
			result = VerifyResult{OK: false, Reason: fmt.Sprintf("%v", r)}
		}
	}()
	return t.VerifyConfiguration()
}

// UnavailabilityNotice renders a one-line summary of unavailable tools for
// injection as a system message, or "" when every tool is ready.
func UnavailabilityNotice(unavailable []Unavailable) string {
	if len(unavailable) == 0 {
		return ""
	}
	parts := make([]string, len(unavailable))
	for i, u := range unavailable {
		parts[i] = fmt.Sprintf("%s: %s", u.Name, u.Reason)
	}
	return "The following tools are currently unavailable and must not be called: " + strings.Join(parts, "; ")
}
