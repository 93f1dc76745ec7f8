package harness

import "sort"

// runState is the per-turn ledger backing the harness guards. It is owned
// by exactly one harness invocation and discarded when the turn ends.
type runState struct {
	iterations    int
	lastSignature string
	repeatCount   int
	failed        map[string]bool
	succeeded     map[string]bool
}

func newRunState() *runState {
	return &runState{
		failed:    make(map[string]bool),
		succeeded: make(map[string]bool),
	}
}

// recordSuccess marks a tool as having succeeded, clearing any earlier
// failure so it no longer blocks respond.
func (s *runState) recordSuccess(toolName string) {
	s.succeeded[toolName] = true
	delete(s.failed, toolName)
}

func (s *runState) recordFailure(toolName string) {
	s.failed[toolName] = true
}

func (s *runState) hasAnySuccess() bool {
	return len(s.succeeded) > 0
}

// unresolvedFailures returns the tools that failed in this run without a
// subsequent success, sorted for stable messages.
func (s *runState) unresolvedFailures() []string {
	if len(s.failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(s.failed))
	for name := range s.failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// observeSignature tracks consecutive identical batch signatures and
// returns the current repeat count. An empty signature (no signable calls)
// resets the streak.
func (s *runState) observeSignature(signature string) int {
	if signature == "" {
		s.lastSignature = ""
		s.repeatCount = 0
		return 0
	}
	if signature == s.lastSignature {
		s.repeatCount++
	} else {
		s.lastSignature = signature
		s.repeatCount = 1
	}
	return s.repeatCount
}
