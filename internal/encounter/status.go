package encounter

import "strings"

// Status represents the lifecycle of an encounter.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusEnhancing         Status = "enhancing"
	StatusEnhanced          Status = "enhanced"
	StatusEnhancementFailed Status = "enhancement_failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusEnhancing,
	StatusEnhanced,
	StatusEnhancementFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// legalTransitions is the authoritative edge table of the state machine.
var legalTransitions = map[Status][]Status{
	StatusPending:           {StatusApproved, StatusRejected},
	StatusApproved:          {StatusEnhancing},
	StatusEnhancing:         {StatusEnhanced, StatusEnhancementFailed},
	StatusEnhancementFailed: {StatusEnhancing},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// CanTransition reports whether from -> to is a legal state machine edge.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsPublic reports whether encounters in this status are readable by
// public fetch-by-id.
func IsPublic(status Status) bool {
	return status == StatusApproved || status == StatusEnhanced
}

// IsTerminal reports whether no further transitions are possible. An
// enhancement failure is not terminal: it can re-enter enhancing.
func IsTerminal(status Status) bool {
	return len(legalTransitions[status]) == 0
}

// Enhanceable reports whether a re-trigger of enhancement is allowed from
// this status. Already enhancing/enhanced statuses are handled as no-ops by
// callers rather than errors.
func Enhanceable(status Status) bool {
	return status == StatusApproved || status == StatusEnhancementFailed
}
