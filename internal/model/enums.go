package model

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusSent       JobStatus = "sent"
)

var ValidJobStatuses = []JobStatus{
	JobStatusPending, JobStatusProcessing, JobStatusCompleted,
	JobStatusFailed, JobStatusSent,
}

// legalTransitions enumerates every allowed status change. A job only moves
// forward: sent is reachable only from completed, and failed is reachable
// from pending or processing. processing -> processing is allowed so a
// retried worker invocation can pick the same job up again.
var legalTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusProcessing, JobStatusCompleted, JobStatusFailed},
	JobStatusCompleted:  {JobStatusSent},
	JobStatusFailed:     {},
	JobStatusSent:       {},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends a watcher's wait. completed
// still allows the sent transition, but both count as success for a watcher.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusSent
}

// Text overlay positions
type TextPosition string

const (
	TextPositionTop    TextPosition = "top"
	TextPositionCenter TextPosition = "center"
	TextPositionBottom TextPosition = "bottom"
)

var ValidTextPositions = []TextPosition{
	TextPositionTop, TextPositionCenter, TextPositionBottom,
}

// Send methods
type SendMethod string

const (
	SendMethodEmail SendMethod = "email"
	SendMethodShare SendMethod = "share"
	SendMethodNone  SendMethod = "none"
)

var ValidSendMethods = []SendMethod{
	SendMethodEmail, SendMethodShare, SendMethodNone,
}

// Color filter presets
type FilterID string

const (
	FilterNone    FilterID = "none"
	FilterWarm    FilterID = "warm"
	FilterCool    FilterID = "cool"
	FilterVintage FilterID = "vintage"
	FilterBW      FilterID = "bw"
	FilterVivid   FilterID = "vivid"
)

var ValidFilters = []FilterID{
	FilterNone, FilterWarm, FilterCool, FilterVintage, FilterBW, FilterVivid,
}
