package domain

import "time"

// Day length used by the business calendar arithmetic, in milliseconds.
const DayMillis = int64(24 * 60 * 60 * 1000)

// BusinessHourRange is a [Start, End) window within a day during which time
// counts as business time. Offsets are milliseconds from the start of the day,
// 0 <= Start < End <= DayMillis. Ranges of one calendar are sorted ascending
// by Start and do not overlap; callers maintain this invariant.
type BusinessHourRange struct {
	ID    int64 `json:"id,omitempty"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Holiday is a fully non-business day, whatever its day of week.
type Holiday struct {
	ID   int64     `json:"id,omitempty"`
	Name string    `json:"name,omitempty"`
	Date time.Time `json:"date"`
}

// Calendar groups holidays and business hours.
type Calendar struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AsDefault bool   `json:"asDefault"`
}

// IDSet is a set of tracker identifiers (statuses, types, priorities,
// resolutions).
type IDSet map[int]struct{}

func NewIDSet(ids ...int) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id int) bool { _, ok := s[id]; return ok }

// Matches reports whether the set is empty (no filter) or holds the given
// identifier. A nil identifier matches only the empty set.
func (s IDSet) Matches(id *int) bool {
	if len(s) == 0 {
		return true
	}
	return id != nil && s.Has(*id)
}

// StatusChangeEvent is one observed workflow transition with a snapshot of the
// issue attributes at that moment. FromStatus is nil on issue creation.
type StatusChangeEvent struct {
	IssueID    int64
	Key        string
	At         time.Time
	FromStatus *int
	ToStatus   int

	// Snapshot fields
	Status           int
	Priority         *int
	Type             int
	Resolution       *int
	Assignee         string
	Reporter         string
	TimeSpent        *int
	TimeEstimate     *int
	TimeEstimateInit *int
	DueDate          *time.Time
}

// StatusEntry is one status occupancy within an issue history. Elapsed is the
// business time spent in Status; EntryMark is the cumulative business time of
// the whole event stream when the issue entered this status.
type StatusEntry struct {
	Status    int
	Elapsed   int64
	EntryMark int64
	Change    *StatusChangeEvent
}

// IssueSnapshot carries the identity and attribute snapshot of an issue,
// seeded from its first observed change.
type IssueSnapshot struct {
	ID               int64      `json:"id"`
	Key              string     `json:"pkey"`
	Created          time.Time  `json:"created"`
	Priority         *int       `json:"priority,omitempty"`
	Status           int        `json:"status"`
	Type             int        `json:"type"`
	Resolution       *int       `json:"resolution,omitempty"`
	Reporter         string     `json:"reporter,omitempty"`
	Assignee         string     `json:"assignee,omitempty"`
	TimeSpent        *int       `json:"timeSpent,omitempty"`
	TimeEstimate     *int       `json:"timeEstimate,omitempty"`
	TimeEstimateInit *int       `json:"timeEstimateInit,omitempty"`
	DueDate          *time.Time `json:"dueDate,omitempty"`
}

// IssueStatusHistory is the per-issue ordered status occupancy derived from
// the chronological event stream. Append-only while the stream is replayed,
// read-only afterward.
type IssueStatusHistory struct {
	IssueSnapshot
	Entries []StatusEntry
}

// SlaDefinition configures one SLA timer. Display names are kept as
// comma-separated text the way the configuration store persists them; the id
// sets are resolved from those names before a computation.
type SlaDefinition struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Start string `json:"start"`
	Stop  string `json:"stop"`
	Pause string `json:"pause,omitempty"`

	StartSet IDSet `json:"-"`
	StopSet  IDSet `json:"-"`
	PauseSet IDSet `json:"-"`

	// Optional filters. Empty means no restriction.
	Types       string `json:"types,omitempty"`
	Priorities  string `json:"priorities,omitempty"`
	Resolutions string `json:"resolutions,omitempty"`

	TypeSet       IDSet `json:"-"`
	PrioritySet   IDSet `json:"-"`
	ResolutionSet IDSet `json:"-"`

	// Threshold is the maximum duration in milliseconds before the stop
	// status should be reached. 0 means none. Informational only.
	Threshold int64 `json:"threshold"`
}

// SlaResult is the outcome of one SLA replay over one issue.
type SlaResult struct {
	// Duration is the business time accumulated while the timer ran.
	Duration int64 `json:"duration"`

	// Start and Stop are the first transitions into a start and a stop
	// status. Either may be nil when never reached.
	Start *time.Time `json:"start,omitempty"`
	Stop  *time.Time `json:"stop,omitempty"`

	// RevisedDueDate is the original due date shifted forward by the paused
	// business time spent before it. Nil when the issue has no due date.
	RevisedDueDate *time.Time `json:"revisedDueDate,omitempty"`

	// RevisedDueDateDistance is the business time between the revised due
	// date and the stop instant (or now), negated. Nil iff RevisedDueDate
	// is nil.
	RevisedDueDateDistance *int64 `json:"revisedDueDateDistance,omitempty"`
}

// IssueSlaReport is the per-issue output: one result slot per SLA definition,
// positionally aligned with the definition list. A nil slot means the SLA does
// not apply to this issue, which is distinct from a zero-duration result.
type IssueSlaReport struct {
	IssueSnapshot
	Results       []*SlaResult `json:"data"`
	StatusCounter map[int]int  `json:"statusCounter"`
}

// SlaDisplay is an SLA definition with identifier sets resolved back to
// normalized display names, for the reporting layer.
type SlaDisplay struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Start       []string `json:"start"`
	Stop        []string `json:"stop"`
	Pause       []string `json:"pause"`
	Types       []string `json:"types"`
	Priorities  []string `json:"priorities"`
	Resolutions []string `json:"resolutions"`
	Threshold   int64    `json:"threshold"`
}

// SlaComputation is the aggregate result of one engine run.
type SlaComputation struct {
	SlaConfigurations []SlaDisplay     `json:"slaConfigurations"`
	Issues            []IssueSlaReport `json:"issues"`
}
