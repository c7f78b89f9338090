/* Copyright (c) 2025 the plugin-bt authors
 * SPDX-License-Identifier: MIT */
package sla

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ligoj/plugin-bt/internal/domain"
)

// Engine replays a chronological stream of status changes spanning many
// issues through SLA definitions and produces per-issue SLA reports. A run is
// a single synchronous pass over in-memory structures; the engine holds no
// state across runs and may be shared.
type Engine struct {
	log zerolog.Logger

	// now is the clock for open-ended computations. Overridable in tests.
	now func() time.Time
}

func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log, now: time.Now}
}

// Process computes the SLA report for every issue present in the given
// changes. The changes must be ordered by timestamp across all issues; the
// engine does not re-sort. Holidays are day-normalized ascending days and
// ranges the sorted business hours; both may be empty, meaning always open.
func (e *Engine) Process(ranges []domain.BusinessHourRange, changes []domain.StatusChangeEvent, holidays []time.Time, slas []domain.SlaDefinition) domain.SlaComputation {
	// Annotate the stream with business elapsed times
	histories, order := e.computeElapsedTimes(changes, holidays, ranges)

	// Compute SLAs per issue
	out := domain.SlaComputation{
		SlaConfigurations: toSlaDisplay(slas),
		Issues:            make([]domain.IssueSlaReport, 0, len(order)),
	}
	now := e.now().UTC()
	for _, id := range order {
		out.Issues = append(out.Issues, e.issueReport(histories[id], slas, holidays, ranges, now))
	}
	return out
}

// computeElapsedTimes folds the chronological event stream into per-issue
// histories. One shared cursor carries a single cumulative business-time
// counter across all issues: the stream interleaves transitions from many
// issues and the counter marks positions on that one timeline.
func (e *Engine) computeElapsedTimes(changes []domain.StatusChangeEvent, holidays []time.Time, ranges []domain.BusinessHourRange) (map[int64]*domain.IssueStatusHistory, []int64) {
	histories := map[int64]*domain.IssueStatusHistory{}
	var order []int64
	if len(changes) == 0 {
		return histories, order
	}

	cursor := NewCursor(holidays, ranges)
	cursor.Reset(changes[0].At)
	var cumulated int64
	for i := range changes {
		change := &changes[i]

		// Business time from the last cursor position to this change
		cumulated += cursor.MoveForwardTo(change.At)

		h := histories[change.IssueID]
		if h == nil {
			// Issue creation
			h = newHistory(change)
			histories[change.IssueID] = h
			order = append(order, change.IssueID)
		}

		// Close the previous status of this issue
		e.closeTrailing(cumulated, change, h)

		// Open the new status, even for a creation
		h.Entries = append(h.Entries, domain.StatusEntry{
			Status:    change.ToStatus,
			EntryMark: cumulated,
			Change:    change,
		})
	}

	// Issues still sitting in their last status count until now
	cumulated += cursor.MoveForwardTo(e.now().UTC())
	for _, h := range histories {
		e.closeTrailing(cumulated, nil, h)
	}
	return histories, order
}

// closeTrailing sets the elapsed time of the trailing entry and, when a new
// change arrives, validates the transition continuity. An inconsistent
// history is self-healed: the trailing status is overwritten with the
// change's from-status and a diagnostic is logged. change is nil when closing
// tails at the end of the stream.
func (e *Engine) closeTrailing(cumulated int64, change *domain.StatusChangeEvent, h *domain.IssueStatusHistory) {
	if len(h.Entries) == 0 {
		return
	}
	last := &h.Entries[len(h.Entries)-1]
	last.Elapsed = cumulated - last.EntryMark

	if change == nil || change.FromStatus == nil {
		return
	}
	if *change.FromStatus != last.Status {
		if len(h.Entries) == 1 {
			e.log.Warn().Str("key", h.Key).Int64("issue", h.ID).
				Int("recorded", last.Status).Int("expected", *change.FromStatus).
				Msg("initial state fixed to match transition")
		} else {
			e.log.Warn().Str("key", h.Key).Int64("issue", h.ID).
				Int("recorded", last.Status).Int("expected", *change.FromStatus).
				Int("to", change.ToStatus).
				Msg("broken state fixed to match transition")
		}
		last.Status = *change.FromStatus
	}
}

func newHistory(change *domain.StatusChangeEvent) *domain.IssueStatusHistory {
	return &domain.IssueStatusHistory{
		IssueSnapshot: domain.IssueSnapshot{
			ID:               change.IssueID,
			Key:              change.Key,
			Created:          change.At,
			Priority:         change.Priority,
			Status:           change.Status,
			Type:             change.Type,
			Resolution:       change.Resolution,
			Reporter:         change.Reporter,
			Assignee:         change.Assignee,
			TimeSpent:        change.TimeSpent,
			TimeEstimate:     change.TimeEstimate,
			TimeEstimateInit: change.TimeEstimateInit,
			DueDate:          change.DueDate,
		},
	}
}

// issueReport computes every SLA slot and the status counters of one issue.
func (e *Engine) issueReport(h *domain.IssueStatusHistory, slas []domain.SlaDefinition, holidays []time.Time, ranges []domain.BusinessHourRange, now time.Time) domain.IssueSlaReport {
	report := domain.IssueSlaReport{
		IssueSnapshot: h.IssueSnapshot,
		Results:       make([]*domain.SlaResult, 0, len(slas)),
		StatusCounter: statusCounter(h),
	}
	for i := range slas {
		sla := &slas[i]
		if applies(h, sla) {
			report.Results = append(report.Results, e.slaResult(h, sla, holidays, ranges, now))
		} else {
			// Not applicable, keep the slot aligned
			report.Results = append(report.Results, nil)
		}
	}
	return report
}

// applies checks the SLA filters against the issue snapshot. An empty filter
// set never restricts.
func applies(h *domain.IssueStatusHistory, sla *domain.SlaDefinition) bool {
	typ := h.Type
	return sla.TypeSet.Matches(&typ) && sla.PrioritySet.Matches(h.Priority) && sla.ResolutionSet.Matches(h.Resolution)
}

// slaResult replays the issue's status entries through the SLA state machine.
// Stop is not sticky: a later start reopens the timer, and only the first
// start and first stop are reported.
func (e *Engine) slaResult(h *domain.IssueStatusHistory, sla *domain.SlaDefinition, holidays []time.Time, ranges []domain.BusinessHourRange, now time.Time) *domain.SlaResult {
	started := false
	paused := false
	cursor := NewCursor(holidays, ranges)
	result := &domain.SlaResult{}
	if h.DueDate != nil {
		d := *h.DueDate
		result.RevisedDueDate = &d
	}

	for i := range h.Entries {
		entry := &h.Entries[i]
		switch {
		case sla.StopSet.Has(entry.Status):
			started = false
			paused = false
			if result.Stop == nil {
				// First stop of the workflow
				at := entry.Change.At
				result.Stop = &at
			}
		case started && sla.PauseSet.Has(entry.Status):
			// The pause pushes the revised due date only while it is still
			// ahead of this entry
			paused = true
			pushDueDate(result, entry, cursor)
		case sla.StartSet.Has(entry.Status):
			started = true
			paused = false
			result.Duration += entry.Elapsed
			if result.Start == nil {
				at := entry.Change.At
				result.Start = &at
			}
		case paused:
			// Unmanaged status, the pause goes on
			pushDueDate(result, entry, cursor)
		case started:
			// Unmanaged status, the timer goes on
			result.Duration += entry.Elapsed
		}
	}

	if result.RevisedDueDate != nil {
		// Distance between the revised due date and the stop of the workflow,
		// or now while it is still open
		end := now
		if result.Stop != nil {
			end = *result.Stop
		}
		var distance int64
		if end.After(*result.RevisedDueDate) {
			// Stopped after the revised due date
			primeDueDateCursor(cursor, result)
			distance = -cursor.MoveForwardTo(end)
		} else {
			// Stopped before the revised due date
			cursor.Reset(end)
			distance = -cursor.MoveForwardTo(*result.RevisedDueDate)
		}
		result.RevisedDueDateDistance = &distance
	}

	return result
}

// pushDueDate shifts the revised due date forward by the entry's elapsed
// business time, as long as the due date is still after the entry.
func pushDueDate(result *domain.SlaResult, entry *domain.StatusEntry, cursor *Cursor) {
	if result.RevisedDueDate != nil && result.RevisedDueDate.After(entry.Change.At) {
		primeDueDateCursor(cursor, result)
		revised := cursor.MoveForwardBy(entry.Elapsed)
		result.RevisedDueDate = &revised
	}
}

// primeDueDateCursor positions the due-date cursor on its first use.
func primeDueDateCursor(cursor *Cursor, result *domain.SlaResult) {
	if !cursor.Primed() {
		cursor.Reset(*result.RevisedDueDate)
	}
}

// statusCounter counts transitions into each status.
func statusCounter(h *domain.IssueStatusHistory) map[int]int {
	counter := map[int]int{}
	for i := range h.Entries {
		counter[h.Entries[i].Status]++
	}
	return counter
}

// toSlaDisplay resolves SLA definitions back to normalized display names for
// the reporting layer.
func toSlaDisplay(slas []domain.SlaDefinition) []domain.SlaDisplay {
	out := make([]domain.SlaDisplay, 0, len(slas))
	for i := range slas {
		sla := &slas[i]
		out = append(out, domain.SlaDisplay{
			Name:        sla.Name,
			Description: sla.Description,
			Start:       Normalize(AsList(sla.Start)),
			Stop:        Normalize(AsList(sla.Stop)),
			Pause:       Normalize(AsList(sla.Pause)),
			Types:       AsList(sla.Types),
			Priorities:  AsList(sla.Priorities),
			Resolutions: AsList(sla.Resolutions),
			Threshold:   sla.Threshold,
		})
	}
	return out
}
