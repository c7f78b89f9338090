/* Copyright (c) 2025 the plugin-bt authors
 * SPDX-License-Identifier: MIT */
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ligoj/plugin-bt/internal/config"
	"github.com/ligoj/plugin-bt/internal/domain"
	"github.com/ligoj/plugin-bt/internal/repo"
	"github.com/ligoj/plugin-bt/internal/sla"
)

type Tracker interface {
	Search(ctx context.Context, jql string, startAt, max int) (map[string]any, error)
	Changelog(ctx context.Context, key string, startAt, max int) (map[string]any, error)
	Statuses(ctx context.Context) (map[int]string, error)
	Priorities(ctx context.Context) (map[int]string, error)
	IssueTypes(ctx context.Context) (map[int]string, error)
	Resolutions(ctx context.Context) (map[int]string, error)
}

type Service struct {
	cfg    config.Config
	log    zerolog.Logger
	repo   *repo.Repository
	jira   Tracker
	engine *sla.Engine
}

func New(cfg config.Config, log zerolog.Logger, r *repo.Repository, jira Tracker) *Service {
	return &Service{cfg: cfg, log: log, repo: r, jira: jira, engine: sla.NewEngine(log)}
}

// Sync refreshes the identifier catalogs and imports the status change
// history of every configured project.
func (s *Service) Sync(ctx context.Context) error {
	projects, _ := json.Marshal(s.cfg.JiraProjects)
	runID, err := s.repo.StartJobRun(ctx, string(projects))
	if err != nil { return err }

	issues, changes, err := s.sync(ctx)
	errStr := ""
	if err != nil { errStr = err.Error() }
	if ferr := s.repo.FinishJobRun(ctx, runID, issues, changes, err == nil, errStr); ferr != nil {
		s.log.Error().Err(ferr).Msg("sync: finish job run failed")
	}
	return err
}

func (s *Service) sync(ctx context.Context) (issues, changes int, err error) {
	if err := s.refreshIdentifiers(ctx); err != nil { return 0, 0, err }
	for _, project := range s.cfg.JiraProjects {
		jql := fmt.Sprintf("project = %s ORDER BY created ASC", project)
		startAt := 0
		for {
			page, err := s.jira.Search(ctx, jql, startAt, s.cfg.JiraPageSize)
			if err != nil { return issues, changes, err }
			list := asList(page["issues"])
			for _, raw := range list {
				issue, ok := raw.(map[string]any)
				if !ok { continue }
				events, err := s.issueChanges(ctx, issue)
				if err != nil { return issues, changes, err }
				if err := s.repo.BulkInsertChanges(ctx, events); err != nil { return issues, changes, err }
				issues++
				changes += len(events)
			}
			startAt += len(list)
			if len(list) == 0 || startAt >= asInt(page["total"]) { break }
		}
	}
	s.log.Info().Int("issues", issues).Int("changes", changes).Msg("sync completed")
	return issues, changes, nil
}

func (s *Service) refreshIdentifiers(ctx context.Context) error {
	for kind, fetch := range map[string]func(context.Context) (map[int]string, error){
		"status":     s.jira.Statuses,
		"priority":   s.jira.Priorities,
		"type":       s.jira.IssueTypes,
		"resolution": s.jira.Resolutions,
	} {
		mapping, err := fetch(ctx)
		if err != nil { return fmt.Errorf("fetch %s catalog: %w", kind, err) }
		if err := s.repo.ReplaceIdentifiers(ctx, kind, mapping); err != nil { return err }
	}
	return nil
}

// issueChanges flattens one issue payload into its chronological status
// changes: a synthetic creation change first, then the changelog "status"
// items. Every change carries the current attribute snapshot.
func (s *Service) issueChanges(ctx context.Context, issue map[string]any) ([]domain.StatusChangeEvent, error) {
	fields := asMap(issue["fields"])
	id, _ := strconv.ParseInt(asString(issue["id"]), 10, 64)
	base := domain.StatusChangeEvent{
		IssueID:          id,
		Key:              asString(issue["key"]),
		Status:           entityID(fields["status"]),
		Priority:         entityIDPtr(fields["priority"]),
		Type:             entityID(fields["issuetype"]),
		Resolution:       entityIDPtr(fields["resolution"]),
		Assignee:         userName(fields["assignee"]),
		Reporter:         userName(fields["reporter"]),
		TimeSpent:        intPtr(fields["timespent"]),
		TimeEstimate:     intPtr(fields["timeestimate"]),
		TimeEstimateInit: intPtr(fields["timeoriginalestimate"]),
		DueDate:          datePtr(asString(fields["duedate"])),
	}
	created, err := parseJiraTime(asString(fields["created"]))
	if err != nil { return nil, fmt.Errorf("issue %s: %w", base.Key, err) }

	var out []domain.StatusChangeEvent
	histories, err := s.allHistories(ctx, issue)
	if err != nil { return nil, err }
	for _, raw := range histories {
		history, ok := raw.(map[string]any)
		if !ok { continue }
		at, err := parseJiraTime(asString(history["created"]))
		if err != nil { continue }
		for _, item := range asList(history["items"]) {
			it, ok := item.(map[string]any)
			if !ok || asString(it["field"]) != "status" { continue }
			from, err1 := strconv.Atoi(asString(it["from"]))
			to, err2 := strconv.Atoi(asString(it["to"]))
			if err1 != nil || err2 != nil { continue }
			change := base
			change.At = at
			change.FromStatus = &from
			change.ToStatus = to
			out = append(out, change)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })

	// Synthetic creation change, its status is the origin of the first
	// transition when there is one
	creation := base
	creation.At = created
	creation.ToStatus = base.Status
	if len(out) > 0 { creation.ToStatus = *out[0].FromStatus }
	return append([]domain.StatusChangeEvent{creation}, out...), nil
}

// allHistories returns the changelog embedded in the search payload, paging
// through the changelog endpoint when it is truncated.
func (s *Service) allHistories(ctx context.Context, issue map[string]any) ([]any, error) {
	changelog := asMap(issue["changelog"])
	histories := asList(changelog["histories"])
	total := asInt(changelog["total"])
	if total <= len(histories) { return histories, nil }

	key := asString(issue["key"])
	out := make([]any, 0, total)
	startAt := 0
	for {
		page, err := s.jira.Changelog(ctx, key, startAt, s.cfg.JiraPageSize)
		if err != nil { return nil, err }
		// v2 embeds under "histories", v3 under "values"
		list := asList(page["histories"])
		if len(list) == 0 { list = asList(page["values"]) }
		if len(list) == 0 { break }
		out = append(out, list...)
		startAt += len(list)
		if startAt >= asInt(page["total"]) { break }
	}
	return out, nil
}

// ComputeReport loads the default calendar and every SLA definition, resolves
// display names to identifiers and replays the whole change stream.
func (s *Service) ComputeReport(ctx context.Context) (*domain.SlaComputation, error) {
	var holidays []time.Time
	var ranges []domain.BusinessHourRange
	cal, err := s.repo.GetDefaultCalendar(ctx)
	if err != nil { return nil, err }
	if cal != nil {
		hs, err := s.repo.ListHolidays(ctx, cal.ID)
		if err != nil { return nil, err }
		for _, h := range hs {
			holidays = append(holidays, h.Date.UTC().Truncate(24*time.Hour))
		}
		if ranges, err = s.repo.ListRanges(ctx, cal.ID); err != nil { return nil, err }
	}

	slas, err := s.repo.ListSlas(ctx)
	if err != nil { return nil, err }
	if err := s.resolveSlas(ctx, slas); err != nil { return nil, err }

	changes, err := s.repo.ListChanges(ctx)
	if err != nil { return nil, err }
	computation := s.engine.Process(ranges, changes, holidays, slas)
	return &computation, nil
}

// resolveSlas fills the identifier sets of each definition from the persisted
// catalogs.
func (s *Service) resolveSlas(ctx context.Context, slas []domain.SlaDefinition) error {
	statuses, err := s.repo.LoadIdentifiers(ctx, "status")
	if err != nil { return err }
	types, err := s.repo.LoadIdentifiers(ctx, "type")
	if err != nil { return err }
	priorities, err := s.repo.LoadIdentifiers(ctx, "priority")
	if err != nil { return err }
	resolutions, err := s.repo.LoadIdentifiers(ctx, "resolution")
	if err != nil { return err }
	for i := range slas {
		def := &slas[i]
		def.StartSet = sla.ToIDSet(def.Start, statuses)
		def.StopSet = sla.ToIDSet(def.Stop, statuses)
		def.PauseSet = sla.ToIDSet(def.Pause, statuses)
		def.TypeSet = sla.ToIDSet(def.Types, types)
		def.PrioritySet = sla.ToIDSet(def.Priorities, priorities)
		def.ResolutionSet = sla.ToIDSet(def.Resolutions, resolutions)
	}
	return nil
}

func (s *Service) LastRun(ctx context.Context) (*repo.LastRun, error) {
	return s.repo.GetLastRun(ctx)
}

// Seed installs the bootstrap calendar and SLA definitions when the store is
// still empty. Idempotent.
func (s *Service) Seed(ctx context.Context, seed *config.Seed) error {
	cal, err := s.repo.GetDefaultCalendar(ctx)
	if err != nil { return err }
	if cal == nil && seed.Calendar.Name != "" {
		id, err := s.repo.CreateCalendar(ctx, seed.Calendar.Name, true)
		if err != nil { return err }
		for _, h := range seed.Calendar.Holidays {
			date, err := time.ParseInLocation("2006-01-02", h, time.UTC)
			if err != nil { return fmt.Errorf("seed holiday %q: %w", h, err) }
			if _, err := s.repo.AddHoliday(ctx, id, "", date); err != nil { return err }
		}
		for _, couple := range seed.Calendar.Hours {
			start, end, err := config.ParseHourRange(couple)
			if err != nil { return fmt.Errorf("seed hours: %w", err) }
			if _, err := s.repo.AddRange(ctx, id, domain.BusinessHourRange{Start: start, End: end}); err != nil {
				return err
			}
		}
		s.log.Info().Str("calendar", seed.Calendar.Name).Msg("seeded default calendar")
	}

	existing, err := s.repo.ListSlas(ctx)
	if err != nil { return err }
	if len(existing) > 0 { return nil }
	for _, def := range seed.Slas {
		d := domain.SlaDefinition{
			Name:        def.Name,
			Description: def.Description,
			Start:       def.Start,
			Stop:        def.Stop,
			Pause:       def.Pause,
			Types:       def.Types,
			Priorities:  def.Priorities,
			Resolutions: def.Resolutions,
			Threshold:   def.Threshold,
		}
		if err := ValidateSla(d); err != nil { return fmt.Errorf("seed sla %q: %w", def.Name, err) }
		if _, err := s.repo.CreateSla(ctx, d); err != nil { return err }
	}
	if len(seed.Slas) > 0 {
		s.log.Info().Int("slas", len(seed.Slas)).Msg("seeded sla definitions")
	}
	return nil
}

// ValidateSla rejects a definition whose pause statuses overlap its start or
// stop statuses, the replay would be ambiguous.
func ValidateSla(d domain.SlaDefinition) error {
	if strings.TrimSpace(d.Name) == "" { return fmt.Errorf("sla name is required") }
	start := sla.Normalize(sla.AsList(d.Start))
	stop := sla.Normalize(sla.AsList(d.Stop))
	if len(start) == 0 { return fmt.Errorf("sla requires at least one start status") }
	if len(stop) == 0 { return fmt.Errorf("sla requires at least one stop status") }
	pause := sla.Normalize(sla.AsList(d.Pause))
	for _, p := range pause {
		for _, v := range start {
			if p == v { return fmt.Errorf("pause status %s overlaps a start status", p) }
		}
		for _, v := range stop {
			if p == v { return fmt.Errorf("pause status %s overlaps a stop status", p) }
		}
	}
	return nil
}

// ValidateRange rejects a business-hour range out of the day bounds or
// overlapping a sibling of the same calendar.
func ValidateRange(existing []domain.BusinessHourRange, b domain.BusinessHourRange) error {
	if b.Start < 0 || b.End > domain.DayMillis || b.Start >= b.End {
		return fmt.Errorf("invalid business hours range")
	}
	for _, o := range existing {
		if o.ID == b.ID { continue }
		if b.Start < o.End && o.Start < b.End {
			return fmt.Errorf("business hours overlap an existing range")
		}
	}
	return nil
}

// DeleteRange refuses to remove the last range of the calendar, issues would
// otherwise never accumulate business time.
func (s *Service) DeleteRange(ctx context.Context, calendarID, id int64) error {
	ranges, err := s.repo.ListRanges(ctx, calendarID)
	if err != nil { return err }
	if len(ranges) <= 1 { return fmt.Errorf("cannot delete the last business hours range") }
	return s.repo.DeleteRange(ctx, id)
}

// payload navigation helpers

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	f, _ := v.(float64)
	return int(f)
}

func entityID(v any) int {
	id, _ := strconv.Atoi(asString(asMap(v)["id"]))
	return id
}

func entityIDPtr(v any) *int {
	m := asMap(v)
	if m == nil { return nil }
	id, err := strconv.Atoi(asString(m["id"]))
	if err != nil { return nil }
	return &id
}

func userName(v any) string {
	m := asMap(v)
	if m == nil { return "" }
	if n := asString(m["name"]); n != "" { return n }
	return asString(m["displayName"])
}

func intPtr(v any) *int {
	f, ok := v.(float64)
	if !ok { return nil }
	i := int(f)
	return &i
}

func datePtr(s string) *time.Time {
	if s == "" { return nil }
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil { return nil }
	return &t
}

func parseJiraTime(s string) (time.Time, error) {
	if s == "" { return time.Time{}, fmt.Errorf("missing timestamp") }
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil { return t.UTC(), nil }
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
