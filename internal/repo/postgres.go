/* Copyright (c) 2025 the plugin-bt authors
 * SPDX-License-Identifier: MIT */
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ligoj/plugin-bt/internal/config"
	"github.com/ligoj/plugin-bt/internal/domain"
)

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
	return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
	return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	if !ok && err == nil { return errors.New("advisory unlock returned false") }
	return err
}

// Calendars

func (r *Repository) ListCalendars(ctx context.Context) ([]domain.Calendar, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, name, as_default FROM calendars ORDER BY id`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.Calendar
	for rows.Next() {
		var c domain.Calendar
		if err := rows.Scan(&c.ID, &c.Name, &c.AsDefault); err != nil { return nil, err }
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) CreateCalendar(ctx context.Context, name string, asDefault bool) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO calendars(name, as_default) VALUES($1,$2) RETURNING id`, name, asDefault).Scan(&id)
	if err != nil { return 0, err }
	if asDefault {
		if err := r.SetDefaultCalendar(ctx, id); err != nil { return 0, err }
	}
	return id, nil
}

// SetDefaultCalendar moves the default flag in one transaction, there is
// always at most one default.
func (r *Repository) SetDefaultCalendar(ctx context.Context, id int64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil { return err }
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `UPDATE calendars SET as_default=false WHERE as_default`); err != nil { return err }
	tag, err := tx.Exec(ctx, `UPDATE calendars SET as_default=true WHERE id=$1`, id)
	if err != nil { return err }
	if tag.RowsAffected() == 0 { return pgx.ErrNoRows }
	return tx.Commit(ctx)
}

func (r *Repository) GetDefaultCalendar(ctx context.Context) (*domain.Calendar, error) {
	c := &domain.Calendar{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, as_default FROM calendars WHERE as_default LIMIT 1`).
		Scan(&c.ID, &c.Name, &c.AsDefault)
	if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
	if err != nil { return nil, err }
	return c, nil
}

// Holidays

func (r *Repository) ListHolidays(ctx context.Context, calendarID int64) ([]domain.Holiday, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, date FROM holidays WHERE calendar_id=$1 ORDER BY date`, calendarID)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.Holiday
	for rows.Next() {
		var h domain.Holiday
		if err := rows.Scan(&h.ID, &h.Name, &h.Date); err != nil { return nil, err }
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repository) AddHoliday(ctx context.Context, calendarID int64, name string, date time.Time) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO holidays(calendar_id, name, date) VALUES($1,$2,$3) RETURNING id`,
		calendarID, name, date).Scan(&id)
	return id, err
}

func (r *Repository) DeleteHoliday(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM holidays WHERE id=$1`, id)
	if err != nil { return err }
	if tag.RowsAffected() == 0 { return pgx.ErrNoRows }
	return nil
}

// Business hours

func (r *Repository) ListRanges(ctx context.Context, calendarID int64) ([]domain.BusinessHourRange, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, range_start, range_end FROM business_hours WHERE calendar_id=$1 ORDER BY range_start`, calendarID)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.BusinessHourRange
	for rows.Next() {
		var b domain.BusinessHourRange
		if err := rows.Scan(&b.ID, &b.Start, &b.End); err != nil { return nil, err }
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) AddRange(ctx context.Context, calendarID int64, b domain.BusinessHourRange) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO business_hours(calendar_id, range_start, range_end) VALUES($1,$2,$3) RETURNING id`,
		calendarID, b.Start, b.End).Scan(&id)
	return id, err
}

func (r *Repository) UpdateRange(ctx context.Context, calendarID int64, b domain.BusinessHourRange) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE business_hours SET range_start=$3, range_end=$4 WHERE id=$1 AND calendar_id=$2`,
		b.ID, calendarID, b.Start, b.End)
	if err != nil { return err }
	if tag.RowsAffected() == 0 { return pgx.ErrNoRows }
	return nil
}

func (r *Repository) DeleteRange(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM business_hours WHERE id=$1`, id)
	if err != nil { return err }
	if tag.RowsAffected() == 0 { return pgx.ErrNoRows }
	return nil
}

// SLA definitions

func (r *Repository) ListSlas(ctx context.Context) ([]domain.SlaDefinition, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, name, coalesce(description,''),
		start_statuses, stop_statuses, coalesce(pause_statuses,''),
		coalesce(types,''), coalesce(priorities,''), coalesce(resolutions,''),
		coalesce(threshold,0)
		FROM slas ORDER BY id`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.SlaDefinition
	for rows.Next() {
		var s domain.SlaDefinition
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Start, &s.Stop, &s.Pause,
			&s.Types, &s.Priorities, &s.Resolutions, &s.Threshold); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetSla(ctx context.Context, id int64) (*domain.SlaDefinition, error) {
	s := &domain.SlaDefinition{}
	err := r.db.Pool.QueryRow(ctx, `SELECT id, name, coalesce(description,''),
		start_statuses, stop_statuses, coalesce(pause_statuses,''),
		coalesce(types,''), coalesce(priorities,''), coalesce(resolutions,''),
		coalesce(threshold,0) FROM slas WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.Description, &s.Start, &s.Stop, &s.Pause,
			&s.Types, &s.Priorities, &s.Resolutions, &s.Threshold)
	if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
	if err != nil { return nil, err }
	return s, nil
}

func (r *Repository) CreateSla(ctx context.Context, s domain.SlaDefinition) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx, `INSERT INTO slas(name, description, start_statuses,
		stop_statuses, pause_statuses, types, priorities, resolutions, threshold)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		s.Name, s.Description, s.Start, s.Stop, s.Pause, s.Types, s.Priorities, s.Resolutions, s.Threshold).Scan(&id)
	return id, err
}

func (r *Repository) UpdateSla(ctx context.Context, s domain.SlaDefinition) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE slas SET name=$2, description=$3, start_statuses=$4,
		stop_statuses=$5, pause_statuses=$6, types=$7, priorities=$8, resolutions=$9, threshold=$10
		WHERE id=$1`,
		s.ID, s.Name, s.Description, s.Start, s.Stop, s.Pause, s.Types, s.Priorities, s.Resolutions, s.Threshold)
	if err != nil { return err }
	if tag.RowsAffected() == 0 { return pgx.ErrNoRows }
	return nil
}

func (r *Repository) DeleteSla(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM slas WHERE id=$1`, id)
	if err != nil { return err }
	if tag.RowsAffected() == 0 { return pgx.ErrNoRows }
	return nil
}

// Identifier mappings, one row per tracker object: kind is "status", "type",
// "priority" or "resolution".

func (r *Repository) ReplaceIdentifiers(ctx context.Context, kind string, mapping map[int]string) error {
	batch := &pgx.Batch{}
	const q = `INSERT INTO identifiers(kind, ext_id, name) VALUES($1,$2,$3)
		ON CONFLICT (kind, ext_id) DO UPDATE SET name=EXCLUDED.name`
	for id, name := range mapping {
		batch.Queue(q, kind, id, name)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range mapping { if _, err := br.Exec(); err != nil { return err } }
	return nil
}

func (r *Repository) LoadIdentifiers(ctx context.Context, kind string) (map[int]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT ext_id, name FROM identifiers WHERE kind=$1`, kind)
	if err != nil { return nil, err }
	defer rows.Close()
	out := map[int]string{}
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil { return nil, err }
		out[id] = name
	}
	return out, rows.Err()
}

// Status changes

func (r *Repository) BulkInsertChanges(ctx context.Context, changes []domain.StatusChangeEvent) error {
	if len(changes) == 0 { return nil }
	batch := &pgx.Batch{}
	const q = `INSERT INTO status_changes(issue_id, pkey, at, from_status, to_status,
		status, priority, type, resolution, assignee, reporter,
		time_spent, time_estimate, time_estimate_init, due_date)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (issue_id, at, to_status) DO NOTHING`
	for i := range changes {
		c := &changes[i]
		batch.Queue(q, c.IssueID, c.Key, c.At, c.FromStatus, c.ToStatus,
			c.Status, c.Priority, c.Type, c.Resolution, c.Assignee, c.Reporter,
			c.TimeSpent, c.TimeEstimate, c.TimeEstimateInit, c.DueDate)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range changes { if _, err := br.Exec(); err != nil { return err } }
	return nil
}

// ListChanges returns the whole stream ordered by timestamp then insertion,
// the order the computation engine requires.
func (r *Repository) ListChanges(ctx context.Context) ([]domain.StatusChangeEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT issue_id, pkey, at, from_status, to_status,
		status, priority, type, resolution, coalesce(assignee,''), coalesce(reporter,''),
		time_spent, time_estimate, time_estimate_init, due_date
		FROM status_changes ORDER BY at, id`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []domain.StatusChangeEvent
	for rows.Next() {
		var c domain.StatusChangeEvent
		if err := rows.Scan(&c.IssueID, &c.Key, &c.At, &c.FromStatus, &c.ToStatus,
			&c.Status, &c.Priority, &c.Type, &c.Resolution, &c.Assignee, &c.Reporter,
			&c.TimeSpent, &c.TimeEstimate, &c.TimeEstimateInit, &c.DueDate); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Sync run bookkeeping

func (r *Repository) StartJobRun(ctx context.Context, projectsJSON string) (int64, error) {
	const q = `INSERT INTO job_runs(started_at, projects, success) VALUES(now(), $1, false) RETURNING id`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q, projectsJSON).Scan(&id); err != nil { return 0, err }
	return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, issuesScanned, changesSeen int, success bool, errStr string) error {
	const q = `UPDATE job_runs SET finished_at=now(), issues_scanned=$2, changes_seen=$3, success=$4, error=$5 WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id, issuesScanned, changesSeen, success, errStr)
	return err
}

type LastRun struct {
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	Projects      string     `json:"projects"`
	IssuesScanned int        `json:"issues_scanned"`
	ChangesSeen   int        `json:"changes_seen"`
	Success       bool       `json:"success"`
	Error         string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
	const q = `SELECT started_at, finished_at, projects::text,
		coalesce(issues_scanned,0), coalesce(changes_seen,0),
		coalesce(success,false), coalesce(error,'')
		FROM job_runs ORDER BY id DESC LIMIT 1`
	row := r.db.Pool.QueryRow(ctx, q)
	lr := &LastRun{}
	if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.Projects, &lr.IssuesScanned, &lr.ChangesSeen, &lr.Success, &lr.Error); err != nil {
		return nil, err
	}
	return lr, nil
}
