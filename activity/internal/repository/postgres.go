package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/query"
	"github.com/pbi-manager/activity-sync/common/database"
)

// PostgresRepository implements Repository on a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository wraps an open pool. The repository owns the pool and
// closes it in Close.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Event column lists derived once from the static attribute table.
var (
	eventColumns = strings.Join(models.FieldNames(), ", ")
	upsertSQL    = buildUpsertSQL()
)

// writableFields excludes the store-maintained timestamps.
func writableFields() []models.EventField {
	out := make([]models.EventField, 0, len(models.EventFields))
	for _, f := range models.EventFields {
		if f.Name == "created_at" || f.Name == "updated_at" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func buildUpsertSQL() string {
	fields := writableFields()
	cols := make([]string, len(fields))
	params := make([]string, len(fields))
	var sets []string
	for i, f := range fields {
		cols[i] = f.Name
		params[i] = fmt.Sprintf("$%d", i+1)
		if f.Name != "id" {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", f.Name, f.Name))
		}
	}
	sets = append(sets, "updated_at = NOW()")

	return fmt.Sprintf(
		"INSERT INTO activity_events (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s RETURNING created_at, updated_at",
		strings.Join(cols, ", "), strings.Join(params, ", "), strings.Join(sets, ", "),
	)
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	e := &models.Event{}
	targets := make([]any, len(models.EventFields))
	for i, f := range models.EventFields {
		targets[i] = f.Addr(e)
	}
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	e.CreationTime = e.CreationTime.UTC()
	return e, nil
}

func (r *PostgresRepository) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	e, err := scanEvent(r.pool.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM activity_events WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get event", err)
	}
	return e, nil
}

func (r *PostgresRepository) SaveEvent(ctx context.Context, e *models.Event) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	fields := writableFields()
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f.Value(e)
	}

	if err := r.pool.QueryRow(ctx, upsertSQL, args...).Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		// class 22 is a data exception: the row is bad, not the database
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22") {
			return fmt.Errorf("%w: %s (SQLSTATE %s)", ErrInvalidData, pgErr.Message, pgErr.Code)
		}
		return storageErr("save event", err)
	}
	return nil
}

func (r *PostgresRepository) CountEvents(ctx context.Context) (int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM activity_events").Scan(&n); err != nil {
		return 0, storageErr("count events", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, "DELETE FROM activity_events WHERE creationtime < $1", cutoff)
	if err != nil {
		return 0, storageErr("delete events", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) ListEvents(ctx context.Context, spec query.Spec, limit, offset int) ([]models.Event, int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	q := query.BuildSQL(spec)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM activity_events "+q.Where, q.Args...).Scan(&total); err != nil {
		return nil, 0, storageErr("count events", err)
	}

	args := append(append([]any{}, q.Args...), limit, offset)
	sql := fmt.Sprintf("SELECT %s FROM activity_events %s %s LIMIT $%d OFFSET $%d",
		eventColumns, q.Where, q.OrderBy, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, storageErr("list events", err)
	}
	defer rows.Close()

	events := make([]models.Event, 0, limit)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, storageErr("scan event", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("list events", err)
	}
	return events, total, nil
}

func (r *PostgresRepository) EachEvent(ctx context.Context, spec query.Spec, fn func(*models.Event) error) error {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	q := query.BuildSQL(spec)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM activity_events %s %s", eventColumns, q.Where, q.OrderBy), q.Args...)
	if err != nil {
		return storageErr("stream events", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return storageErr("scan event", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("stream events", err)
	}
	return nil
}

func (r *PostgresRepository) DistinctValues(ctx context.Context, field string, limit int) ([]string, error) {
	f, err := groupableField(field)
	if err != nil {
		return nil, err
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	sql := fmt.Sprintf("SELECT DISTINCT %s::text AS v FROM activity_events WHERE %s IS NOT NULL ORDER BY v", f.Name, f.Name)
	args := []any{}
	if limit > 0 {
		sql += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr("distinct values", err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storageErr("distinct values", err)
	}
	return values, nil
}

func (r *PostgresRepository) TimeRange(ctx context.Context, field string) (*time.Time, *time.Time, error) {
	f, err := groupableField(field)
	if err != nil || f.Type != models.FieldTypeDateTime {
		return nil, nil, ErrUnknownField
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var lo, hi *time.Time
	sql := fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM activity_events", f.Name, f.Name)
	if err := r.pool.QueryRow(ctx, sql).Scan(&lo, &hi); err != nil {
		return nil, nil, storageErr("time range", err)
	}
	return lo, hi, nil
}

func (r *PostgresRepository) CountBy(ctx context.Context, fields []string, sinceField string, since time.Time) ([]Bucket, error) {
	exprs := make([]string, len(fields))
	for i, name := range fields {
		f, err := groupableField(name)
		if err != nil {
			return nil, err
		}
		exprs[i] = f.Name
		if f.Type == models.FieldTypeDateTime {
			exprs[i] = fmt.Sprintf("date_trunc('hour', %s)", f.Name)
		}
	}

	var (
		where string
		args  []any
	)
	if sinceField != "" {
		f, err := groupableField(sinceField)
		if err != nil || f.Type != models.FieldTypeDateTime {
			return nil, ErrUnknownField
		}
		where = fmt.Sprintf("WHERE %s >= $1", f.Name)
		args = append(args, since)
	}

	positions := make([]string, len(exprs))
	for i := range exprs {
		positions[i] = fmt.Sprintf("%d", i+1)
	}
	sql := fmt.Sprintf("SELECT %s, COUNT(*) FROM activity_events %s GROUP BY %s ORDER BY %s",
		strings.Join(exprs, ", "), where, strings.Join(positions, ", "), strings.Join(positions, ", "))

	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr("count by", err)
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, storageErr("count by", err)
		}
		n := len(vals) - 1
		count, _ := vals[n].(int64)
		out = append(out, Bucket{Keys: vals[:n], Count: int(count)})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("count by", err)
	}
	return out, nil
}

func (r *PostgresRepository) CreateRun(ctx context.Context, run *models.SyncRun) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO sync_runs (run_id, task_name, status, result, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, run.RunID, run.TaskName, run.Status, result, run.StartedAt).Scan(&run.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return storageErr("create run", err)
	}
	return nil
}

const runColumns = "run_id, task_name, status, result, started_at, created_at"

func scanRun(row pgx.Row) (*models.SyncRun, error) {
	var (
		run    models.SyncRun
		result []byte
	)
	if err := row.Scan(&run.RunID, &run.TaskName, &run.Status, &result, &run.StartedAt, &run.CreatedAt); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		run.Result = &models.RunResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return nil, fmt.Errorf("decode run result: %w", err)
		}
	}
	return &run, nil
}

func (r *PostgresRepository) GetRun(ctx context.Context, runID string) (*models.SyncRun, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	run, err := scanRun(r.pool.QueryRow(ctx, "SELECT "+runColumns+" FROM sync_runs WHERE run_id = $1", runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get run", err)
	}
	return run, nil
}

func (r *PostgresRepository) ListRuns(ctx context.Context, taskName string, limit int) ([]models.SyncRun, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+` FROM sync_runs
		WHERE ($1 = '' OR task_name = $1)
		ORDER BY started_at DESC
		LIMIT NULLIF($2, 0)
	`, taskName, limit)
	if err != nil {
		return nil, storageErr("list runs", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, storageErr("scan run", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list runs", err)
	}
	return runs, nil
}

func (r *PostgresRepository) LatestSuccessfulRun(ctx context.Context, taskName string) (*models.SyncRun, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	run, err := scanRun(r.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM sync_runs
		WHERE task_name = $1 AND LOWER(status) = 'success'
		ORDER BY started_at DESC
		LIMIT 1
	`, taskName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("latest successful run", err)
	}
	return run, nil
}

func (r *PostgresRepository) CreateTaskResult(ctx context.Context, tr *models.TaskResult) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO task_results (task_id, task_name, status, args)
		VALUES ($1, $2, $3, $4)
		RETURNING date_created
	`, tr.TaskID, tr.TaskName, tr.Status, tr.Args).Scan(&tr.DateCreated)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return storageErr("create task result", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateTaskResult(ctx context.Context, tr *models.TaskResult) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	result, err := json.Marshal(tr.Result)
	if err != nil {
		return fmt.Errorf("marshal task result: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE task_results SET status = $2, result = $3, error = $4, date_done = $5
		WHERE task_id = $1
	`, tr.TaskID, tr.Status, result, tr.Error, tr.DateDone)
	if err != nil {
		return storageErr("update task result", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const taskColumns = "task_id, task_name, status, args, result, error, date_created, date_done"

func scanTask(row pgx.Row) (*models.TaskResult, error) {
	var (
		tr     models.TaskResult
		result []byte
	)
	if err := row.Scan(&tr.TaskID, &tr.TaskName, &tr.Status, &tr.Args, &result, &tr.Error, &tr.DateCreated, &tr.DateDone); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		var v any
		if err := json.Unmarshal(result, &v); err != nil {
			return nil, fmt.Errorf("decode task result: %w", err)
		}
		tr.Result = v
	}
	return &tr, nil
}

func (r *PostgresRepository) GetTaskResult(ctx context.Context, taskID string) (*models.TaskResult, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	tr, err := scanTask(r.pool.QueryRow(ctx, "SELECT "+taskColumns+" FROM task_results WHERE task_id = $1", taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get task result", err)
	}
	return tr, nil
}

func (r *PostgresRepository) LatestSuccessfulTask(ctx context.Context, taskName string) (*models.TaskResult, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	tr, err := scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM task_results
		WHERE task_name = $1 AND LOWER(status) = 'success'
		ORDER BY date_created DESC
		LIMIT 1
	`, taskName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("latest successful task", err)
	}
	return tr, nil
}

func (r *PostgresRepository) ListFields(ctx context.Context) ([]models.FieldDescriptor, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT fieldname, fieldtype, displayname, displayorder, display, filter, orderby, search, export, chart, updated_at
		FROM activity_event_fields
		ORDER BY displayorder ASC NULLS LAST, fieldname ASC
	`)
	if err != nil {
		return nil, storageErr("list fields", err)
	}
	defer rows.Close()

	var out []models.FieldDescriptor
	for rows.Next() {
		var d models.FieldDescriptor
		if err := rows.Scan(&d.FieldName, &d.FieldType, &d.DisplayName, &d.DisplayOrder,
			&d.Display, &d.Filter, &d.OrderBy, &d.Search, &d.Export, &d.Chart, &d.UpdatedAt); err != nil {
			return nil, storageErr("scan field", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list fields", err)
	}
	return out, nil
}

func (r *PostgresRepository) SaveField(ctx context.Context, d *models.FieldDescriptor) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO activity_event_fields
			(fieldname, fieldtype, displayname, displayorder, display, filter, orderby, search, export, chart)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (fieldname) DO UPDATE SET
			fieldtype = EXCLUDED.fieldtype,
			displayname = EXCLUDED.displayname,
			displayorder = EXCLUDED.displayorder,
			display = EXCLUDED.display,
			filter = EXCLUDED.filter,
			orderby = EXCLUDED.orderby,
			search = EXCLUDED.search,
			export = EXCLUDED.export,
			chart = EXCLUDED.chart,
			updated_at = NOW()
		RETURNING updated_at
	`, d.FieldName, d.FieldType, d.DisplayName, d.DisplayOrder,
		d.Display, d.Filter, d.OrderBy, d.Search, d.Export, d.Chart).Scan(&d.UpdatedAt)
	if err != nil {
		return storageErr("save field", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteFields(ctx context.Context, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, "DELETE FROM activity_event_fields WHERE fieldname = ANY($1)", names)
	if err != nil {
		return 0, storageErr("delete fields", err)
	}
	return int(tag.RowsAffected()), nil
}
