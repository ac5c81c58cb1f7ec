package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/cadencehq/cadence/internal/steps"
	"github.com/cadencehq/cadence/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflow definitions ---

func (s *LibSQLStore) SaveWorkflow(ctx context.Context, wf *schema.Workflow) error {
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	statsJSON, err := json.Marshal(wf.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, status, steps, stats, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, description=excluded.description, status=excluded.status,
		   steps=excluded.steps, stats=excluded.stats, updated_at=CURRENT_TIMESTAMP`,
		wf.ID, wf.Name, nullStr(wf.Description), string(wf.Status),
		string(stepsJSON), string(statsJSON), timeOrNow(wf.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	wf := &schema.Workflow{}
	var (
		description          sql.NullString
		status               string
		stepsJSON, statsJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, status, steps, stats, created_at
		 FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &wf.Name, &description, &status, &stepsJSON, &statsJSON, &wf.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	wf.Description = description.String
	wf.Status = schema.WorkflowStatus(status)
	if err := json.Unmarshal([]byte(stepsJSON), &wf.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &wf.Stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	return wf, nil
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error) {
	var where []string
	var args []any

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, name, description, status, steps, stats, created_at FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*schema.Workflow
	for rows.Next() {
		wf := &schema.Workflow{}
		var (
			description          sql.NullString
			status               string
			stepsJSON, statsJSON string
		)
		if err := rows.Scan(&wf.ID, &wf.Name, &description, &status, &stepsJSON, &statsJSON, &wf.CreatedAt); err != nil {
			return nil, err
		}
		wf.Description = description.String
		wf.Status = schema.WorkflowStatus(status)
		if err := json.Unmarshal([]byte(stepsJSON), &wf.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
		if err := json.Unmarshal([]byte(statsJSON), &wf.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// UpdateStats applies the stats aggregate as a single atomic write.
// Last-writer-wins is acceptable for concurrent batches.
func (s *LibSQLStore) UpdateStats(ctx context.Context, workflowID string, stats schema.Stats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET stats = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(statsJSON), workflowID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", workflowID)
}

// --- Execution history ---

func (s *LibSQLStore) SaveRun(ctx context.Context, run *schema.RunResult) error {
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal run steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_id, lead_id, actor_id, status, trigger_type, steps, error, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, run.LeadID, nullStr(run.ActorID), string(run.Status),
		nullStr(run.TriggerType), string(stepsJSON), nullStr(run.Error),
		timeOrNow(run.StartedAt), timeOrNow(run.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*schema.RunResult, error) {
	run := &schema.RunResult{}
	var (
		actorID, triggerType, errMsg sql.NullString
		status, stepsJSON            string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, lead_id, actor_id, status, trigger_type, steps, error, started_at, completed_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.WorkflowID, &run.LeadID, &actorID, &status, &triggerType,
		&stepsJSON, &errMsg, &run.StartedAt, &run.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	run.ActorID = actorID.String
	run.Status = schema.RunStatus(status)
	run.TriggerType = triggerType.String
	run.Error = errMsg.String
	if err := json.Unmarshal([]byte(stepsJSON), &run.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal run steps: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs for an actor, newest first. An empty
// actor ID returns runs across all actors.
func (s *LibSQLStore) ListRuns(ctx context.Context, actorID string, limit int) ([]*schema.RunResult, error) {
	query := `SELECT id, workflow_id, lead_id, actor_id, status, trigger_type, steps, error, started_at, completed_at FROM runs`
	var args []any
	if actorID != "" {
		query += " WHERE actor_id = ?"
		args = append(args, actorID)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryRuns(ctx, query, args...)
}

// ListWorkflowRuns returns the most recent runs of one workflow, newest first.
func (s *LibSQLStore) ListWorkflowRuns(ctx context.Context, workflowID string, limit int) ([]*schema.RunResult, error) {
	query := `SELECT id, workflow_id, lead_id, actor_id, status, trigger_type, steps, error, started_at, completed_at
	 FROM runs WHERE workflow_id = ? ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryRuns(ctx, query, workflowID)
}

func (s *LibSQLStore) queryRuns(ctx context.Context, query string, args ...any) ([]*schema.RunResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*schema.RunResult
	for rows.Next() {
		run := &schema.RunResult{}
		var (
			actorID, triggerType, errMsg sql.NullString
			status, stepsJSON            string
		)
		if err := rows.Scan(&run.ID, &run.WorkflowID, &run.LeadID, &actorID, &status, &triggerType,
			&stepsJSON, &errMsg, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		run.ActorID = actorID.String
		run.Status = schema.RunStatus(status)
		run.TriggerType = triggerType.String
		run.Error = errMsg.String
		if err := json.Unmarshal([]byte(stepsJSON), &run.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal run steps: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Audit log ---

func (s *LibSQLStore) Append(ctx context.Context, actorID, action, details string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (actor_id, action, details, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		nullStr(actorID), action, details,
	)
	return err
}

func (s *LibSQLStore) ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	var where []string
	var args []any

	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, actor_id, action, details, created_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &actorID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = actorID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Scheduled messages ---

// Schedule persists one pending message per lead. Partial failures are
// reported in the receipt rather than aborting the batch.
func (s *LibSQLStore) Schedule(ctx context.Context, leadIDs []string, content steps.MessageContent, at time.Time) (*steps.ScheduleReceipt, error) {
	receipt := &steps.ScheduleReceipt{}
	for _, leadID := range leadIDs {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO scheduled_messages (lead_id, subject, body, template_id, scheduled_at, status, attempts, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, CURRENT_TIMESTAMP)`,
			leadID, content.Subject, content.Body, nullStr(content.TemplateID),
			at.UTC(), MessagePending,
		)
		if err != nil {
			receipt.Failures = append(receipt.Failures, leadID)
			continue
		}
		receipt.ScheduledCount++
	}
	if receipt.ScheduledCount == 0 && len(receipt.Failures) > 0 {
		return receipt, schema.NewErrorf(schema.ErrCodeScheduling, "all %d messages failed to schedule", len(receipt.Failures))
	}
	return receipt, nil
}

// DueMessages returns pending messages whose scheduled time has passed,
// oldest first. Messages missed during downtime surface here too.
func (s *LibSQLStore) DueMessages(ctx context.Context, now time.Time, limit int) ([]*ScheduledMessage, error) {
	query := `SELECT id, lead_id, subject, body, template_id, scheduled_at, status, attempts, last_error, created_at, delivered_at
	 FROM scheduled_messages WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, MessagePending, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*ScheduledMessage
	for rows.Next() {
		m := &ScheduledMessage{}
		var templateID, lastError sql.NullString
		var deliveredAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.LeadID, &m.Subject, &m.Body, &templateID,
			&m.ScheduledAt, &m.Status, &m.Attempts, &lastError, &m.CreatedAt, &deliveredAt); err != nil {
			return nil, err
		}
		m.TemplateID = templateID.String
		m.LastError = lastError.String
		if deliveredAt.Valid {
			m.DeliveredAt = &deliveredAt.Time
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *LibSQLStore) MarkDelivered(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_messages SET status = ?, delivered_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		MessageDelivered, id, MessagePending,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled_message", fmt.Sprintf("%d", id))
}

// MarkFailed records a delivery failure. With a retryAt, the message stays
// pending and is pushed back to that time; without one it is failed for good.
func (s *LibSQLStore) MarkFailed(ctx context.Context, id int64, reason string, retryAt *time.Time) error {
	var res sql.Result
	var err error
	if retryAt != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE scheduled_messages SET attempts = attempts + 1, last_error = ?, scheduled_at = ? WHERE id = ?`,
			reason, retryAt.UTC(), id,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE scheduled_messages SET status = ?, attempts = attempts + 1, last_error = ? WHERE id = ?`,
			MessageFailed, reason, id,
		)
	}
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled_message", fmt.Sprintf("%d", id))
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*LibSQLStore)(nil)
