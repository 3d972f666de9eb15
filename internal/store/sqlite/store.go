package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"escape_bench/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	room_id TEXT NOT NULL,
	model TEXT NOT NULL,
	adversary INTEGER NOT NULL DEFAULT 0,
	adversary_style TEXT NOT NULL DEFAULT '',
	reputation INTEGER NOT NULL DEFAULT 0,
	gossip INTEGER NOT NULL DEFAULT 0,
	max_steps INTEGER NOT NULL,
	episodes INTEGER NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NULL,
	success_rate REAL NULL,
	summary_json TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS episodes (
	run_id TEXT NOT NULL,
	episode INTEGER NOT NULL,
	status TEXT NOT NULL,
	success INTEGER NOT NULL DEFAULT 0,
	steps_taken INTEGER NOT NULL DEFAULT 0,
	wrong_password_attempts INTEGER NOT NULL DEFAULT 0,
	reputation_enabled INTEGER NOT NULL DEFAULT 0,
	final_reputation TEXT NOT NULL DEFAULT '{}',
	summaries TEXT NOT NULL DEFAULT '[]',
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY(run_id, episode),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS room_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	episode INTEGER NOT NULL,
	timestep INTEGER NOT NULL,
	agent_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	object_id TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_room_events_run ON room_events(run_id, episode, timestep);
`

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run domain.RunRecord) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs(
			id, room_id, model, adversary, adversary_style, reputation, gossip,
			max_steps, episodes, started_at, finished_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RoomID, run.Model, boolToInt(run.Adversary), string(run.AdversaryStyle),
		boolToInt(run.Reputation), boolToInt(run.Gossip), run.MaxSteps, run.Episodes,
		run.StartedAt.Unix(), nullableUnix(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun stamps the end time and lands the aggregate summary on the
// run row so the monitor can show results without replaying episodes.
func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time, summary domain.ExperimentSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE runs SET finished_at = ?, success_rate = ?, summary_json = ? WHERE id = ?`,
		finishedAt.Unix(), summary.SuccessRate, string(summaryJSON), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, room_id, model, adversary, adversary_style, reputation, gossip,
			max_steps, episodes, started_at, finished_at, success_rate, summary_json
		FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RunRecord, 0)
	for rows.Next() {
		var r domain.RunRecord
		var adversary, reputation, gossip int
		var style, summaryJSON string
		var started int64
		var finished sql.NullInt64
		var successRate sql.NullFloat64
		if err := rows.Scan(
			&r.ID, &r.RoomID, &r.Model, &adversary, &style, &reputation, &gossip,
			&r.MaxSteps, &r.Episodes, &started, &finished, &successRate, &summaryJSON,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Adversary = adversary != 0
		r.AdversaryStyle = domain.MaliceStyle(style)
		r.Reputation = reputation != 0
		r.Gossip = gossip != 0
		r.StartedAt = unixToTime(started)
		r.FinishedAt = int64ToTimePtr(finished)
		if successRate.Valid {
			rate := successRate.Float64
			r.SuccessRate = &rate
		}
		if summaryJSON != "" {
			var summary domain.ExperimentSummary
			if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
				return nil, fmt.Errorf("decode run summary: %w", err)
			}
			r.Summary = &summary
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

// SaveEpisode upserts so re-recording a finished episode is harmless.
func (s *Store) SaveEpisode(ctx context.Context, runID string, rec domain.EpisodeRecord) error {
	reputation, err := json.Marshal(rec.FinalReputationScores)
	if err != nil {
		return fmt.Errorf("marshal final reputation: %w", err)
	}
	summaries, err := json.Marshal(rec.Summaries)
	if err != nil {
		return fmt.Errorf("marshal summaries: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO episodes(
			run_id, episode, status, success, steps_taken, wrong_password_attempts,
			reputation_enabled, final_reputation, summaries, last_error, created_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Episode, string(rec.Status), boolToInt(rec.Success), rec.StepsTaken,
		rec.WrongPasswordAttempts, boolToInt(rec.ReputationEnabled), string(reputation),
		string(summaries), rec.Error, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save episode: %w", err)
	}
	return nil
}

func (s *Store) ListEpisodes(ctx context.Context, runID string) ([]domain.EpisodeRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT episode, status, success, steps_taken, wrong_password_attempts,
			reputation_enabled, final_reputation, summaries, last_error
		FROM episodes WHERE run_id = ? ORDER BY episode ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	result := make([]domain.EpisodeRecord, 0)
	for rows.Next() {
		var rec domain.EpisodeRecord
		var status string
		var success, reputationEnabled int
		var reputation, summaries string
		if err := rows.Scan(
			&rec.Episode, &status, &success, &rec.StepsTaken, &rec.WrongPasswordAttempts,
			&reputationEnabled, &reputation, &summaries, &rec.Error,
		); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		rec.Status = domain.EpisodeStatus(status)
		rec.Success = success != 0
		rec.ReputationEnabled = reputationEnabled != 0
		if err := json.Unmarshal([]byte(reputation), &rec.FinalReputationScores); err != nil {
			return nil, fmt.Errorf("decode final reputation: %w", err)
		}
		if err := json.Unmarshal([]byte(summaries), &rec.Summaries); err != nil {
			return nil, fmt.Errorf("decode summaries: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}
	return result, nil
}

func (s *Store) InsertRoomEvent(ctx context.Context, runID string, ev domain.RoomEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO room_events(
			run_id, episode, timestep, agent_id, kind, object_id, detail, created_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, ev.Episode, ev.Timestep, ev.AgentID, string(ev.Kind), ev.ObjectID,
		ev.Detail, ev.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert room event: %w", err)
	}
	return nil
}

// ListRoomEvents returns the newest events first.
func (s *Store) ListRoomEvents(ctx context.Context, runID string, limit int) ([]domain.RoomEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT episode, timestep, agent_id, kind, object_id, detail, created_at
		FROM room_events WHERE run_id = ? ORDER BY id DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list room events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RoomEvent, 0)
	for rows.Next() {
		var ev domain.RoomEvent
		var kind string
		var created int64
		if err := rows.Scan(
			&ev.Episode, &ev.Timestep, &ev.AgentID, &kind, &ev.ObjectID, &ev.Detail, &created,
		); err != nil {
			return nil, fmt.Errorf("scan room event: %w", err)
		}
		ev.Kind = domain.RoomEventKind(kind)
		ev.CreatedAt = unixToTime(created)
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room events: %w", err)
	}
	return result, nil
}

func int64ToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := unixToTime(v.Int64)
	return &t
}

func unixToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
