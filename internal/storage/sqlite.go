package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	logx "crosspost/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	// idMu guards the monotonic ULID entropy source.
	idMu      sync.Mutex
	idEntropy *ulid.MonotonicEntropy
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{
		db:        db,
		log:       log,
		idEntropy: ulid.Monotonic(rand.Reader, 0),
	}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) newID() (string, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), s.idEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *sqliteStore) CreatePost(ctx context.Context, p *Post) (string, error) {
	if p == nil {
		return "", errors.New("nil post")
	}
	id, err := s.newID()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	p.ID = id
	if p.Status == "" {
		p.Status = StatusCreated
	}
	if p.CaptionPreview == "" {
		p.CaptionPreview = CaptionPreview(p.Caption)
	}

	targets, err := json.Marshal(p.Targets)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO posts(id, requester_id, asset_name, asset_size_mb, caption, caption_preview,
		                   targets, status, outcomes, simulated, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,NULL,?,?,?)`,
		p.ID, p.RequesterID, p.AssetName, p.AssetSizeMB, p.Caption, p.CaptionPreview,
		string(targets), string(p.Status), boolInt(p.Simulated),
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (s *sqliteStore) UpdatePostStatus(ctx context.Context, id string, status Status, outcomes map[string]TargetOutcome) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var res sql.Result
	var err error
	if outcomes == nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE posts SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), now, id)
	} else {
		var oj []byte
		oj, err = json.Marshal(outcomes)
		if err != nil {
			return err
		}
		res, err = s.db.ExecContext(ctx,
			`UPDATE posts SET status = ?, outcomes = ?, updated_at = ? WHERE id = ?`,
			string(status), string(oj), now, id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) GetPost(ctx context.Context, id string) (*Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, requester_id, asset_name, asset_size_mb, caption, caption_preview,
		        targets, status, outcomes, simulated, created_at, updated_at
		 FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *sqliteStore) RecentPosts(ctx context.Context, requesterID int64, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, requester_id, asset_name, asset_size_mb, caption, caption_preview,
		        targets, status, outcomes, simulated, created_at, updated_at
		 FROM posts WHERE requester_id = ? ORDER BY created_at DESC LIMIT ?`,
		requesterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountPosts(ctx context.Context, requesterID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE requester_id = ?`, requesterID).Scan(&n)
	return n, err
}

func (s *sqliteStore) GetPrefs(ctx context.Context, requesterID int64) (Prefs, error) {
	var (
		mock, auto int
		preferred  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT mock_mode, auto_publish, preferred_targets FROM prefs WHERE requester_id = ?`,
		requesterID).Scan(&mock, &auto, &preferred)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultPrefs(), nil
	}
	if err != nil {
		return DefaultPrefs(), err
	}
	p := Prefs{MockMode: mock != 0, AutoPublish: auto != 0}
	if preferred.Valid && preferred.String != "" {
		if err := json.Unmarshal([]byte(preferred.String), &p.PreferredTargets); err != nil {
			s.log.Warn("bad preferred_targets json; ignoring", logx.Int64("requester", requesterID), logx.Err(err))
		}
	}
	return p, nil
}

func (s *sqliteStore) PutPrefs(ctx context.Context, requesterID int64, p Prefs) error {
	var preferred any
	if len(p.PreferredTargets) > 0 {
		b, err := json.Marshal(p.PreferredTargets)
		if err != nil {
			return err
		}
		preferred = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs(requester_id, mock_mode, auto_publish, preferred_targets, updated_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(requester_id) DO UPDATE SET
		   mock_mode = excluded.mock_mode,
		   auto_publish = excluded.auto_publish,
		   preferred_targets = excluded.preferred_targets,
		   updated_at = excluded.updated_at`,
		requesterID, boolInt(p.MockMode), boolInt(p.AutoPublish), preferred,
		time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, requester_id, action, post_id, detail) VALUES(?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.RequesterID, e.Action, nullStr(e.PostID), nullStr(e.Detail))
	return err
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&st.TotalPosts); err != nil {
		return st, err
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE status = ?`, string(StatusCompleted)).Scan(&st.CompletedPosts)
	return st, err
}

func (s *sqliteStore) PruneOld(ctx context.Context, postsBefore, auditBefore time.Time) (int64, error) {
	var removed int64
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM posts WHERE created_at < ? AND status IN (?,?,?,?)`,
		postsBefore.UTC().Format(time.RFC3339Nano),
		string(StatusCompleted), string(StatusPartial), string(StatusFailed), string(StatusCancelled))
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	res, err = s.db.ExecContext(ctx,
		`DELETE FROM audit WHERE at < ?`, auditBefore.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return removed, err
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*Post, error) {
	var (
		p         Post
		targets   string
		outcomes  sql.NullString
		simulated int
		status    string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&p.ID, &p.RequesterID, &p.AssetName, &p.AssetSizeMB, &p.Caption, &p.CaptionPreview,
		&targets, &status, &outcomes, &simulated, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	p.Simulated = simulated != 0
	if err := json.Unmarshal([]byte(targets), &p.Targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if outcomes.Valid && outcomes.String != "" {
		if err := json.Unmarshal([]byte(outcomes.String), &p.Outcomes); err != nil {
			return nil, fmt.Errorf("decode outcomes: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		p.UpdatedAt = t
	}
	return &p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
