package storage

import (
	"context"
	"time"

	logx "crosspost/pkg/logx"
)

// Store is the persistence API used by the orchestrator and the bot front
// end. Writes after post creation are best-effort for the caller: the
// in-memory lifecycle never depends on them succeeding.
type Store interface {
	// CreatePost assigns an id and persists the record; dispatch must not
	// proceed until an id exists.
	CreatePost(ctx context.Context, p *Post) (string, error)
	UpdatePostStatus(ctx context.Context, id string, status Status, outcomes map[string]TargetOutcome) error
	GetPost(ctx context.Context, id string) (*Post, error)
	RecentPosts(ctx context.Context, requesterID int64, limit int) ([]Post, error)
	CountPosts(ctx context.Context, requesterID int64) (int, error)

	GetPrefs(ctx context.Context, requesterID int64) (Prefs, error)
	PutPrefs(ctx context.Context, requesterID int64, p Prefs) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	Stats(ctx context.Context) (Stats, error)

	// PruneOld removes terminal posts created before postsBefore and audit
	// rows older than auditBefore. Returns rows removed.
	PruneOld(ctx context.Context, postsBefore, auditBefore time.Time) (int64, error)

	Close() error
}

// Open initializes the sqlite store. It returns (nil, nil) when no path is
// configured, which disables persistence.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}

// DefaultPrefs is what a requester gets before ever saving settings.
// Mock mode starts on so a fresh deployment cannot publish by accident.
func DefaultPrefs() Prefs {
	return Prefs{MockMode: true, AutoPublish: false}
}
