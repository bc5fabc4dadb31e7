package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"crosspost/internal/dispatch"
	"crosspost/internal/publish"
	"crosspost/internal/storage"
	logx "crosspost/pkg/logx"
)

// Orchestration-level errors. These are the only failures surfaced to the
// front end as failures of the call itself; per-target failures always end
// up inside the outcome set instead.
var (
	ErrNoTargetsAvailable = errors.New("no targets available")
	ErrNoActiveSession    = errors.New("no active session")
	ErrSessionBusy        = errors.New("session busy")
)

// Session is the ephemeral state between asset receipt and confirm/cancel.
// At most one live session exists per requester. The session exclusively
// owns the downloaded asset until release.
type Session struct {
	PostID    string
	Asset     publish.Asset
	Caption   string
	Targets   []string
	Simulated bool
	StartedAt time.Time
}

// Dispatcher is what Confirm hands the resolved request to.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Result
}

// Controller bridges validated inbound requests to the dispatch engine and
// drives the post lifecycle. Persistence is best-effort everywhere except
// post creation, which must yield an id before a session exists.
type Controller struct {
	reg   *publish.Registry
	eng   Dispatcher
	store storage.Store // nil disables persistence
	log   logx.Logger

	mu       sync.Mutex
	sessions map[int64]*slot
}

// slot serializes Begin/Confirm/Cancel per requester: busy marks an
// in-flight call, and a second call for the same requester fails with
// ErrSessionBusy instead of interleaving.
type slot struct {
	sess     Session
	adapters []publish.Target
	busy     bool
}

func New(reg *publish.Registry, eng Dispatcher, store storage.Store, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Controller{
		reg:      reg,
		eng:      eng,
		store:    store,
		log:      log,
		sessions: make(map[int64]*slot),
	}
}

// Begin filters candidates down to available targets, creates the post
// record, and stores the session. A requester with a pending session is
// rejected with ErrSessionBusy; the pending one must be confirmed or
// cancelled first.
func (c *Controller) Begin(ctx context.Context, requesterID int64, asset publish.Asset, caption string, candidates []string, simulated bool) (Session, error) {
	adapters := c.reg.Filter(candidates)
	if len(adapters) == 0 {
		return Session{}, ErrNoTargetsAvailable
	}
	names := make([]string, len(adapters))
	for i, t := range adapters {
		names[i] = t.Name()
	}

	c.mu.Lock()
	if _, exists := c.sessions[requesterID]; exists {
		c.mu.Unlock()
		return Session{}, ErrSessionBusy
	}
	// Reserve the key while the post record is created so a concurrent
	// Begin for the same requester cannot slip in.
	c.sessions[requesterID] = &slot{busy: true}
	c.mu.Unlock()

	rec := &storage.Post{
		RequesterID: requesterID,
		AssetName:   asset.Name,
		AssetSizeMB: asset.SizeMB(),
		Caption:     caption,
		Targets:     names,
		Status:      storage.StatusCreated,
		Simulated:   simulated,
	}
	id, err := c.createPost(ctx, rec)
	if err != nil {
		c.mu.Lock()
		delete(c.sessions, requesterID)
		c.mu.Unlock()
		return Session{}, err
	}

	sess := Session{
		PostID:    id,
		Asset:     asset,
		Caption:   caption,
		Targets:   names,
		Simulated: simulated,
		StartedAt: time.Now(),
	}
	c.mu.Lock()
	c.sessions[requesterID] = &slot{sess: sess, adapters: adapters}
	c.mu.Unlock()

	c.audit(requesterID, "session.begin", id, fmt.Sprintf("targets=%d simulated=%t", len(names), simulated))
	return sess, nil
}

// Confirm drives the session's post through processing to a terminal state
// and returns the final record. This is the only path out of "created"
// toward dispatch. The session and its asset are released regardless of
// the dispatch outcome.
func (c *Controller) Confirm(ctx context.Context, requesterID int64) (*storage.Post, error) {
	sl, err := c.acquire(requesterID)
	if err != nil {
		return nil, err
	}
	sess := sl.sess

	c.updateStatus(ctx, sess.PostID, storage.StatusProcessing, nil)

	result := c.eng.Dispatch(ctx, dispatch.Request{
		Asset:     sess.Asset,
		Caption:   sess.Caption,
		Names:     sess.Targets,
		Targets:   sl.adapters,
		Simulated: sess.Simulated,
	})

	c.updateStatus(ctx, sess.PostID, result.Status, result.Outcomes)
	c.releaseAsset(sess.Asset)
	c.drop(requesterID)
	c.audit(requesterID, "session.confirm", sess.PostID, string(result.Status))

	now := time.Now().UTC()
	return &storage.Post{
		ID:             sess.PostID,
		RequesterID:    requesterID,
		AssetName:      sess.Asset.Name,
		AssetSizeMB:    sess.Asset.SizeMB(),
		Caption:        sess.Caption,
		CaptionPreview: storage.CaptionPreview(sess.Caption),
		Targets:        sess.Targets,
		Status:         result.Status,
		Outcomes:       result.Outcomes,
		Simulated:      sess.Simulated,
		CreatedAt:      sess.StartedAt.UTC(),
		UpdatedAt:      now,
	}, nil
}

// Cancel tears down the pending session, if any. Cancelling nothing is not
// an error.
func (c *Controller) Cancel(ctx context.Context, requesterID int64) error {
	sl, err := c.acquire(requesterID)
	if errors.Is(err, ErrNoActiveSession) {
		return nil
	}
	if err != nil {
		return err
	}
	sess := sl.sess

	c.updateStatus(ctx, sess.PostID, storage.StatusCancelled, nil)
	c.releaseAsset(sess.Asset)
	c.drop(requesterID)
	c.audit(requesterID, "session.cancel", sess.PostID, "")
	return nil
}

// ActiveSession returns a copy of the requester's pending session.
func (c *Controller) ActiveSession(requesterID int64) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sl, ok := c.sessions[requesterID]
	if !ok || sl.busy {
		return Session{}, false
	}
	return sl.sess, true
}

// Shutdown releases every pending session's asset. In-flight dispatches
// are abandoned, not resumed.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	slots := c.sessions
	c.sessions = make(map[int64]*slot)
	c.mu.Unlock()

	for id, sl := range slots {
		c.releaseAsset(sl.sess.Asset)
		c.log.Debug("session discarded on shutdown", logx.Int64("requester", id))
	}
}

func (c *Controller) acquire(requesterID int64) (*slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sl, ok := c.sessions[requesterID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	if sl.busy {
		return nil, ErrSessionBusy
	}
	sl.busy = true
	return sl, nil
}

func (c *Controller) drop(requesterID int64) {
	c.mu.Lock()
	delete(c.sessions, requesterID)
	c.mu.Unlock()
}

func (c *Controller) createPost(ctx context.Context, rec *storage.Post) (string, error) {
	if c.store == nil {
		// No persistence configured; mint a process-local id.
		return fmt.Sprintf("local-%d", time.Now().UnixNano()), nil
	}
	return c.store.CreatePost(ctx, rec)
}

// updateStatus persists a lifecycle transition. Failures are logged and
// swallowed: persistence is observability, not a correctness dependency of
// the in-memory lifecycle.
func (c *Controller) updateStatus(ctx context.Context, id string, status storage.Status, outcomes map[string]storage.TargetOutcome) {
	if c.store == nil {
		return
	}
	if err := c.store.UpdatePostStatus(ctx, id, status, outcomes); err != nil {
		c.log.Warn("post status update failed",
			logx.String("post", id), logx.String("status", string(status)), logx.Err(err))
	}
}

// releaseAsset removes the downloaded media. Ownership passes here when
// the session ends; the file must never be read afterwards.
func (c *Controller) releaseAsset(asset publish.Asset) {
	if asset.Path == "" {
		return
	}
	if err := os.Remove(asset.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn("asset cleanup failed", logx.String("path", asset.Path), logx.Err(err))
	}
}

func (c *Controller) audit(requesterID int64, action, postID, detail string) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.store.AppendAudit(ctx, storage.AuditEntry{
		RequesterID: requesterID,
		Action:      action,
		PostID:      postID,
		Detail:      detail,
	}); err != nil {
		c.log.Debug("audit append failed", logx.Err(err))
	}
}
