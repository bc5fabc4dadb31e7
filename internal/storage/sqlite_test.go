package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "crosspost/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, s)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenWithoutPathDisablesPersistence(t *testing.T) {
	t.Parallel()
	s, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestPostLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreatePost(ctx, &Post{
		RequesterID: 42,
		AssetName:   "clip.mp4",
		AssetSizeMB: 12.5,
		Caption:     "hello world",
		Targets:     []string{"Twitter", "Tumblr"},
		Status:      StatusCreated,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetPost(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusCreated, got.Status)
	require.Equal(t, []string{"Twitter", "Tumblr"}, got.Targets)
	require.Equal(t, "hello world", got.CaptionPreview)
	require.Empty(t, got.Outcomes)

	outcomes := map[string]TargetOutcome{
		"Twitter": {Status: OutcomeSuccess, CompletedAt: time.Now().UTC()},
		"Tumblr":  {Status: OutcomeFailed, Detail: "Tumblr: rejected: HTTP 500", CompletedAt: time.Now().UTC()},
	}
	require.NoError(t, s.UpdatePostStatus(ctx, id, StatusPartial, outcomes))

	got, err = s.GetPost(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, got.Status)
	require.Equal(t, OutcomeSuccess, got.Outcomes["Twitter"].Status)
	require.Equal(t, "Tumblr: rejected: HTTP 500", got.Outcomes["Tumblr"].Detail)
	require.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestGetPostNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.GetPost(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMissingPost(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	err := s.UpdatePostStatus(context.Background(), "nope", StatusCompleted, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecentPostsAndCount(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreatePost(ctx, &Post{RequesterID: 1, Caption: "c", Status: StatusCreated})
		require.NoError(t, err)
	}
	_, err := s.CreatePost(ctx, &Post{RequesterID: 2, Caption: "c", Status: StatusCreated})
	require.NoError(t, err)

	posts, err := s.RecentPosts(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	for _, p := range posts {
		require.EqualValues(t, 1, p.RequesterID)
	}

	n, err := s.CountPosts(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestPrefsRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	// Unknown requester gets the defaults.
	p, err := s.GetPrefs(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, DefaultPrefs(), p)

	p.MockMode = false
	p.AutoPublish = true
	p.PreferredTargets = []string{"Twitter", "Telegram"}
	require.NoError(t, s.PutPrefs(ctx, 9, p))

	got, err := s.GetPrefs(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, p, got)

	// Upsert: saving again overwrites.
	p.AutoPublish = false
	require.NoError(t, s.PutPrefs(ctx, 9, p))
	got, err = s.GetPrefs(ctx, 9)
	require.NoError(t, err)
	require.False(t, got.AutoPublish)
}

func TestStats(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.CreatePost(ctx, &Post{RequesterID: 1, Caption: "c", Status: StatusCreated})
	require.NoError(t, err)
	_, err = s.CreatePost(ctx, &Post{RequesterID: 1, Caption: "c", Status: StatusCreated})
	require.NoError(t, err)
	require.NoError(t, s.UpdatePostStatus(ctx, id1, StatusCompleted, nil))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.TotalPosts)
	require.Equal(t, 1, st.CompletedPosts)
}

func TestAuditAppend(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	err := s.AppendAudit(context.Background(), AuditEntry{
		RequesterID: 5,
		Action:      "session.begin",
		PostID:      "p1",
		Detail:      "targets=2 simulated=false",
	})
	require.NoError(t, err)
}

func TestPruneOld(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	idOld, err := s.CreatePost(ctx, &Post{RequesterID: 1, Caption: "c", Status: StatusCreated})
	require.NoError(t, err)
	require.NoError(t, s.UpdatePostStatus(ctx, idOld, StatusCompleted, nil))
	idLive, err := s.CreatePost(ctx, &Post{RequesterID: 1, Caption: "c", Status: StatusCreated})
	require.NoError(t, err)

	// Cutoff in the future: terminal posts go, the created one stays.
	removed, err := s.PruneOld(ctx, time.Now().Add(time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.GreaterOrEqual(t, removed, int64(1))

	_, err = s.GetPost(ctx, idOld)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetPost(ctx, idLive)
	require.NoError(t, err)
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()
	for _, s := range []Status{StatusCompleted, StatusPartial, StatusFailed, StatusCancelled} {
		require.True(t, s.Terminal(), "status %s", s)
	}
	for _, s := range []Status{StatusCreated, StatusProcessing} {
		require.False(t, s.Terminal(), "status %s", s)
	}
}

func TestCaptionPreview(t *testing.T) {
	t.Parallel()
	require.Equal(t, "short", CaptionPreview("short"))

	long := make([]rune, 150)
	for i := range long {
		long[i] = 'x'
	}
	got := CaptionPreview(string(long))
	require.Len(t, []rune(got), 103)
	require.Equal(t, "...", got[len(got)-3:])
}
