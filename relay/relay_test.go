package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/quizflow/config"
	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/store"
)

func newTestRelay(t *testing.T, wait, interval time.Duration) (*Relay, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, config.RelayConfig{AgentWait: wait, PollInterval: interval}), s
}

func TestPostThenPoll(t *testing.T) {
	r, s := newTestRelay(t, time.Second, 10*time.Millisecond)
	ctx := context.Background()

	cmd, err := r.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, cmd)

	require.NoError(t, r.Post(ctx, "chat-1", CommandCollectTabs))

	status, err := s.GetStatus("chat-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status)

	cmd, err = r.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "chat-1", cmd.SessionID)
	assert.Equal(t, CommandCollectTabs, cmd.Command)

	// Claim removed the command.
	cmd, err = r.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestPost_OverwritesPrior(t *testing.T) {
	r, _ := newTestRelay(t, time.Second, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, r.Post(ctx, "chat-2", "stale"))
	require.NoError(t, r.Post(ctx, "chat-2", CommandCollectTabs))

	cmd, err := r.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, CommandCollectTabs, cmd.Command)

	cmd, err = r.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestAwaitTabs_ReceivesDelayedPush(t *testing.T) {
	r, _ := newTestRelay(t, time.Second, 10*time.Millisecond)
	ctx := context.Background()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = r.Push(ctx, &models.TabPush{
			SessionID: "chat-3",
			URLs:      []string{"https://www.coursera.org/learn/go/quiz/1"},
			Titles:    []string{"Quiz 1"},
		})
	}()

	push, ok, err := r.AwaitTabs(ctx, "chat-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"https://www.coursera.org/learn/go/quiz/1"}, push.URLs)
}

func TestAwaitTabs_TimesOutEmpty(t *testing.T) {
	r, _ := newTestRelay(t, 60*time.Millisecond, 10*time.Millisecond)

	start := time.Now()
	push, ok, err := r.AwaitTabs(context.Background(), "chat-4")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, push)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestAwaitTabs_ContextCancel(t *testing.T) {
	r, _ := newTestRelay(t, 10*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, ok, err := r.AwaitTabs(ctx, "chat-5")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwaitTabs_ConsumesPushOnce(t *testing.T) {
	r, _ := newTestRelay(t, 50*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, r.Push(ctx, &models.TabPush{SessionID: "chat-6", URLs: []string{"u"}, Titles: []string{"t"}}))

	_, ok, err := r.AwaitTabs(ctx, "chat-6")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = r.AwaitTabs(ctx, "chat-6")
	require.NoError(t, err)
	assert.False(t, ok)
}
