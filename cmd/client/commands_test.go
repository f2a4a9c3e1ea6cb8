package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/analytics"
	"github.com/SlpAus/commentator-ranking-backend/internal/client"
	"github.com/SlpAus/commentator-ranking-backend/internal/commentator"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/config"
	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
	"github.com/SlpAus/commentator-ranking-backend/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAPI struct {
	mu        sync.Mutex
	standings []commentator.Standing
	casts     int
	// fetchFailures 个拉取请求会失败
	fetchFailures int
}

type stubSubscription struct{ c chan vote.Notification }

func (s *stubSubscription) C() <-chan vote.Notification { return s.c }
func (s *stubSubscription) Close() error                { return nil }

func (a *stubAPI) CurrentUser(context.Context) (*user.User, error) {
	return &user.User{ID: "me", IsAnonymous: true}, nil
}

func (a *stubAPI) SignInAnonymously(context.Context) (*user.User, error) {
	return &user.User{ID: "me", IsAnonymous: true}, nil
}

func (a *stubAPI) FetchStandings(context.Context) ([]commentator.Standing, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetchFailures > 0 {
		a.fetchFailures--
		return nil, errors.New("503 Service Unavailable")
	}
	return append([]commentator.Standing(nil), a.standings...), nil
}

func (a *stubAPI) CastVote(context.Context, string, vote.Type) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.casts++
	return nil
}

func (a *stubAPI) update(fn func(*stubAPI)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

type recordingSink struct {
	mu     sync.Mutex
	names  []string
	events []map[string]any
}

func (r *recordingSink) Track(name, _ string, props map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.events = append(r.events, props)
}

// syncBuffer 允许后台goroutine写入、测试goroutine读取
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestEnv(t *testing.T, api client.API, sink analytics.Sink) *env {
	t.Helper()
	prev := cfg
	cfg = &config.Config{Client: config.ClientConfig{BaseURL: "https://example.com"}}
	t.Cleanup(func() { cfg = prev })

	store, err := client.OpenFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	e := &env{store: store, remote: api, sink: sink, services: lifecycle.NewManager()}
	t.Cleanup(e.Close)
	return e
}

func (a *stubAPI) Subscribe(context.Context) (client.Subscription, error) {
	return &stubSubscription{c: make(chan vote.Notification)}, nil
}

func TestPlay(t *testing.T) {
	api := &stubAPI{standings: []commentator.Standing{
		{ID: "a", Name: "Akash", IsActive: true},
		{ID: "r", Name: "Retired"},
	}}
	s := client.NewSession(api, client.Options{})
	require.NoError(t, s.Start(context.Background()))

	var out bytes.Buffer
	in := strings.NewReader("down a\nsideways a\nup r\nup nobody\nhello\nquit\ndown a\n")
	require.NoError(t, play(context.Background(), s, in, &out))

	assert.Equal(t, 1, api.casts)
	assert.Contains(t, out.String(), "▼")
	assert.Contains(t, out.String(), "已不可投票")
	assert.Contains(t, out.String(), `找不到解说员 "nobody"`)
	assert.Contains(t, out.String(), "格式:")
	assert.Equal(t, -1, s.Ranked()[0].VoteSum)
}

func TestPlay_Refresh(t *testing.T) {
	api := &stubAPI{standings: []commentator.Standing{{ID: "a", Name: "Akash", IsActive: true}}}
	s := client.NewSession(api, client.Options{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	api.update(func(a *stubAPI) {
		a.standings[0].VoteSum = -7
		a.fetchFailures = 1
	})

	var out bytes.Buffer
	require.NoError(t, play(context.Background(), s, strings.NewReader("refresh\n"), &out))
	assert.Contains(t, out.String(), "刷新失败")
	assert.Equal(t, client.StateError, s.Snapshot().State)

	out.Reset()
	require.NoError(t, play(context.Background(), s, strings.NewReader("refresh\n"), &out))
	assert.NotContains(t, out.String(), "刷新失败")
	assert.Equal(t, client.StateReady, s.Snapshot().State)
	assert.Equal(t, -7, s.Ranked()[0].VoteSum)
}

func TestWatch_RetriesAfterFetchError(t *testing.T) {
	prev := watchRetryDelay
	watchRetryDelay = time.Millisecond
	t.Cleanup(func() { watchRetryDelay = prev })

	api := &stubAPI{
		standings:     []commentator.Standing{{ID: "a", Name: "Akash", IsActive: true}},
		fetchFailures: 2,
	}
	changes := make(chan struct{}, 1)
	s := client.NewSession(api, client.Options{OnChange: func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()
	require.Equal(t, client.StateError, s.Snapshot().State)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out, errOut syncBuffer
	done := make(chan error, 1)
	go func() { done <- watch(ctx, s, changes, &out, &errOut) }()

	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "Akash") }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, errOut.String(), "刷新失败")
	assert.Equal(t, client.StateReady, s.Snapshot().State)

	cancel()
	require.NoError(t, <-done)
}

func TestVoteReachesAnalyticsSink(t *testing.T) {
	api := &stubAPI{standings: []commentator.Standing{{ID: "a", Name: "Akash", IsActive: true}}}
	sink := &recordingSink{}
	e := newTestEnv(t, api, sink)
	ctx := context.Background()

	s, err := e.newSession(ctx, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, castAndReport(ctx, s, "a", vote.Down))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, []string{analytics.EventVoteCast}, sink.names)
	assert.Equal(t, "a", sink.events[0]["commentatorId"])
	assert.Equal(t, "Akash", sink.events[0]["commentatorName"])
	assert.Equal(t, "downvote", sink.events[0]["voteType"])
}

func TestEnvClose_StopsBackgroundServices(t *testing.T) {
	e := newTestEnv(t, &stubAPI{}, analytics.Noop{})
	stopped := make(chan struct{})
	require.NoError(t, e.services.Go("analytics", func(h *lifecycle.Handle) {
		defer h.Close()
		<-h.Done()
		close(stopped)
	}))

	e.Close()
	select {
	case <-stopped:
	default:
		t.Fatal("background service still running after Close")
	}
}

func TestPrintRanking(t *testing.T) {
	var out bytes.Buffer
	printRanking(&out, commentator.Rank([]commentator.Standing{
		{ID: "b", Name: "Bhogle", IsActive: true, VoteSum: 2, TotalVotes: 2},
		{ID: "a", Name: "Akash", IsActive: true, VoteSum: -1, TotalVotes: 1, UserVote: vote.Down},
		{ID: "r", Name: "Retired", VoteSum: -9, TotalVotes: 9},
	}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "1"))
	assert.Contains(t, lines[1], "Akash")
	assert.Contains(t, lines[2], "Bhogle")
	assert.True(t, strings.HasPrefix(lines[3], "-"))
}

func TestPrintSharePrompt(t *testing.T) {
	var out bytes.Buffer
	printSharePrompt(&out, "https://example.com")
	assert.Contains(t, out.String(), "https://twitter.com/intent/tweet?")
	assert.Contains(t, out.String(), "https://wa.me/?")
}
