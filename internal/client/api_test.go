package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/commentator"
	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCookies struct {
	value string
}

func (m *memoryCookies) SessionCookie() string { return m.value }

func (m *memoryCookies) SetSessionCookie(v string) error {
	m.value = v
	return nil
}

// newTestServer 提供与真实服务端相同路径和响应结构的最小实现
func newTestServer(t *testing.T, notifier vote.Notifier) (*httptest.Server, *[]vote.VoteRequestBody) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var votes []vote.VoteRequestBody

	r.POST("/api/auth/anonymous", func(c *gin.Context) {
		c.SetCookie(user.SessionName, "session-1", 3600, "/", "", false, true)
		c.JSON(http.StatusCreated, user.UserResponse{User: &user.User{ID: "u-1", IsAnonymous: true}})
	})
	r.GET("/api/auth/user", func(c *gin.Context) {
		cookie, err := c.Cookie(user.SessionName)
		if err != nil || cookie != "session-1" {
			c.JSON(http.StatusOK, user.UserResponse{})
			return
		}
		c.JSON(http.StatusOK, user.UserResponse{User: &user.User{ID: "u-1", IsAnonymous: true}})
	})
	r.GET("/api/commentators", func(c *gin.Context) {
		c.JSON(http.StatusOK, commentator.ListResponse{Commentators: []commentator.Standing{
			{ID: "A", Name: "Akash", IsActive: true, VoteSum: -2, TotalVotes: 3, UserVote: vote.Down},
		}})
	})
	r.POST("/api/votes", func(c *gin.Context) {
		var body vote.VoteRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if body.CommentatorID == "retired" {
			c.JSON(http.StatusConflict, gin.H{"error": vote.ErrCommentatorInactive.Error()})
			return
		}
		votes = append(votes, body)
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	if notifier != nil {
		h := vote.NewHandler(nil, notifier, make(chan struct{}))
		r.GET("/api/votes/stream", h.Stream)
	}

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &votes
}

func TestHTTPClient_SessionCookiePersists(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	cookies := &memoryCookies{}
	ctx := context.Background()

	c, err := NewHTTPClient(srv.URL, cookies)
	require.NoError(t, err)

	u, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = c.SignInAnonymously(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "session-1", cookies.value)

	// 新的客户端从保存的cookie恢复身份
	again, err := NewHTTPClient(srv.URL+"/", cookies)
	require.NoError(t, err)
	u, err = again.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u-1", u.ID)
}

func TestHTTPClient_FetchAndVote(t *testing.T) {
	srv, votes := newTestServer(t, nil)
	ctx := context.Background()

	c, err := NewHTTPClient(srv.URL, nil)
	require.NoError(t, err)

	standings, err := c.FetchStandings(ctx)
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.Equal(t, vote.Down, standings[0].UserVote)
	assert.Equal(t, -2, standings[0].VoteSum)

	require.NoError(t, c.CastVote(ctx, "A", vote.Up))
	require.Len(t, *votes, 1)
	assert.Equal(t, vote.VoteRequestBody{CommentatorID: "A", VoteType: vote.Up}, (*votes)[0])

	err = c.CastVote(ctx, "retired", vote.Up)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.Code)
	assert.Equal(t, vote.ErrCommentatorInactive.Error(), statusErr.Message)
}

func TestHTTPClient_Subscribe(t *testing.T) {
	notifier := vote.NewLocalNotifier()
	srv, _ := newTestServer(t, notifier)

	c, err := NewHTTPClient(srv.URL, nil)
	require.NoError(t, err)

	sub, err := c.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	// Subscribe 在 ready 之后返回，此时服务端订阅已经建立
	require.Eventually(t, func() bool { return notifier.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	want := vote.Notification{UserID: "u-2", CommentatorID: "A", VoteType: vote.Down}
	require.NoError(t, notifier.Publish(context.Background(), want))

	select {
	case got := <-sub.C():
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("没有收到投票广播")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	for range sub.C() {
	}
}

func newStreamSubscription() *streamSubscription {
	return &streamSubscription{
		c:      make(chan vote.Notification, 8),
		cancel: func() {},
		body:   io.NopCloser(nil),
		done:   make(chan struct{}),
	}
}

func TestStreamSubscription_ParsesEvents(t *testing.T) {
	stream := ": comment\n\nevent:ready\ndata:{}\n\n" +
		"event: ping\ndata: 1700000000\n\n" +
		"event: vote_update\r\ndata: {\"user_id\":\"u-2\",\"commentator_id\":\"A\",\"vote_type\":-1}\r\n\r\n" +
		"event: vote_update\ndata: not-json\n\n" +
		"data:line1\ndata:line2\n\n"

	sub := newStreamSubscription()
	ready := make(chan error, 1)
	sub.run(strings.NewReader(stream), ready)

	require.NoError(t, <-ready)

	var got []vote.Notification
	for n := range sub.C() {
		got = append(got, n)
	}
	assert.Equal(t, []vote.Notification{{UserID: "u-2", CommentatorID: "A", VoteType: vote.Down}}, got)
}

func TestStreamSubscription_RejectsMissingReady(t *testing.T) {
	sub := newStreamSubscription()
	ready := make(chan error, 1)
	sub.run(strings.NewReader("event: vote_update\ndata: {}\n\n"), ready)

	err := <-ready
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vote_update")
}

func TestStreamSubscription_EmptyStream(t *testing.T) {
	sub := newStreamSubscription()
	ready := make(chan error, 1)
	sub.run(strings.NewReader(""), ready)

	assert.ErrorIs(t, <-ready, io.ErrUnexpectedEOF)
	_, open := <-sub.C()
	assert.False(t, open)
}
