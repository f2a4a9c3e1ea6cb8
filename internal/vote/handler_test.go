package vote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/metrics"
	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, asUser string) (*gin.Engine, *LocalNotifier, *Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newTestStore(t)
	notifier := NewLocalNotifier()
	svc := NewService(store, fakeLookup{"c1": true, "off": false}, notifier, nil)
	h := NewHandler(svc, notifier, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if asUser != "" {
			c.Set(user.ContextKey, &user.User{ID: asUser, IsAnonymous: true})
		}
	})
	r.POST("/votes", h.SubmitVote)
	r.GET("/votes/stream", h.Stream)
	return r, notifier, store
}

func postVote(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/votes", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_SubmitVote(t *testing.T) {
	r, _, store := newTestHandler(t, "u1")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "upvote", body: `{"commentator_id":"c1","vote_type":1}`, status: http.StatusOK},
		{name: "flip", body: `{"commentator_id":"c1","vote_type":-1}`, status: http.StatusOK},
		{name: "bad json", body: `{`, status: http.StatusBadRequest},
		{name: "missing commentator", body: `{"vote_type":1}`, status: http.StatusBadRequest},
		{name: "zero vote", body: `{"commentator_id":"c1","vote_type":0}`, status: http.StatusBadRequest},
		{name: "unknown", body: `{"commentator_id":"nope","vote_type":1}`, status: http.StatusNotFound},
		{name: "inactive", body: `{"commentator_id":"off","vote_type":1}`, status: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postVote(r, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	v, err := getVote(store, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, Down, v.VoteType)
}

func TestHandler_SubmitVoteRequiresUser(t *testing.T) {
	r, _, _ := newTestHandler(t, "")

	w := postVote(r, `{"commentator_id":"c1","vote_type":1}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_SubmitVoteResponse(t *testing.T) {
	r, _, _ := newTestHandler(t, "u7")

	w := postVote(r, `{"commentator_id":"c1","vote_type":-1}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp VoteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Created)
	assert.Equal(t, Notification{UserID: "u7", CommentatorID: "c1", VoteType: Down}, resp.Vote)
}

func TestHandler_StreamRelaysNotifications(t *testing.T) {
	r, notifier, _ := newTestHandler(t, "")
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/votes/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", strings.Split(resp.Header.Get("Content-Type"), ";")[0])

	assert.Eventually(t, func() bool { return notifier.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	want := Notification{UserID: "u9", CommentatorID: "c1", VoteType: Up}
	require.NoError(t, notifier.Publish(ctx, want))

	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") && event == EventName {
			var got Notification
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &got))
			assert.Equal(t, want, got)
			return
		}
	}
	t.Fatalf("stream ended without vote_update: %v", scanner.Err())
}

func TestHandler_StreamTracksSubscriberGauge(t *testing.T) {
	r, notifier, _ := newTestHandler(t, "")
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/votes/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.StreamSubscribers) == 1 && notifier.Subscribers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	resp.Body.Close()
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.StreamSubscribers) == 0 && notifier.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
