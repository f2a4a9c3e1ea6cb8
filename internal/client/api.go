package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/commentator"
	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
	sse "github.com/tmaxmax/go-sse"
)

// Subscription 是一次远端变更订阅，Close 必须可以重复调用
type Subscription interface {
	C() <-chan vote.Notification
	Close() error
}

// API 是客户端会话依赖的后端操作
type API interface {
	CurrentUser(ctx context.Context) (*user.User, error)
	SignInAnonymously(ctx context.Context) (*user.User, error)
	FetchStandings(ctx context.Context) ([]commentator.Standing, error)
	CastVote(ctx context.Context, commentatorID string, voteType vote.Type) error
	Subscribe(ctx context.Context) (Subscription, error)
}

// StatusError 是服务端返回的非2xx响应
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

// CookieStore 持久化会话cookie，使多次命令行调用共享同一个身份
type CookieStore interface {
	SessionCookie() string
	SetSessionCookie(v string) error
}

// HTTPClient 通过服务端的HTTP接口实现 API。
// 整个进程只创建一个，所有请求复用同一个连接池和cookie。
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	stream  *http.Client
	cookies CookieStore
}

// NewHTTPClient 创建客户端。cookies 可以为 nil，此时会话只在进程内有效。
func NewHTTPClient(baseURL string, cookies CookieStore) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("服务地址无效: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if cookies != nil {
		if v := cookies.SessionCookie(); v != "" {
			jar.SetCookies(u, []*http.Cookie{{Name: user.SessionName, Value: v, Path: "/"}})
		}
	}

	return &HTTPClient{
		baseURL: u,
		http:    &http.Client{Jar: jar, Timeout: 10 * time.Second},
		// 事件流是长连接，不能设置整体超时
		stream:  &http.Client{Jar: jar},
		cookies: cookies,
	}, nil
}

func (c *HTTPClient) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *HTTPClient) persistCookie() {
	if c.cookies == nil {
		return
	}
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		if ck.Name == user.SessionName {
			_ = c.cookies.SetSessionCookie(ck.Value)
			return
		}
	}
	_ = c.cookies.SetSessionCookie("")
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.persistCookie()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) CurrentUser(ctx context.Context) (*user.User, error) {
	var resp user.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/user", nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *HTTPClient) SignInAnonymously(ctx context.Context) (*user.User, error) {
	var resp user.UserResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/anonymous", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errors.New("匿名登录没有返回用户")
	}
	return resp.User, nil
}

// ClaimDisplayName 认领显示名，使当前会话成为具名会话
func (c *HTTPClient) ClaimDisplayName(ctx context.Context, name string) (*user.User, error) {
	var resp user.UserResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/name", user.ClaimNameRequestBody{DisplayName: name}, &resp)
	return resp.User, err
}

// SignOut 结束当前会话
func (c *HTTPClient) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/signout", nil, nil)
}

func (c *HTTPClient) FetchStandings(ctx context.Context) ([]commentator.Standing, error) {
	var resp commentator.ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/commentators", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commentators, nil
}

func (c *HTTPClient) CastVote(ctx context.Context, commentatorID string, voteType vote.Type) error {
	body := vote.VoteRequestBody{CommentatorID: commentatorID, VoteType: voteType}
	return c.do(ctx, http.MethodPost, "/api/votes", body, nil)
}

// Subscribe 连接服务端的事件流，在收到 ready 事件之后返回
func (c *HTTPClient) Subscribe(ctx context.Context) (Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.endpoint("/api/votes/stream"), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("连接事件流失败: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	sub := &streamSubscription{
		c:      make(chan vote.Notification, 64),
		cancel: cancel,
		body:   resp.Body,
		done:   make(chan struct{}),
	}
	ready := make(chan error, 1)
	go sub.run(resp.Body, ready)

	select {
	case err = <-ready:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("等待事件流就绪失败: %w", err)
	}
	return sub, nil
}

// --- 事件流 ---

// readyEvent 是服务端在订阅生效后发送的第一个事件
const readyEvent = "ready"

type streamSubscription struct {
	c      chan vote.Notification
	cancel context.CancelFunc
	body   io.Closer
	done   chan struct{}
	once   sync.Once
}

// run 解析事件流，首个事件的结果通过 ready 报告一次
func (s *streamSubscription) run(r io.Reader, ready chan<- error) {
	defer close(s.c)
	started := false
	fail := func(err error) {
		if !started {
			started = true
			ready <- err
		}
	}

	for ev, err := range sse.Read(r, nil) {
		if err != nil {
			fail(err)
			return
		}
		if !started {
			if ev.Type != readyEvent {
				fail(fmt.Errorf("事件流首个事件为 %q", ev.Type))
				return
			}
			started = true
			ready <- nil
			continue
		}
		if ev.Type != vote.EventName {
			continue
		}
		var n vote.Notification
		if err := json.Unmarshal([]byte(ev.Data), &n); err != nil {
			continue
		}
		select {
		case s.c <- n:
		case <-s.done:
			return
		}
	}
	fail(io.ErrUnexpectedEOF)
}

func (s *streamSubscription) C() <-chan vote.Notification {
	return s.c
}

func (s *streamSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		s.body.Close()
	})
	return nil
}
