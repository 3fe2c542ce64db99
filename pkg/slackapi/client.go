// Package slackapi is the transport layer: it talks HTTP and a websocket to
// Slack's edge and knows nothing about IRC. Everything here is plain data in
// and plain data out.
package slackapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/slackirc/bridge/pkg/bridgeerr"
)

const apiBaseURL = "https://slack.com/api"

// Client is a thin wrapper around Slack's Web API: form-encoded POSTs,
// bearer token auth, an optional session cookie for xoxc- tokens, and a
// client-side rate limiter so a burst of outgoing IRC traffic doesn't trip
// Slack's own limiter before it trips ours.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	token      string
	cookie     string // xoxd- session cookie, required alongside an xoxc- token
	baseURL    string
}

// apiResponse is the envelope every Slack Web API method returns.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CallError reports a non-ok Slack API response.
type CallError struct {
	Method string
	Code   string // Slack's machine-readable error string, e.g. "channel_not_found"
}

func (e *CallError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

// Option customizes a Client at construction time. Tests use it to point a
// Client at an httptest.Server instead of the real Slack edge.
type Option func(*Client)

// WithBaseURL overrides the Slack Web API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a Client. cookie may be empty for a bot token (xoxb-);
// it is required for a browser session token (xoxc-).
func NewClient(token, cookie string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(1), 3),
		token:      token,
		cookie:     cookie,
		baseURL:    apiBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// maxRetryAfter bounds how long Call waits on a 429 even when Slack's
// Retry-After header asks for longer, so one rate-limited call can't stall
// the bridge's single event loop indefinitely.
const maxRetryAfter = 30 * time.Second

// retryAfterDelay reads the Retry-After header (seconds, per RFC 7231) off
// a 429 response and bounds it. A missing or unparseable header falls back
// to a conservative default.
func retryAfterDelay(header http.Header) time.Duration {
	secs, err := strconv.Atoi(header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 2 * time.Second
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// Call invokes a Slack Web API method with form-encoded params and decodes
// the JSON response into out. It retries once on a 429, honoring
// Retry-After, before giving up.
func (c *Client) Call(ctx context.Context, method string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "rate limiter wait", err)
	}

	body, status, header, err := c.post(ctx, method, params)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "slack api "+method, err)
	}

	if status == http.StatusTooManyRequests {
		delay := retryAfterDelay(header)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "rate limited", ctx.Err())
		}
		body, status, _, err = c.post(ctx, method, params)
		if err != nil {
			return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "slack api "+method+" retry", err)
		}
	}

	if status >= 500 {
		return bridgeerr.New(bridgeerr.KindTransportTransient, fmt.Sprintf("slack api %s: status %d", method, status))
	}

	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindMalformedEvent, "decode "+method+" envelope", err)
	}
	if !env.OK {
		return &CallError{Method: method, Code: env.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindMalformedEvent, "decode "+method+" result", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, params url.Values) ([]byte, int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.cookie != "" {
		req.Header.Set("Cookie", "d="+c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, resp.Header, err
	}
	return data, resp.StatusCode, resp.Header, nil
}

// AuthTest validates the token/cookie pair and identifies the self user,
// per spec.md §4.6's CONNECTING→SYNCING transition ("Slack rtm.connect
// ok") — called once up front so a bad token surfaces as a Config/Auth
// error immediately rather than as an endless transient-retry loop inside
// the RTM reconnect backoff.
func (c *Client) AuthTest(ctx context.Context) (userID, user string, err error) {
	var out struct {
		apiResponse
		UserID string `json:"user_id"`
		User   string `json:"user"`
	}
	if err := c.Call(ctx, "auth.test", url.Values{}, &out); err != nil {
		return "", "", err
	}
	return out.UserID, out.User, nil
}

// RTMConnectURL fetches a fresh websocket URL via rtm.connect.
func (c *Client) RTMConnectURL(ctx context.Context) (string, error) {
	var out struct {
		apiResponse
		URL string `json:"url"`
	}
	if err := c.Call(ctx, "rtm.connect", url.Values{}, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// PostMessage sends text to a channel, optionally as a thread reply.
func (c *Client) PostMessage(ctx context.Context, channel, text, threadTS string) (ts string, err error) {
	params := url.Values{"channel": {channel}, "text": {text}}
	if threadTS != "" {
		params.Set("thread_ts", threadTS)
	}
	var out struct {
		apiResponse
		Ts string `json:"ts"`
	}
	if err := c.Call(ctx, "chat.postMessage", params, &out); err != nil {
		return "", err
	}
	return out.Ts, nil
}

// UploadFile uploads content to a channel via the files.upload endpoint,
// multipart-encoded per spec.md §4.1 ("Multipart is used for file uploads").
func (c *Client) UploadFile(ctx context.Context, channel, filename string, content []byte, comment string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("channels", channel); err != nil {
		return fmt.Errorf("write channels field: %w", err)
	}
	if comment != "" {
		if err := w.WriteField("initial_comment", comment); err != nil {
			return fmt.Errorf("write comment field: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write file content: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "rate limiter wait", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files.upload", &body)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "build upload request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.cookie != "" {
		req.Header.Set("Cookie", "d="+c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "files.upload", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "read upload response", err)
	}

	var env apiResponse
	if err := json.Unmarshal(data, &env); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindMalformedEvent, "decode files.upload envelope", err)
	}
	if !env.OK {
		return &CallError{Method: "files.upload", Code: env.Error}
	}
	return nil
}

// History fetches the most recent messages in a channel.
func (c *Client) History(ctx context.Context, channel string, limit int, oldest string) ([]Message, bool, error) {
	params := url.Values{"channel": {channel}, "limit": {strconv.Itoa(limit)}}
	if oldest != "" {
		params.Set("oldest", oldest)
	}
	var out struct {
		apiResponse
		Messages []Message `json:"messages"`
		HasMore  bool      `json:"has_more"`
	}
	if err := c.Call(ctx, "conversations.history", params, &out); err != nil {
		return nil, false, err
	}
	return out.Messages, out.HasMore, nil
}

// ConversationsList enumerates every channel, group, and DM the token can see.
func (c *Client) ConversationsList(ctx context.Context) ([]Channel, error) {
	params := url.Values{"types": {"public_channel,private_channel,mpim,im"}, "limit": {"1000"}}
	var out struct {
		apiResponse
		Channels []Channel `json:"channels"`
	}
	if err := c.Call(ctx, "conversations.list", params, &out); err != nil {
		return nil, err
	}
	return out.Channels, nil
}

// UsersList enumerates every user in the workspace.
func (c *Client) UsersList(ctx context.Context) ([]User, error) {
	params := url.Values{"limit": {"1000"}}
	var out struct {
		apiResponse
		Members []User `json:"members"`
	}
	if err := c.Call(ctx, "users.list", params, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// React adds an emoji reaction to a message. A response whose error string
// indicates the reaction already exists is treated as success, matching the
// bridge's own idempotent re-application of rules on reconnect.
func (c *Client) React(ctx context.Context, channel, ts, emojiName string) error {
	params := url.Values{"channel": {channel}, "timestamp": {ts}, "name": {emojiName}}
	err := c.Call(ctx, "reactions.add", params, nil)
	if err == nil {
		return nil
	}
	var callErr *CallError
	if ok := asCallError(err, &callErr); ok && isAlreadyReacted(callErr.Code) {
		return nil
	}
	return err
}

func asCallError(err error, target **CallError) bool {
	ce, ok := err.(*CallError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

func isAlreadyReacted(code string) bool {
	lower := strings.ToLower(code)
	return strings.Contains(lower, "already") || strings.Contains(lower, "react") ||
		strings.Contains(lower, "duplicate")
}

// MarkRead advances the read cursor for a channel.
func (c *Client) MarkRead(ctx context.Context, channel, ts string) error {
	params := url.Values{"channel": {channel}, "ts": {ts}}
	return c.Call(ctx, "conversations.mark", params, nil)
}

// JoinConversation joins the given channel/group. Already-joined is treated
// as success: the method is used to make local and Slack-side membership
// agree, not to detect whether a join actually changed anything.
func (c *Client) JoinConversation(ctx context.Context, channel string) error {
	params := url.Values{"channel": {channel}}
	err := c.Call(ctx, "conversations.join", params, nil)
	if err == nil {
		return nil
	}
	var callErr *CallError
	if ok := asCallError(err, &callErr); ok && strings.Contains(strings.ToLower(callErr.Code), "already") {
		return nil
	}
	return err
}

// LeaveConversation leaves the given channel/group, idempotently.
func (c *Client) LeaveConversation(ctx context.Context, channel string) error {
	params := url.Values{"channel": {channel}}
	err := c.Call(ctx, "conversations.leave", params, nil)
	if err == nil {
		return nil
	}
	var callErr *CallError
	if ok := asCallError(err, &callErr); ok && strings.Contains(strings.ToLower(callErr.Code), "not_in_channel") {
		return nil
	}
	return err
}

// SetTopic sets a channel's topic.
func (c *Client) SetTopic(ctx context.Context, channel, topic string) error {
	params := url.Values{"channel": {channel}, "topic": {topic}}
	return c.Call(ctx, "conversations.setTopic", params, nil)
}

// Typing sends a fire-and-forget typing indicator. The RTM "typing" frame
// has no REST equivalent in modern Slack; this posts through the
// conversations.typing call for workspaces that still honor it, and callers are
// expected to ignore its error per spec.md §4.4 ("fire-and-forget").
func (c *Client) Typing(ctx context.Context, channel string) {
	params := url.Values{"channel": {channel}}
	_ = c.Call(ctx, "conversations.typing", params, nil)
}

// Invite adds a user to a channel.
func (c *Client) Invite(ctx context.Context, channel, userID string) error {
	params := url.Values{"channel": {channel}, "users": {userID}}
	return c.Call(ctx, "conversations.invite", params, nil)
}

// Kick removes a user from a channel.
func (c *Client) Kick(ctx context.Context, channel, userID string) error {
	params := url.Values{"channel": {channel}, "user": {userID}}
	return c.Call(ctx, "conversations.kick", params, nil)
}
