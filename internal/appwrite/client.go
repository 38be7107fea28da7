// Package appwrite はAppwrite v1 REST APIのクライアントを提供する。
// アカウント・チーム・ストレージの各APIから利用する共通部分をまとめる。
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

const responseFormat = "1.6.0"

// Config はクライアントの接続設定。
type Config struct {
	Endpoint  string // 例: https://cloud.appwrite.io/v1
	ProjectID string
	// APIKey はサーバー権限の呼び出しに使う。ブラウザセッション用のクライアントでは空にする。
	APIKey  string
	Timeout time.Duration
}

// Client はAppwrite REST APIのクライアント。
// セッションを保持する場合はブラウザごとに1インスタンスを生成する。
type Client struct {
	endpoint   string
	projectID  string
	apiKey     string
	httpClient *http.Client
	jar        *sessionJar

	mu      sync.RWMutex
	session string
}

// NewClient はClientを生成する。
// レスポンスのセッションCookieを保持するためにCookieJarを設定する。
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	jar := newSessionJar()
	return &Client{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		projectID: cfg.ProjectID,
		apiKey:    cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		jar: jar,
	}
}

// Endpoint はAPIのベースURLを返す。
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ProjectID はプロジェクトIDを返す。
func (c *Client) ProjectID() string {
	return c.projectID
}

// Session は現在保持しているセッションシークレットを返す。
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession はセッションシークレットを設定する。空文字でクリアする。
func (c *Client) SetSession(secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = secret
	if secret == "" {
		c.jar.reset()
	}
}

// sessionJar は中身を差し替えられるCookieJar。
// http.ClientのJarフィールドは書き換えず、送信中のリクエストと競合させない。
type sessionJar struct {
	mu  sync.Mutex
	jar *cookiejar.Jar
}

func newSessionJar() *sessionJar {
	j := &sessionJar{}
	j.reset()
	return j
}

// reset は保持しているCookieをすべて破棄する。
func (j *sessionJar) reset() {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	jar := j.jar
	j.mu.Unlock()
	jar.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	jar := j.jar
	j.mu.Unlock()
	return jar.Cookies(u)
}

// compile-time interface check
var _ http.CookieJar = (*sessionJar)(nil)

// Call はJSONリクエストを送信し、成功時はレスポンスをoutへデコードする。
// GETとDELETEではparamsをクエリ文字列に、それ以外はJSONボディに設定する。
// 2xx以外のレスポンスは*Errorとして返す。
func (c *Client) Call(ctx context.Context, method, path string, params map[string]any, out any) error {
	target := c.endpoint + path

	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if q := encodeQuery(params); q != "" {
			target += "?" + q
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

// send は共通ヘッダーを付与してリクエストを送信する。
func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("X-Appwrite-Project", c.projectID)
	req.Header.Set("X-Appwrite-Response-Format", responseFormat)
	if c.apiKey != "" {
		req.Header.Set("X-Appwrite-Key", c.apiKey)
	}
	if s := c.Session(); s != "" {
		req.Header.Set("X-Appwrite-Session", s)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("appwrite request failed: %w", err)
	}
	defer resp.Body.Close()

	c.captureSession(resp)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read appwrite response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse appwrite response: %w", err)
	}
	return nil
}

// captureSession はレスポンスのセッションCookieからシークレットを取り出す。
func (c *Client) captureSession(resp *http.Response) {
	name := "a_session_" + strings.ToLower(c.projectID)
	for _, ck := range resp.Cookies() {
		if ck.Name != name {
			continue
		}
		if ck.MaxAge < 0 || ck.Value == "" || ck.Value == "deleted" {
			c.mu.Lock()
			c.session = ""
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		c.session = ck.Value
		c.mu.Unlock()
		return
	}
}

// encodeQuery はパラメータをAppwrite形式のクエリ文字列に変換する。
// スライスは key[]=v1&key[]=v2 の形式で展開する。
func encodeQuery(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range params {
		switch tv := v.(type) {
		case []string:
			for _, s := range tv {
				values.Add(k+"[]", s)
			}
		case string:
			values.Set(k, tv)
		default:
			values.Set(k, fmt.Sprint(tv))
		}
	}
	return values.Encode()
}
