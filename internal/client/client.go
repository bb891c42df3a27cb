// Package client は学生レコードAPIの型付きHTTPクライアントを提供する。
// 失敗はすべて*AppErrorに正規化され、表示可能なメッセージを持つ。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL はAPIのデフォルトのベースURL。
const DefaultBaseURL = "http://localhost:3001/api"

// デフォルトのエラーメッセージ
const (
	msgNotFound     = "Mahasiswa not found"
	msgCreateFailed = "Error creating mahasiswa"
	msgUpdateFailed = "Error updating mahasiswa"
	msgNetwork      = "Network error: unable to reach the server"
)

// maxResponseBytes はレスポンスボディの読み込み上限。
const maxResponseBytes = 10 << 20

// Mahasiswa はAPIが返す学生レコード。
type Mahasiswa struct {
	ID        int64     `json:"id"`
	NIM       string    `json:"nim"`
	Nama      string    `json:"nama"`
	Prodi     string    `json:"prodi"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input は作成・更新リクエストのボディ。
type Input struct {
	NIM   string `json:"nim"`
	Nama  string `json:"nama"`
	Prodi string `json:"prodi"`
}

// Health はライブネスエンドポイントのレスポンス。
type Health struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// envelope はAPIレスポンスの共通フォーマット。
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// hasData はdataフィールドが存在しnullでないかを返す。
func (e *envelope) hasData() bool {
	return len(e.Data) > 0 && !bytes.Equal(e.Data, []byte("null"))
}

// AppError はクライアント操作の失敗を表す。
// Messageはそのまま利用者に表示できる文言。StatusCodeはHTTP応答がなかった場合0。
type AppError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap は元のエラーを返す。
func (e *AppError) Unwrap() error {
	return e.Err
}

// MessageOf はerrが*AppErrorであればそのMessageを、そうでなければfallbackを返す。
func MessageOf(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

// Client は学生レコードAPIのクライアント。
// 再試行は行わず、失敗は一度だけ呼び出し元に返す。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option はClientの任意設定。
type Option func(*Client)

// WithHTTPClient は使用するhttp.Clientを設定する。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New は新しいClientを生成する。baseURLが空の場合はDefaultBaseURLを使う。
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL は設定されているベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// List は全学生レコードを返す。dataがない場合は空のスライスを返す。
func (c *Client) List(ctx context.Context) ([]Mahasiswa, error) {
	env, err := c.do(ctx, http.MethodGet, "/mahasiswa", nil)
	if err != nil {
		return nil, err
	}
	students := []Mahasiswa{}
	if env.hasData() {
		if err := json.Unmarshal(env.Data, &students); err != nil {
			return nil, decodeError(err)
		}
	}
	return students, nil
}

// Get は指定IDの学生レコードを返す。
func (c *Client) Get(ctx context.Context, id int64) (*Mahasiswa, error) {
	env, err := c.do(ctx, http.MethodGet, studentPath(id), nil)
	if err != nil {
		return nil, err
	}
	return unwrapStudent(env, msgNotFound, false)
}

// Create は学生レコードを作成する。
func (c *Client) Create(ctx context.Context, input Input) (*Mahasiswa, error) {
	env, err := c.do(ctx, http.MethodPost, "/mahasiswa", input)
	if err != nil {
		return nil, err
	}
	return unwrapStudent(env, msgCreateFailed, true)
}

// Update は学生レコードを更新する。
func (c *Client) Update(ctx context.Context, id int64, input Input) (*Mahasiswa, error) {
	env, err := c.do(ctx, http.MethodPut, studentPath(id), input)
	if err != nil {
		return nil, err
	}
	return unwrapStudent(env, msgUpdateFailed, true)
}

// Delete は学生レコードを削除する。
func (c *Client) Delete(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, studentPath(id), nil)
	return err
}

// Programs は選択可能なプログラムスタディの一覧を返す。
func (c *Client) Programs(ctx context.Context) ([]string, error) {
	env, err := c.do(ctx, http.MethodGet, "/prodi", nil)
	if err != nil {
		return nil, err
	}
	programs := []string{}
	if env.hasData() {
		if err := json.Unmarshal(env.Data, &programs); err != nil {
			return nil, decodeError(err)
		}
	}
	return programs, nil
}

// Health はライブネスエンドポイントを呼び出す。
// サーバーが応答しsuccess=trueを返した場合のみnilエラーとなる。
func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, err := c.send(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &AppError{StatusCode: resp.StatusCode, Message: msgNetwork, Err: err}
	}

	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, &AppError{StatusCode: resp.StatusCode, Message: msgNetwork, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !h.Success {
		return nil, &AppError{StatusCode: resp.StatusCode, Message: fallback(h.Message, msgNetwork)}
	}
	return &h, nil
}

// do はリクエストを送信しエンベロープを返す。
// 2xx以外の応答ではサーバーのmessageを優先したAppErrorを返す。
func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &AppError{StatusCode: resp.StatusCode, Message: msgNetwork, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("Request failed with status code %d", resp.StatusCode)
		}
		return nil, &AppError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, decodeError(decodeErr)
	}
	return &env, nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, &AppError{Message: "Invalid request", Err: err}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &AppError{Message: "Invalid request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AppError{Message: msgNetwork, Err: err}
	}
	return resp, nil
}

// unwrapStudent はdataから学生レコードを取り出す。
// dataがない場合、preferMessageがtrueならエンベロープのmessageを、そうでなければdefaultMsgを使う。
func unwrapStudent(env *envelope, defaultMsg string, preferMessage bool) (*Mahasiswa, error) {
	if !env.hasData() {
		msg := defaultMsg
		if preferMessage {
			msg = fallback(env.Message, defaultMsg)
		}
		return nil, &AppError{StatusCode: http.StatusOK, Message: msg}
	}
	var st Mahasiswa
	if err := json.Unmarshal(env.Data, &st); err != nil {
		return nil, decodeError(err)
	}
	return &st, nil
}

func decodeError(err error) *AppError {
	return &AppError{Message: "Invalid response from server", Err: err}
}

func studentPath(id int64) string {
	return "/mahasiswa/" + strconv.FormatInt(id, 10)
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
