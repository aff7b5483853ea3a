package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client はサービス間通信用のHTTPクライアント。
// タイムアウトの設定を持ち、リトライは行わない。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://admin:8085"）を指定する。
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
	}
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, result)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

// Head は指定パスにHEADリクエストを送信してステータスコードを返す。
// ステータスコードの分類だけで判定を行う呼び出しに使用するため、
// 2xx以外の応答もエラーとはしない。エラーを返すのは接続失敗や
// タイムアウトなど、応答自体が得られなかった場合のみ。
func (c *Client) Head(ctx context.Context, path string) (int, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	setIdentityHeaders(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setIdentityHeaders(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTPエラー: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// Identity はサービス間通信で伝播する呼び出し元の識別情報。
// ゲートウェイが検証済みトークンから取り出した値をそのまま運ぶ。
type Identity struct {
	// UserID はユーザーID。
	UserID string
	// Roles はカンマ区切りのロール一覧。
	Roles string
	// CenterID は所属センターID。
	CenterID string
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyIdentity はコンテキストに識別情報を格納するためのキー。
const contextKeyIdentity contextKey = "identity"

// WithIdentity はコンテキストに呼び出し元の識別情報を設定する。
// サービス間通信時にゲートウェイ由来の識別ヘッダーを伝播するために使用する。
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// setIdentityHeaders はコンテキストの識別情報をリクエストヘッダーに設定する。
func setIdentityHeaders(ctx context.Context, req *http.Request) {
	identity, ok := ctx.Value(contextKeyIdentity).(Identity)
	if !ok {
		return
	}
	req.Header.Set("X-User-Id", identity.UserID)
	req.Header.Set("X-Roles", identity.Roles)
	req.Header.Set("X-Center-Id", identity.CenterID)
}
