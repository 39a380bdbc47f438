// Package clerk はIdPのBackend APIクライアントを提供する。
// ロールはユーザーの公開メタデータとしてIdP側に保持され、ローカルには永続化しない。
package clerk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultAPIURL はBackend APIのベースURL。
	DefaultAPIURL = "https://api.clerk.com/v1"
	// roleKey は公開メタデータ上のロールのキー。
	roleKey = "role"
	// maxErrorBody はエラーレスポンスから読み取る最大バイト数。
	maxErrorBody = 4 << 10
)

// ErrUserNotFound は対象ユーザーがIdP上に存在しない場合に返される。
var ErrUserNotFound = errors.New("clerk: user not found")

// StatusError はBackend APIが2xx以外を返した場合のエラー。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("clerk: backend API returned status %d: %s", e.StatusCode, e.Body)
}

// Client はBackend APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	secretKey  string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はDefaultAPIURLを使用する。
func NewClient(httpClient *http.Client, baseURL, secretKey string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
	}
}

// Configured はシークレットキーが設定されているかを返す。
func (c *Client) Configured() bool {
	return c.secretKey != ""
}

// SetRole は対象ユーザーの公開メタデータのロールを上書きする。
func (c *Client) SetRole(ctx context.Context, userID, role string) error {
	return c.UpdatePublicMetadata(ctx, userID, map[string]any{roleKey: role})
}

// RemoveRole は対象ユーザーの公開メタデータからロールを削除する。
// Backend APIはnullを指定したキーを削除する。
func (c *Client) RemoveRole(ctx context.Context, userID string) error {
	return c.UpdatePublicMetadata(ctx, userID, map[string]any{roleKey: nil})
}

// UpdatePublicMetadata は公開メタデータをマージ更新する。
func (c *Client) UpdatePublicMetadata(ctx context.Context, userID string, metadata map[string]any) error {
	if userID == "" {
		return errors.New("clerk: user ID is required")
	}

	body, err := json.Marshal(map[string]any{"public_metadata": metadata})
	if err != nil {
		return fmt.Errorf("clerk: failed to encode metadata: %w", err)
	}

	endpoint := c.baseURL + "/users/" + url.PathEscape(userID) + "/metadata"
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("clerk: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "subtodo/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Backend APIの呼び出しに失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("clerk: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("Backend APIがエラーステータスを返しました",
			slog.String("user_id", userID),
			slog.Int("http_status", resp.StatusCode),
		)
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	// 接続の再利用のためボディを読み切る
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
