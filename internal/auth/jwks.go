package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// JWKS はJSON Web Key Setを表す。
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK はJSON Web Keyを表す。
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// errRefreshThrottled は前回の取得から最小間隔が経過していない場合に返される。
var errRefreshThrottled = errors.New("JWKS refresh throttled")

const (
	defaultCacheTTL = 10 * time.Minute
	// defaultMinRefreshInterval はTTL外の再取得（未知のkid、取得失敗後の再試行）の最小間隔。
	defaultMinRefreshInterval = 30 * time.Second
)

// JWKSCache はIdPの公開鍵をキャッシュする。
// TTL経過後に再取得する。未知のkidを受け取った場合は鍵のローテーションとみなして
// 再取得するが、最小間隔内の再取得は行わない。
type JWKSCache struct {
	url                string
	mu                 sync.RWMutex
	keys               map[string]any
	lastFetch          time.Time
	lastAttempt        time.Time
	cacheTTL           time.Duration
	minRefreshInterval time.Duration
	httpClient         *http.Client
	logger             *slog.Logger
	now                func() time.Time
}

// NewJWKSCache はJWKSCacheを生成する。
func NewJWKSCache(jwksURL string, logger *slog.Logger) *JWKSCache {
	return &JWKSCache{
		url:                jwksURL,
		keys:               make(map[string]any),
		cacheTTL:           defaultCacheTTL,
		minRefreshInterval: defaultMinRefreshInterval,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		now:    time.Now,
	}
}

// GetKey は指定kidの公開鍵を返す。
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (any, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	needsRefresh := c.now().Sub(c.lastFetch) > c.cacheTTL
	c.mu.RUnlock()

	if ok && !needsRefresh {
		return key, nil
	}

	if err := c.refresh(ctx, kid); err != nil {
		// 取得失敗時はキャッシュ済みの鍵で継続する
		if ok {
			c.logger.Warn("JWKSの再取得に失敗、キャッシュ済みの鍵を使用",
				slog.String("error", err.Error()),
			)
			return key, nil
		}
		if errors.Is(err, errRefreshThrottled) {
			return nil, fmt.Errorf("key %s not found in JWKS", kid)
		}
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	return key, nil
}

// refresh はJWKSを再取得する。kidはキャッシュに存在しなかった鍵のID。
// TTL内でkidが取得済みの場合は何もしない。TTL外の取得は最小間隔で制限する。
func (c *JWKSCache) refresh(ctx context.Context, kid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// ロック取得までに他のgoroutineが更新済みの場合はスキップする
	if now.Sub(c.lastFetch) < c.cacheTTL {
		if _, ok := c.keys[kid]; ok {
			return nil
		}
	}
	if !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < c.minRefreshInterval {
		return errRefreshThrottled
	}
	c.lastAttempt = now

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	newKeys := make(map[string]any, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || (key.Use != "" && key.Use != "sig") {
			continue
		}
		publicKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			c.logger.Warn("JWKの解析に失敗",
				slog.String("kid", key.Kid),
				slog.String("error", err.Error()),
			)
			continue
		}
		newKeys[key.Kid] = publicKey
	}

	c.keys = newKeys
	c.lastFetch = now
	return nil
}
