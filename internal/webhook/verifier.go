// Package webhook はIdPからのWebhook受信処理を提供する。
// 署名検証、型付きイベントへの変換、検証済みイベントのディスパッチを含む。
package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/hitoshi/subtodo/internal/model"
)

// 署名検証に必須のヘッダー。
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

// Verifier は共有シークレットでWebhookの署名を検証する。
// シークレット未設定のVerifierも生成でき、その場合は検証ごとにMISSING_CONFIGURATIONを返す。
type Verifier struct {
	wh *svix.Webhook
}

// NewVerifier はVerifierを生成する。
// secretが空の場合は未設定のVerifierを返す。形式が不正な場合はエラーを返す。
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return &Verifier{}, nil
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook secret: %w", err)
	}
	return &Verifier{wh: wh}, nil
}

// Configured は共有シークレットが設定されているかを返す。
func (v *Verifier) Configured() bool {
	return v != nil && v.wh != nil
}

// Verify は生のペイロードとヘッダーの署名を検証し、型付きイベントを返す。
// payloadは受信したバイト列をそのまま渡すこと。
func (v *Verifier) Verify(payload []byte, headers http.Header) (*Event, error) {
	if !v.Configured() {
		return nil, model.NewMissingConfigurationError("WEBHOOK_SECRET")
	}

	for _, name := range []string{HeaderID, HeaderTimestamp, HeaderSignature} {
		if headers.Get(name) == "" {
			return nil, model.NewInvalidSignatureError()
		}
	}

	if err := v.wh.Verify(payload, headers); err != nil {
		return nil, model.NewInvalidSignatureError()
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, model.NewInvalidRequestError("イベントのJSONが不正です")
	}
	if event.Type == "" {
		return nil, model.NewInvalidRequestError("イベント種別がありません")
	}
	return &event, nil
}
