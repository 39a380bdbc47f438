package webhook

import (
	"encoding/json"
	"fmt"
)

// イベント種別
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Event は検証済みのWebhookイベント。
// Dataはtypeに応じた形式で、DecodeUserDataで型付きに変換する。
type Event struct {
	Type   string          `json:"type"`
	Object string          `json:"object,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// EmailAddress はIdPのメールアドレス要素。
type EmailAddress struct {
	ID           string `json:"id,omitempty"`
	EmailAddress string `json:"email_address"`
}

// UserData はuser.*イベントのペイロード。
type UserData struct {
	ID             string         `json:"id"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
	Deleted        bool           `json:"deleted,omitempty"`
}

// PrimaryEmail はアドレスリストの先頭のメールアドレスを返す。リストが空の場合は空文字列。
func (d *UserData) PrimaryEmail() string {
	if len(d.EmailAddresses) == 0 {
		return ""
	}
	return d.EmailAddresses[0].EmailAddress
}

// DecodeUserData はDataをUserDataとして解釈する。
func (e *Event) DecodeUserData() (*UserData, error) {
	var data UserData
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return &data, nil
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode user data: %w", err)
	}
	return &data, nil
}
