package model

// Role はIdPのpublic metadataに保持されるロールのラベル。
// ローカルには永続化しない。
type Role string

const (
	// RoleNone はロールが未設定であることを示す。
	RoleNone Role = ""
	// RoleAdmin は管理者ロール。
	RoleAdmin Role = "admin"
	// RoleModerator はモデレーターロール。
	RoleModerator Role = "moderator"
)

// Caller は認証済みリクエストの呼び出し元を表す。
// セッショントークンの検証結果から構築され、各サービス操作に明示的に渡される。
type Caller struct {
	UserID    string
	SessionID string
	Role      Role
}

// IsAdmin は呼び出し元が管理者ロールを保持しているかを返す。
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
