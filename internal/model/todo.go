package model

import "time"

// Todo はユーザーが所有するタスクを表す。
// 変更操作は所有者本人のみが行える。
type Todo struct {
	ID        string
	UserID    string
	Title     string
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy は指定されたユーザーがこのTodoの所有者かどうかを返す。
func (t *Todo) OwnedBy(userID string) bool {
	return t.UserID == userID
}
