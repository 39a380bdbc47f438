// Package model はドメインモデルを定義する。
package model

import "time"

// User はIdPから同期されたサービス利用ユーザーを表す。
// IDはIdPが払い出したものをそのまま主キーとして使用する。
type User struct {
	ID               string
	Email            string
	IsSubscribed     bool
	SubscriptionEnds *time.Time // nilは期限なし（未購読または失効済み）
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SubscriptionExpired は購読期限がnowより厳密に過去かどうかを返す。
func (u *User) SubscriptionExpired(now time.Time) bool {
	return u.SubscriptionEnds != nil && u.SubscriptionEnds.Before(now)
}

// SubscriptionStatus は購読状態の読み取り結果を表す。
type SubscriptionStatus struct {
	IsSubscribed     bool
	SubscriptionEnds *time.Time
}
