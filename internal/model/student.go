// Package model はドメインモデルを定義する。
package model

import "time"

// Student は出席管理の対象となる生徒を表す。
// Enrollmentは学籍番号（matrícula）で、生徒用QRコードの値と一致する。
type Student struct {
	ID         string
	Enrollment string
	FullName   string
	Grade      string
	Group      string
	Level      string
	CreatedAt  time.Time
}

// Guardian は保護者用QRコードと生徒・通知先グループの紐付けを表す。
// ChannelIDが空の場合は既定の通知先グループを使用する。
type Guardian struct {
	ID                string
	Code              string
	StudentEnrollment string
	ChannelID         string
	Name              string
	Address           string
	Phone             string
	CreatedAt         time.Time
}

// Operator は管理画面を利用する職員アカウントを表す。
type Operator struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
