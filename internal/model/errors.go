package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, attendance, session, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となった下位エラー（レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeNotConnected          = "NOT_CONNECTED"
	ErrCodeTransportError        = "TRANSPORT_ERROR"
	ErrCodeSubjectNotFound       = "SUBJECT_NOT_FOUND"
	ErrCodeWindowClosed          = "WINDOW_CLOSED"
	ErrCodeDuplicateKey          = "DUPLICATE_KEY"
	ErrCodeStorageUnavailable    = "STORAGE_UNAVAILABLE"
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeInvalidChannel        = "INVALID_CHANNEL"
	ErrCodeInvalidStatus         = "INVALID_STATUS"
	ErrCodeAttendanceNotFound    = "ATTENDANCE_NOT_FOUND"
	ErrCodeGuardianNotFound      = "GUARDIAN_NOT_FOUND"
	ErrCodeCodeNotFound          = "CODE_NOT_FOUND"
	ErrCodeChallengeNotAvailable = "CHALLENGE_NOT_AVAILABLE"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
)

// 定義済みエラーカテゴリ
const (
	CategoryValidation = "validation"
	CategorySession    = "session"
	CategoryAttendance = "attendance"
	CategoryAuth       = "auth"
	CategorySystem     = "system"
)

// NewNotConnectedError はWhatsAppセッション未接続エラーを生成する。
func NewNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotConnected,
		Message:  "WhatsAppのセッションが接続されていません。",
		Category: CategorySession,
		Action:   "管理画面でQRコードを読み取り、接続が完了してから再度お試しください。",
	}
}

// NewTransportError はメッセージ送信失敗エラーを生成する。
// 原因エラーはErrに保持し、レスポンスには含めない。
func NewTransportError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeTransportError,
		Message:  "メッセージの送信に失敗しました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewSubjectNotFoundError は生徒未検出エラーを生成する。
func NewSubjectNotFoundError(enrollment string) *APIError {
	return &APIError{
		Code:     ErrCodeSubjectNotFound,
		Message:  fmt.Sprintf("生徒が見つかりません: %s", enrollment),
		Category: CategoryAttendance,
		Action:   "学籍番号を確認してください。",
	}
}

// NewWindowClosedError は出席受付時間外エラーを生成する。
func NewWindowClosedError() *APIError {
	return &APIError{
		Code:     ErrCodeWindowClosed,
		Message:  "出席の受付時間は終了しています。",
		Category: CategoryAttendance,
		Action:   "受付時間内に再度読み取るか、管理者に手動登録を依頼してください。",
	}
}

// NewDuplicateKeyError は識別子の重複エラーを生成する。
// fieldには重複した項目名（学籍番号、保護者コードなど）を指定する。
func NewDuplicateKeyError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateKey,
		Message:  fmt.Sprintf("既に登録されています: %s", field),
		Category: CategoryValidation,
		Action:   "別の値を指定するか、既存の登録内容を確認してください。",
	}
}

// NewStorageUnavailableError はデータストア利用不可エラーを生成する。
func NewStorageUnavailableError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnavailable,
		Message:  "データベースを利用できません。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewInvalidInputError は入力値不正エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: CategoryValidation,
		Action:   "入力内容を確認してから再度お試しください。",
	}
}

// NewInvalidChannelError は送信先グループIDが不正な場合のエラーを生成する。
func NewInvalidChannelError(channelID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidChannel,
		Message:  fmt.Sprintf("無効なグループIDです: %q", channelID),
		Category: CategoryValidation,
		Action:   "グループIDは「@g.us」で終わる形式で指定してください。",
	}
}

// NewInvalidStatusError は出席ステータスが不正な場合のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効な出席ステータスです: %q", status),
		Category: CategoryValidation,
		Action:   "ステータスには present、absent、justified のいずれかを指定してください。",
	}
}

// NewAttendanceNotFoundError は出席記録未検出エラーを生成する。
func NewAttendanceNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeAttendanceNotFound,
		Message:  fmt.Sprintf("出席記録が見つかりません: %s", id),
		Category: CategoryAttendance,
		Action:   "出席記録IDを確認してください。",
	}
}

// NewGuardianNotFoundError は保護者コード未検出エラーを生成する。
func NewGuardianNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeGuardianNotFound,
		Message:  "保護者が見つかりません。",
		Category: CategoryAttendance,
		Action:   "保護者用QRコードを確認してください。",
	}
}

// NewCodeNotFoundError は読み取ったコードが生徒にも保護者にも紐付かない場合のエラーを生成する。
func NewCodeNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeNotFound,
		Message:  "QRコードが生徒にも保護者にも登録されていません。",
		Category: CategoryAttendance,
		Action:   "登録済みのQRコードか確認してください。",
	}
}

// NewChallengeNotAvailableError はQRチャレンジが存在しない場合のエラーを生成する。
func NewChallengeNotAvailableError() *APIError {
	return &APIError{
		Code:     ErrCodeChallengeNotAvailable,
		Message:  "表示できるQRコードはありません。ボットは接続済みの可能性があります。",
		Category: CategorySession,
		Action:   "接続状態を確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: CategoryAuth,
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: CategoryAuth,
		Action:   "入力内容を確認してから再度ログインしてください。",
	}
}
