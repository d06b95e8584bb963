package domain

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidAmount 金額必須為正數 (且不得溢位)
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrUserNotFound 找不到使用者
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameTaken 使用者名稱已存在
	ErrUsernameTaken = errors.New("username already exists")

	// ErrRecipientNotFound 找不到收款使用者
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrRecipientAccountNotFound 找不到收款帳戶
	ErrRecipientAccountNotFound = errors.New("recipient account not found")

	// ErrSelfTransfer 不允許轉帳給自己
	ErrSelfTransfer = errors.New("cannot transfer to own account")

	// ErrInvalidCredentials 帳號或密碼錯誤 (不區分兩者，避免洩漏帳號存在性)
	ErrInvalidCredentials = errors.New("bad username or password")

	// ErrBusy 鎖等待逾時，請稍後重試
	ErrBusy = errors.New("ledger busy, try again")

	// ErrWALWriteFailed WAL 寫入失敗
	ErrWALWriteFailed = errors.New("wal write failed")
)

// ValidationError 輸入欄位缺漏或不合法
// 取代原本在傳輸層的 JSON 欄位檢查，於操作邊界回傳具體缺漏清單
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing parameters: " + strings.Join(e.Missing, ", ")
}

// NewValidationError 建立欄位缺漏錯誤
func NewValidationError(missing ...string) *ValidationError {
	return &ValidationError{Missing: missing}
}
