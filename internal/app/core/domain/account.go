package domain

import (
	"math"
	"time"
)

// User 使用者，與 Account 一對一
// PasswordHash 為 bcrypt 雜湊，不落地明文密碼
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Account 帳戶，Balance 不變式：任何時刻 >= 0
type Account struct {
	ID      int64
	UserID  int64
	Balance int64
}

func NewAccount(id int64, userID int64, balance int64) *Account {
	return &Account{
		ID:      id,
		UserID:  userID,
		Balance: balance,
	}
}

// CanDeposit 檢查存入是否合法 (不改變狀態)
// 溢位視同無效金額
func (a *Account) CanDeposit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Balance > math.MaxInt64-amount {
		return ErrInvalidAmount
	}
	return nil
}

// CanWithdraw 檢查扣款是否合法 (不改變狀態)
func (a *Account) CanWithdraw(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Balance < amount {
		return ErrInsufficientBalance
	}
	return nil
}

// Deposit 存款
func (a *Account) Deposit(amount int64) error {
	if err := a.CanDeposit(amount); err != nil {
		return err
	}

	a.Balance = a.Balance + amount
	return nil
}

// Withdraw 提款
// 檢查與扣款必須由呼叫端以鎖或交易包成單一原子步驟
func (a *Account) Withdraw(amount int64) error {
	if err := a.CanWithdraw(amount); err != nil {
		return err
	}

	a.Balance = a.Balance - amount
	return nil
}
