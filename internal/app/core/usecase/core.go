package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/letitbank/go-bank-ledger/internal/app/core/domain"
)

// Bank 是核心業務邏輯層
// 驗證輸入、決定錯誤優先序，實際的原子異動交給 Ledger
type Bank struct {
	ledger Ledger
}

func NewBank(ledger Ledger) *Bank {
	return &Bank{
		ledger: ledger,
	}
}

// Register 註冊使用者並同時開戶
// 欄位缺漏回傳 ValidationError；名稱重複回傳 ErrUsernameTaken
func (b *Bank) Register(ctx context.Context, username, password string) (*domain.User, *domain.Account, error) {
	var missing []string
	if username == "" {
		missing = append(missing, "username")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, nil, domain.NewValidationError(missing...)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	return b.ledger.CreateUserAccount(ctx, username, string(hash))
}

// Authenticate 驗證帳號密碼，成功回傳使用者與其帳戶
// 查無使用者與密碼錯誤一律回傳 ErrInvalidCredentials
func (b *Bank) Authenticate(ctx context.Context, username, password string) (*domain.User, *domain.Account, error) {
	if username == "" || password == "" {
		return nil, nil, domain.ErrInvalidCredentials
	}

	user, err := b.ledger.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, domain.ErrInvalidCredentials
	}

	account, err := b.ledger.GetAccountByOwner(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, account, nil
}

// AccountOf 將已驗證的使用者對應到其帳戶 (Identity Boundary)
func (b *Bank) AccountOf(ctx context.Context, userID int64) (*domain.Account, error) {
	return b.ledger.GetAccountByOwner(ctx, userID)
}

// GetBalance 取得帳戶餘額
func (b *Bank) GetBalance(ctx context.Context, accountID int64) (int64, error) {
	return b.ledger.GetAccountBalance(ctx, accountID)
}

// Deposit 存款，回傳最新餘額
func (b *Bank) Deposit(ctx context.Context, accountID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	tran := &domain.Transaction{
		TransactionID: uuid.New(),
		To:            accountID,
		Amount:        amount,
		Type:          domain.TransactionTypeDeposit,
		CreatedAt:     time.Now().UnixNano(),
	}
	return b.ledger.PostTransaction(ctx, tran)
}

// Withdraw 提款，回傳最新餘額
// 餘額檢查與扣款由 Ledger 原子執行
func (b *Bank) Withdraw(ctx context.Context, accountID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	tran := &domain.Transaction{
		TransactionID: uuid.New(),
		From:          accountID,
		Amount:        amount,
		Type:          domain.TransactionTypeWithdraw,
		CreatedAt:     time.Now().UnixNano(),
	}
	return b.ledger.PostTransaction(ctx, tran)
}

// Transfer 轉帳給指定名稱的使用者，回傳轉出方最新餘額
//
// 檢查順序 (先敗者先回)：
//  1. 金額 > 0
//  2. 轉出帳戶存在
//  3. 轉出餘額足夠
//  4. 收款使用者存在
//  5. 收款帳戶存在
//
// 這裡的餘額檢查只決定錯誤優先序；真正有效的檢查在 Ledger 的原子區內再做一次
func (b *Bank) Transfer(ctx context.Context, senderAccountID int64, recipientUsername string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	if recipientUsername == "" {
		return 0, domain.NewValidationError("recipient")
	}

	sender, err := b.ledger.GetAccount(ctx, senderAccountID)
	if err != nil {
		return 0, err
	}
	if sender.Balance < amount {
		return 0, domain.ErrInsufficientBalance
	}

	recipientUser, err := b.ledger.GetUserByUsername(ctx, recipientUsername)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return 0, domain.ErrRecipientNotFound
		}
		return 0, err
	}
	recipientAccount, err := b.ledger.GetAccountByOwner(ctx, recipientUser.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return 0, domain.ErrRecipientAccountNotFound
		}
		return 0, err
	}

	// 自己轉自己：明確拒絕，不做淨額為零的特例
	if recipientAccount.ID == senderAccountID {
		return 0, domain.ErrSelfTransfer
	}

	senderUser, err := b.ledger.GetUserByID(ctx, sender.UserID)
	if err != nil {
		return 0, err
	}

	tran := &domain.Transaction{
		TransactionID: uuid.New(),
		From:          senderAccountID,
		To:            recipientAccount.ID,
		Amount:        amount,
		Type:          domain.TransactionTypeTransfer,
		FromUsername:  senderUser.Username,
		ToUsername:    recipientUser.Username,
		CreatedAt:     time.Now().UnixNano(),
	}
	return b.ledger.PostTransaction(ctx, tran)
}

// ListEntries 取得帳戶的帳目紀錄 (新到舊)
func (b *Bank) ListEntries(ctx context.Context, accountID int64) ([]domain.Entry, error) {
	return b.ledger.ListEntries(ctx, accountID)
}
