package usecase

import (
	"context"

	"github.com/letitbank/go-bank-ledger/internal/app/core/domain"
)

// Ledger 是帳務系統的介面
// 兩個實作：mysql (GORM 悲觀鎖) 與 memory (每帳戶鎖 + WAL)
type Ledger interface {
	// CreateUserAccount 建立使用者與其帳戶，必須為單一原子單位：
	// 兩筆都存在或都不存在，重複名稱回傳 ErrUsernameTaken
	CreateUserAccount(ctx context.Context, username, passwordHash string) (*domain.User, *domain.Account, error)
	// GetUserByUsername 依名稱查使用者
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	// GetUserByID 依 ID 查使用者
	GetUserByID(ctx context.Context, userID int64) (*domain.User, error)
	// GetAccount 依帳戶 ID 查帳戶
	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	// GetAccountByOwner 依擁有者查帳戶
	GetAccountByOwner(ctx context.Context, userID int64) (*domain.Account, error)
	// GetAccountBalance 取得帳戶餘額
	GetAccountBalance(ctx context.Context, accountID int64) (int64, error)
	// PostTransaction 不再分 Deposit/Withdraw，直接看 tran.Type 決定
	// 檢查、異動、記帳為單一原子步驟，回傳主要帳戶的最新餘額
	PostTransaction(ctx context.Context, tran *domain.Transaction) (int64, error)
	// ListEntries 取得帳戶的帳目紀錄，新到舊排序，且為一致性快照
	ListEntries(ctx context.Context, accountID int64) ([]domain.Entry, error)
}
