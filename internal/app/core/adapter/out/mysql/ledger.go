package mysql

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/letitbank/go-bank-ledger/internal/app/core/domain"
	"github.com/letitbank/go-bank-ledger/internal/app/core/usecase"
	"github.com/letitbank/go-bank-ledger/pkg/mysql"
)

// sqlUser 對應資料庫的 users 表
type sqlUser struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:128;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (*sqlUser) TableName() string {
	return "users"
}

// sqlAccount 對應資料庫的 accounts 表，與 users 一對一
type sqlAccount struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	UserID    int64 `gorm:"uniqueIndex;not null"`
	Balance   int64 `gorm:"not null"`
	UpdatedAt int64 `gorm:"autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlEntry 對應資料庫的 entries 表 (append-only 帳目)
type sqlEntry struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	AccountID   int64  `gorm:"index;not null"`
	Kind        string `gorm:"size:20;not null"`
	Amount      int64  `gorm:"not null"`
	Description string `gorm:"size:255"`
	CreatedAt   time.Time
}

func (*sqlEntry) TableName() string {
	return "entries"
}

// sqlTransaction 對應資料庫的 transactions 表 (冪等紀錄)
type sqlTransaction struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	RefID         []byte `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.TransactionID
	FromAccountID int64
	ToAccountID   int64
	Amount        int64
	Type          uint8
	CreatedAt     int64 `gorm:"autoCreateTime:milli"` // 自動寫入時間
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// errAlreadyApplied 交易紀錄撞 unique index：另一筆相同 TransactionID 已先入帳
// 只在 PostTransaction 內部流轉，用來把回滾導向回報現況
var errAlreadyApplied = errors.New("transaction already applied")

type MySQLLedger struct {
	client *mysql.Client
}

func NewMySQLLedger(client *mysql.Client) *MySQLLedger {
	return &MySQLLedger{
		client: client,
	}
}

// Migrate 建立或更新資料表結構
func (ledger *MySQLLedger) Migrate() error {
	return ledger.client.DB().AutoMigrate(&sqlUser{}, &sqlAccount{}, &sqlEntry{}, &sqlTransaction{})
}

// CreateUserAccount 在單一交易內建立使用者與帳戶
// 任一步失敗整體回滾，不會留下沒有帳戶的孤兒使用者
func (ledger *MySQLLedger) CreateUserAccount(ctx context.Context, username, passwordHash string) (*domain.User, *domain.Account, error) {
	var user sqlUser
	var account sqlAccount

	err := ledger.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user = sqlUser{
			Username:     username,
			PasswordHash: passwordHash,
		}
		if err := tx.Create(&user).Error; err != nil {
			// 名稱撞 unique index：同名註冊的競態由資料庫裁決
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrUsernameTaken
			}
			return fmt.Errorf("create user: %w", err)
		}

		account = sqlAccount{
			UserID:  user.ID,
			Balance: 0,
		}
		if err := tx.Create(&account).Error; err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, translateErr(err)
	}

	return user.toDomain(), account.toDomain(), nil
}

// GetUserByUsername 依名稱查使用者
func (ledger *MySQLLedger) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user sqlUser
	err := ledger.client.DB().WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, translateErr(err)
	}
	return user.toDomain(), nil
}

// GetUserByID 依 ID 查使用者
func (ledger *MySQLLedger) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	var user sqlUser
	err := ledger.client.DB().WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, translateErr(err)
	}
	return user.toDomain(), nil
}

// GetAccount 依帳戶 ID 查帳戶
func (ledger *MySQLLedger) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	var account sqlAccount
	err := ledger.client.DB().WithContext(ctx).Where("id = ?", accountID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, translateErr(err)
	}
	return account.toDomain(), nil
}

// GetAccountByOwner 依擁有者查帳戶
func (ledger *MySQLLedger) GetAccountByOwner(ctx context.Context, userID int64) (*domain.Account, error) {
	var account sqlAccount
	err := ledger.client.DB().WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, translateErr(err)
	}
	return account.toDomain(), nil
}

// GetAccountBalance 取得帳戶餘額
func (ledger *MySQLLedger) GetAccountBalance(ctx context.Context, accountID int64) (int64, error) {
	account, err := ledger.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// PostTransaction 在單一資料庫交易內完成檢查、異動與記帳
//
// 悲觀鎖：以固定順序 (帳戶 ID 升冪) SELECT ... FOR UPDATE 鎖定涉及帳戶，
// 反向轉帳不會互相死鎖；鎖等待逾時回 ErrBusy
func (ledger *MySQLLedger) PostTransaction(ctx context.Context, tran *domain.Transaction) (int64, error) {
	var newBalance int64

	err := ledger.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先檢查是否有這筆交易記錄 (冪等)：已套用過就回報現況
		var existing sqlTransaction
		err := tx.Where("ref_id = ?", tran.TransactionID[:]).First(&existing).Error
		if err == nil {
			var acc sqlAccount
			if err := tx.Where("id = ?", tran.PrimaryAccountID()).First(&acc).Error; err != nil {
				return fmt.Errorf("select account: %w", err)
			}
			newBalance = acc.Balance
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("select transaction: %w", err)
		}

		// 取得鎖定帳號 悲觀鎖
		lockIDs := tran.LockIDs()
		var accounts []sqlAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", lockIDs).
			Order("id").
			Find(&accounts).Error; err != nil {
			return err
		}
		accountMap := make(map[int64]*sqlAccount)
		for i := range accounts {
			accountMap[accounts[i].ID] = &accounts[i]
		}
		// 安全檢查：確保涉及的帳號都存在
		for _, id := range lockIDs {
			if _, ok := accountMap[id]; !ok {
				return domain.ErrAccountNotFound
			}
		}

		// 依照 Type 執行業務邏輯，扣款的需檢查餘額
		switch tran.Type {
		case domain.TransactionTypeDeposit:
			to := accountMap[tran.To]
			if tran.Amount <= 0 || to.Balance > math.MaxInt64-tran.Amount {
				return domain.ErrInvalidAmount
			}
			to.Balance += tran.Amount
		case domain.TransactionTypeWithdraw:
			from := accountMap[tran.From]
			if tran.Amount <= 0 {
				return domain.ErrInvalidAmount
			}
			if from.Balance < tran.Amount {
				return domain.ErrInsufficientBalance
			}
			from.Balance -= tran.Amount
		case domain.TransactionTypeTransfer:
			from := accountMap[tran.From]
			to := accountMap[tran.To]
			if tran.Amount <= 0 || to.Balance > math.MaxInt64-tran.Amount {
				return domain.ErrInvalidAmount
			}
			if from.Balance < tran.Amount {
				return domain.ErrInsufficientBalance
			}
			from.Balance -= tran.Amount
			to.Balance += tran.Amount
		default:
			return fmt.Errorf("unknown transaction type: %d", tran.Type)
		}

		// 更新資料庫
		for i := range accounts {
			if err := tx.Save(&accounts[i]).Error; err != nil {
				return err
			}
		}

		// 寫入帳目 (轉帳雙邊各一筆)
		now := time.Now()
		for _, e := range tran.Entries(now) {
			row := sqlEntry{
				AccountID:   e.AccountID,
				Kind:        string(e.Kind),
				Amount:      e.Amount,
				Description: e.Description,
				CreatedAt:   e.CreatedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		// 建立交易紀錄
		record := sqlTransaction{
			RefID:         tran.TransactionID[:],
			FromAccountID: tran.From,
			ToAccountID:   tran.To,
			Amount:        tran.Amount,
			Type:          uint8(tran.Type),
		}
		if err := tx.Create(&record).Error; err != nil {
			// 兩個併發請求帶同一筆 TransactionID 時，冪等預檢可能都撲空：
			// 後到者會在這裡撞 unique index。整筆回滾，改走回報現況
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyApplied
			}
			return err
		}

		newBalance = accountMap[tran.PrimaryAccountID()].Balance
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		return ledger.GetAccountBalance(ctx, tran.PrimaryAccountID())
	}
	if err != nil {
		return 0, translateErr(err)
	}
	return newBalance, nil
}

// ListEntries 取得帳戶帳目，新到舊
// 單一查詢讀取，由 InnoDB 一致性讀保證不會看到轉帳的半邊
func (ledger *MySQLLedger) ListEntries(ctx context.Context, accountID int64) ([]domain.Entry, error) {
	var rows []sqlEntry
	err := ledger.client.DB().WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, translateErr(err)
	}

	entries := make([]domain.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.Entry{
			ID:          row.ID,
			AccountID:   row.AccountID,
			Kind:        domain.EntryKind(row.Kind),
			Amount:      row.Amount,
			Description: row.Description,
			CreatedAt:   row.CreatedAt,
		})
	}
	return entries, nil
}

// translateErr 鎖等待逾時與死鎖重試訊號轉為 ErrBusy
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrBusy
	}
	var myErr *gomysql.MySQLError
	// 1205: lock wait timeout, 1213: deadlock victim
	if errors.As(err, &myErr) && (myErr.Number == 1205 || myErr.Number == 1213) {
		return domain.ErrBusy
	}
	return err
}

func (u *sqlUser) toDomain() *domain.User {
	return &domain.User{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func (a *sqlAccount) toDomain() *domain.Account {
	return domain.NewAccount(a.ID, a.UserID, a.Balance)
}

var _ usecase.Ledger = (*MySQLLedger)(nil)
