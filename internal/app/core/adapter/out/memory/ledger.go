package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/letitbank/go-bank-ledger/internal/app/core/domain"
	"github.com/letitbank/go-bank-ledger/internal/app/core/usecase"
	"github.com/letitbank/go-bank-ledger/pkg/wal"
)

// walOp WAL 紀錄種類
type walOp string

const (
	walOpRegister    walOp = "register"
	walOpTransaction walOp = "txn"
)

// walRecord WAL 的單行紀錄：註冊或交易擇一
type walRecord struct {
	Op   walOp               `json:"op"`
	User *walUser            `json:"user,omitempty"`
	Tran *domain.Transaction `json:"tran,omitempty"`
}

type walUser struct {
	UserID       int64     `json:"user_id"`
	AccountID    int64     `json:"account_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// lockedAccount 帳戶與其專屬鎖
// 鎖用容量 1 的 channel 實作，取鎖可被 context 與逾時中斷
type lockedAccount struct {
	acc *domain.Account
	lk  chan struct{}
}

func newLockedAccount(acc *domain.Account) *lockedAccount {
	return &lockedAccount{
		acc: acc,
		lk:  make(chan struct{}, 1),
	}
}

func (la *lockedAccount) release() {
	<-la.lk
}

// MemoryLedger 是一個純記憶體的帳本，狀態異動先走 WAL
//
// 鎖策略：
//
//	mu: 只保護目錄結構 (maps) 與 ID 計數器，永遠是最內層鎖
//	lockedAccount.lk: 每帳戶一把，餘額異動與帳目附加都在鎖內
//	轉帳依帳戶 ID 升冪取兩把鎖，避免反向轉帳互相等待
type MemoryLedger struct {
	mu              sync.RWMutex
	usersByName     map[string]*domain.User
	usersByID       map[int64]*domain.User
	accounts        map[int64]*lockedAccount
	accountsByOwner map[int64]*lockedAccount
	entries         map[int64][]domain.Entry
	// 已處理過的交易
	processed map[uuid.UUID]time.Time
	// Write-Ahead Logging
	wal *wal.WAL
	// 取鎖等待上限，超過回 ErrBusy
	lockWait time.Duration

	nextUserID    int64
	nextAccountID int64
	nextEntryID   int64
}

// NewMemoryLedger 建立一個新的 MemoryLedger 實例
//
// 參數:
//
//	walFile: Write-Ahead Log 實例 (可為 nil，僅測試用)
//	lockWait: 單一帳戶鎖的等待上限
//
// 回傳:
//
//	*MemoryLedger: MemoryLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMemoryLedger(walFile *wal.WAL, lockWait time.Duration) (*MemoryLedger, error) {
	ledger := &MemoryLedger{
		usersByName:     make(map[string]*domain.User),
		usersByID:       make(map[int64]*domain.User),
		accounts:        make(map[int64]*lockedAccount),
		accountsByOwner: make(map[int64]*lockedAccount),
		entries:         make(map[int64][]domain.Entry),
		processed:       make(map[uuid.UUID]time.Time),
		wal:             walFile,
		lockWait:        lockWait,
	}
	if err := ledger.recoverFromWAL(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewMemoryLedger 呼叫，單執行緒，無需鎖
func (l *MemoryLedger) recoverFromWAL() error {
	if l.wal == nil {
		return nil
	}

	now := time.Now()
	return l.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		switch rec.Op {
		case walOpRegister:
			if rec.User == nil {
				return fmt.Errorf("wal: register record without user")
			}
			l.applyRegister(rec.User)
		case walOpTransaction:
			if rec.Tran == nil {
				return fmt.Errorf("wal: txn record without transaction")
			}
			// 失敗的交易不會進 WAL，重放失敗代表檔案毀損
			if err := l.checkTransaction(rec.Tran); err != nil {
				return fmt.Errorf("wal replay: %w", err)
			}
			l.applyTransaction(rec.Tran, now)
			l.processed[rec.Tran.TransactionID] = now
		default:
			return fmt.Errorf("wal: unknown op %q", rec.Op)
		}
		return nil
	})
}

// applyRegister 套用一筆註冊 (新建或 WAL 重放共用)
func (l *MemoryLedger) applyRegister(wu *walUser) (*domain.User, *domain.Account) {
	user := &domain.User{
		ID:           wu.UserID,
		Username:     wu.Username,
		PasswordHash: wu.PasswordHash,
		CreatedAt:    wu.CreatedAt,
	}
	la := newLockedAccount(domain.NewAccount(wu.AccountID, wu.UserID, 0))

	l.usersByName[user.Username] = user
	l.usersByID[user.ID] = user
	l.accounts[la.acc.ID] = la
	l.accountsByOwner[user.ID] = la
	l.entries[la.acc.ID] = nil

	if wu.UserID > l.nextUserID {
		l.nextUserID = wu.UserID
	}
	if wu.AccountID > l.nextAccountID {
		l.nextAccountID = wu.AccountID
	}
	return user, la.acc
}

// CreateUserAccount 建立使用者與帳戶
// WAL 先行：寫入失敗則完全不留狀態，不會出現沒有帳戶的孤兒使用者
func (l *MemoryLedger) CreateUserAccount(ctx context.Context, username, passwordHash string) (*domain.User, *domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.usersByName[username]; exists {
		return nil, nil, domain.ErrUsernameTaken
	}

	wu := &walUser{
		UserID:       l.nextUserID + 1,
		AccountID:    l.nextAccountID + 1,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	if l.wal != nil {
		if err := l.wal.Write(&walRecord{Op: walOpRegister, User: wu}); err != nil {
			return nil, nil, domain.ErrWALWriteFailed
		}
	}

	user, account := l.applyRegister(wu)
	cp := *account
	return user, &cp, nil
}

// GetUserByUsername 依名稱查使用者
func (l *MemoryLedger) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	user, ok := l.usersByName[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// GetUserByID 依 ID 查使用者
func (l *MemoryLedger) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	user, ok := l.usersByID[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// GetAccount 依帳戶 ID 查帳戶，回傳當下快照
func (l *MemoryLedger) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	l.mu.RLock()
	la, ok := l.accounts[accountID]
	l.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return l.snapshotAccount(ctx, la)
}

// GetAccountByOwner 依擁有者查帳戶，回傳當下快照
func (l *MemoryLedger) GetAccountByOwner(ctx context.Context, userID int64) (*domain.Account, error) {
	l.mu.RLock()
	la, ok := l.accountsByOwner[userID]
	l.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return l.snapshotAccount(ctx, la)
}

// GetAccountBalance 取得指定帳戶的當前餘額
func (l *MemoryLedger) GetAccountBalance(ctx context.Context, accountID int64) (int64, error) {
	account, err := l.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// snapshotAccount 在帳戶鎖內複製一份，避免呼叫端讀到異動中的餘額
func (l *MemoryLedger) snapshotAccount(ctx context.Context, la *lockedAccount) (*domain.Account, error) {
	if err := l.acquire(ctx, la); err != nil {
		return nil, err
	}
	defer la.release()
	cp := *la.acc
	return &cp, nil
}

// acquire 取得帳戶鎖，等待受 lockWait 與 ctx 限制
func (l *MemoryLedger) acquire(ctx context.Context, la *lockedAccount) error {
	timer := time.NewTimer(l.lockWait)
	defer timer.Stop()
	select {
	case la.lk <- struct{}{}:
		return nil
	case <-ctx.Done():
		return domain.ErrBusy
	case <-timer.C:
		return domain.ErrBusy
	}
}

// PostTransaction 處理交易請求
//
// 流程：查帳戶 → 依固定順序鎖定 → 冪等檢查 → 業務預檢 → WAL → 套用
// 預檢失敗的交易不進 WAL，因此重放永遠成功
func (l *MemoryLedger) PostTransaction(ctx context.Context, tran *domain.Transaction) (int64, error) {
	lockIDs := tran.LockIDs()

	l.mu.RLock()
	involved := make([]*lockedAccount, 0, 2)
	for _, id := range lockIDs {
		la, ok := l.accounts[id]
		if !ok {
			l.mu.RUnlock()
			return 0, domain.ErrAccountNotFound
		}
		involved = append(involved, la)
	}
	l.mu.RUnlock()

	// LockIDs 已依帳戶 ID 升冪排序，依序取鎖不會死鎖
	locked := make([]*lockedAccount, 0, 2)
	defer func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].release()
		}
	}()
	for _, la := range involved {
		if err := l.acquire(ctx, la); err != nil {
			return 0, err
		}
		locked = append(locked, la)
	}

	primary := pick(involved, tran.PrimaryAccountID())

	// 冪等：同一筆 TransactionID 只套用一次，重複請求回報現況
	l.mu.RLock()
	_, done := l.processed[tran.TransactionID]
	l.mu.RUnlock()
	if done {
		return primary.acc.Balance, nil
	}

	if err := l.checkTransaction(tran); err != nil {
		return 0, err
	}

	// 寫入 WAL (Critical Path)
	if l.wal != nil {
		if err := l.wal.Write(&walRecord{Op: walOpTransaction, Tran: tran}); err != nil {
			return 0, domain.ErrWALWriteFailed
		}
	}

	l.applyTransaction(tran, time.Now())

	l.mu.Lock()
	l.processed[tran.TransactionID] = time.Now()
	l.mu.Unlock()

	return primary.acc.Balance, nil
}

// checkTransaction 業務預檢 (不改變狀態)，呼叫端須已持有相關帳戶鎖
func (l *MemoryLedger) checkTransaction(tran *domain.Transaction) error {
	for _, id := range tran.LockIDs() {
		if l.account(id) == nil {
			return domain.ErrAccountNotFound
		}
	}
	switch tran.Type {
	case domain.TransactionTypeDeposit:
		return l.account(tran.To).CanDeposit(tran.Amount)
	case domain.TransactionTypeWithdraw:
		return l.account(tran.From).CanWithdraw(tran.Amount)
	case domain.TransactionTypeTransfer:
		if err := l.account(tran.From).CanWithdraw(tran.Amount); err != nil {
			return err
		}
		return l.account(tran.To).CanDeposit(tran.Amount)
	default:
		return fmt.Errorf("unknown transaction type: %d", tran.Type)
	}
}

// applyTransaction 套用交易：異動餘額並附加帳目
// 預檢通過後不會失敗，呼叫端須已持有相關帳戶鎖
func (l *MemoryLedger) applyTransaction(tran *domain.Transaction, now time.Time) {
	switch tran.Type {
	case domain.TransactionTypeDeposit:
		l.account(tran.To).Balance += tran.Amount
	case domain.TransactionTypeWithdraw:
		l.account(tran.From).Balance -= tran.Amount
	case domain.TransactionTypeTransfer:
		l.account(tran.From).Balance -= tran.Amount
		l.account(tran.To).Balance += tran.Amount
	}

	entries := tran.Entries(now)
	l.mu.Lock()
	for i := range entries {
		l.nextEntryID++
		entries[i].ID = l.nextEntryID
		l.entries[entries[i].AccountID] = append(l.entries[entries[i].AccountID], entries[i])
	}
	l.mu.Unlock()
}

// account 取出帳戶物件 (僅供鎖內使用)，不存在回傳 nil
func (l *MemoryLedger) account(accountID int64) *domain.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	la, ok := l.accounts[accountID]
	if !ok {
		return nil
	}
	return la.acc
}

// pick 從已查出的帳戶中找指定 ID
func pick(las []*lockedAccount, accountID int64) *lockedAccount {
	for _, la := range las {
		if la.acc.ID == accountID {
			return la
		}
	}
	return nil
}

// ListEntries 取得帳戶帳目，新到舊
// 在帳戶鎖內複製，轉帳要嘛已完整入帳要嘛還沒開始，不會只看到單邊
func (l *MemoryLedger) ListEntries(ctx context.Context, accountID int64) ([]domain.Entry, error) {
	l.mu.RLock()
	la, ok := l.accounts[accountID]
	l.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	if err := l.acquire(ctx, la); err != nil {
		return nil, err
	}
	defer la.release()

	l.mu.RLock()
	stored := l.entries[accountID]
	out := make([]domain.Entry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	l.mu.RUnlock()
	return out, nil
}

var _ usecase.Ledger = (*MemoryLedger)(nil)
