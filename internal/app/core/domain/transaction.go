package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// amount 使用int64，並定義精度：小數點後 4 位
const (
	CurrencyScale = 10000
)

// TransactionType 交易類型
type TransactionType uint8

const (
	// 存款
	TransactionTypeDeposit TransactionType = 1
	// 提款
	TransactionTypeWithdraw TransactionType = 2
	// 轉帳
	TransactionTypeTransfer TransactionType = 3
)

// EntryKind 帳目種類，落地於 entries 表並回傳給 API
// 轉帳會在雙方各留一筆，kind 區分出入帳
type EntryKind string

const (
	EntryKindDeposit     EntryKind = "deposit"
	EntryKindWithdraw    EntryKind = "withdraw"
	EntryKindTransferOut EntryKind = "transfer_out"
	EntryKindTransferIn  EntryKind = "transfer_in"
)

// Transaction 交易指令
// 帳本依 Type 決定動作；From/To 為帳戶 ID，0 代表外部世界 (存/提款的另一端)
type Transaction struct {
	// From, To: 帳戶 ID
	From int64
	To   int64
	// Amount: 金額 (最小單位)
	Amount int64
	// CreatedAt: 交易時間 (UnixNano)
	CreatedAt int64
	// TransactionID: 外部追蹤號 (UUID)，冪等性依據
	TransactionID uuid.UUID
	// FromUsername, ToUsername: 轉帳描述用的雙方名稱 (僅 Transfer 需要)
	FromUsername string
	ToUsername   string
	// Type: 放到最後面，利用 Padding 空間
	Type TransactionType
}

// LockIDs 回傳需要鎖定的帳號 ID，並確保順序以避免死鎖
func (t *Transaction) LockIDs() (ids []int64) {
	ids = make([]int64, 0, 2)
	switch t.Type {
	case TransactionTypeTransfer:
		if t.From < t.To {
			ids = append(ids, t.From, t.To)
		} else {
			ids = append(ids, t.To, t.From)
		}
	case TransactionTypeDeposit:
		ids = append(ids, t.To)
	case TransactionTypeWithdraw:
		ids = append(ids, t.From)
	}
	return ids
}

// PrimaryAccountID 回傳操作完成後應回報餘額的帳戶
// 轉帳/提款回報 From，存款回報 To
func (t *Transaction) PrimaryAccountID() int64 {
	if t.Type == TransactionTypeDeposit {
		return t.To
	}
	return t.From
}

// Entry 帳目紀錄 (append-only，不可變)
type Entry struct {
	ID          int64     `json:"-"`
	AccountID   int64     `json:"-"`
	Kind        EntryKind `json:"type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"timestamp"`
}

// Entries 依交易類型展開應寫入的帳目
// 轉帳固定兩筆 (transfer_out + transfer_in)，其餘一筆
func (t *Transaction) Entries(now time.Time) []Entry {
	switch t.Type {
	case TransactionTypeDeposit:
		return []Entry{{
			AccountID:   t.To,
			Kind:        EntryKindDeposit,
			Amount:      t.Amount,
			Description: fmt.Sprintf("Deposit of %d", t.Amount),
			CreatedAt:   now,
		}}
	case TransactionTypeWithdraw:
		return []Entry{{
			AccountID:   t.From,
			Kind:        EntryKindWithdraw,
			Amount:      t.Amount,
			Description: fmt.Sprintf("Withdrawal of %d", t.Amount),
			CreatedAt:   now,
		}}
	case TransactionTypeTransfer:
		return []Entry{
			{
				AccountID:   t.From,
				Kind:        EntryKindTransferOut,
				Amount:      t.Amount,
				Description: fmt.Sprintf("Transferred %d to %s", t.Amount, t.ToUsername),
				CreatedAt:   now,
			},
			{
				AccountID:   t.To,
				Kind:        EntryKindTransferIn,
				Amount:      t.Amount,
				Description: fmt.Sprintf("Received %d from %s", t.Amount, t.FromUsername),
				CreatedAt:   now,
			},
		}
	}
	return nil
}
