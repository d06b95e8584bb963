package mysql

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/letitbank/go-bank-ledger/internal/app/core/domain"
)

// TestTranslateErrBusy 鎖等待逾時 (1205)、死鎖 (1213) 與 context 逾時
// 一律轉為 ErrBusy，其餘錯誤原樣通過
func TestTranslateErrBusy(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"lock wait timeout", &gomysql.MySQLError{Number: 1205}, domain.ErrBusy},
		{"deadlock victim", &gomysql.MySQLError{Number: 1213}, domain.ErrBusy},
		{"wrapped deadlock", fmt.Errorf("post: %w", &gomysql.MySQLError{Number: 1213}), domain.ErrBusy},
		{"context deadline", context.DeadlineExceeded, domain.ErrBusy},
		{"business error", domain.ErrInsufficientBalance, domain.ErrInsufficientBalance},
	}
	for _, tc := range cases {
		got := translateErr(tc.in)
		if tc.want == nil {
			if got != nil {
				t.Fatalf("%s: got %v want nil", tc.name, got)
			}
			continue
		}
		if !errors.Is(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

// TestTranslateErrOtherMySQLErrors 其他 MySQL 錯誤碼不得被吃成 ErrBusy
func TestTranslateErrOtherMySQLErrors(t *testing.T) {
	in := &gomysql.MySQLError{Number: 1062} // duplicate entry
	if got := translateErr(in); errors.Is(got, domain.ErrBusy) {
		t.Fatalf("1062 should pass through, got %v", got)
	}
}

// TestDuplicateRecordDetection 交易紀錄插入撞 unique index 必須被改道為
// errAlreadyApplied，不得當成業務錯誤外洩
func TestDuplicateRecordDetection(t *testing.T) {
	// PostTransaction 的改道條件：gorm 轉譯後的 duplicate key
	wrapped := fmt.Errorf("create record: %w", gorm.ErrDuplicatedKey)
	if !errors.Is(wrapped, gorm.ErrDuplicatedKey) {
		t.Fatal("wrapped duplicate key should still match")
	}

	// errAlreadyApplied 是內部訊號，不得與任何對外錯誤混淆
	for _, sentinel := range []error{
		domain.ErrBusy,
		domain.ErrInsufficientBalance,
		domain.ErrInvalidAmount,
		domain.ErrAccountNotFound,
	} {
		if errors.Is(errAlreadyApplied, sentinel) {
			t.Fatalf("errAlreadyApplied must not match %v", sentinel)
		}
	}
	// translateErr 不碰它：改道必須發生在 translateErr 之前
	if got := translateErr(errAlreadyApplied); !errors.Is(got, errAlreadyApplied) {
		t.Fatalf("translateErr changed internal signal: %v", got)
	}
}
