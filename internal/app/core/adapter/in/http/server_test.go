package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	http_adapter "github.com/letitbank/go-bank-ledger/internal/app/core/adapter/in/http"
	memory_adapter "github.com/letitbank/go-bank-ledger/internal/app/core/adapter/out/memory"
	"github.com/letitbank/go-bank-ledger/internal/app/core/usecase"
)

const testSecret = "test-secret"

// newTestApp 組出完整 HTTP 服務：記憶體帳本 + 業務層 + fiber 路由
func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	ledger, err := memory_adapter.NewMemoryLedger(nil, time.Second)
	if err != nil {
		t.Fatalf("NewMemoryLedger: %v", err)
	}
	bank := usecase.NewBank(ledger)
	server := http_adapter.NewServer(bank, testSecret, time.Hour)

	app := fiber.New()
	server.RegisterRoutes(app)
	return app
}

// doJSON 發出 JSON 請求並驗證狀態碼，out 非 nil 時解析回應內容
func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any, wantCode int, out any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		t.Fatalf("%s %s: code=%d want=%d", method, path, resp.StatusCode, wantCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

// signupAndLogin 註冊並登入，回傳存取權杖
func signupAndLogin(t *testing.T, app *fiber.App, username, password string) string {
	t.Helper()
	creds := map[string]string{"username": username, "password": password}
	doJSON(t, app, "POST", "/register", "", creds, fiber.StatusCreated, nil)

	var loginResp struct {
		AccessToken string `json:"access_token"`
	}
	doJSON(t, app, "POST", "/login", "", creds, fiber.StatusOK, &loginResp)
	if loginResp.AccessToken == "" {
		t.Fatal("empty access token")
	}
	return loginResp.AccessToken
}

// TestRegisterAndLogin 註冊 201、重複 409、登入取得權杖、錯密碼 401
func TestRegisterAndLogin(t *testing.T) {
	app := newTestApp(t)

	creds := map[string]string{"username": "alice", "password": "pw"}
	var msg struct {
		Msg string `json:"msg"`
	}
	doJSON(t, app, "POST", "/register", "", creds, fiber.StatusCreated, &msg)
	if msg.Msg != "User created successfully" {
		t.Fatalf("msg=%q", msg.Msg)
	}

	doJSON(t, app, "POST", "/register", "", creds, fiber.StatusConflict, &msg)
	if msg.Msg != "User already exists" {
		t.Fatalf("msg=%q", msg.Msg)
	}

	var loginResp struct {
		AccessToken string `json:"access_token"`
	}
	doJSON(t, app, "POST", "/login", "", creds, fiber.StatusOK, &loginResp)
	if loginResp.AccessToken == "" {
		t.Fatal("empty access token")
	}

	bad := map[string]string{"username": "alice", "password": "wrong"}
	doJSON(t, app, "POST", "/login", "", bad, fiber.StatusUnauthorized, &msg)
	if msg.Msg != "Bad username or password" {
		t.Fatalf("msg=%q", msg.Msg)
	}

	// 不存在的帳號與錯密碼回同一個 401
	ghost := map[string]string{"username": "ghost", "password": "pw"}
	doJSON(t, app, "POST", "/login", "", ghost, fiber.StatusUnauthorized, nil)
}

// TestRegisterMissingFields 欄位缺漏回 400
func TestRegisterMissingFields(t *testing.T) {
	app := newTestApp(t)
	doJSON(t, app, "POST", "/register", "", map[string]string{"username": "alice"}, fiber.StatusBadRequest, nil)
	doJSON(t, app, "POST", "/register", "", map[string]string{"password": "pw"}, fiber.StatusBadRequest, nil)
}

// TestAuthRequired 受保護路由缺 token 或 token 無效一律 401
func TestAuthRequired(t *testing.T) {
	app := newTestApp(t)

	req, _ := http.NewRequest("GET", "/balance", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("code=%d want=401", resp.StatusCode)
	}

	doJSON(t, app, "GET", "/balance", "garbage-token", nil, fiber.StatusUnauthorized, nil)
	doJSON(t, app, "POST", "/deposit", "garbage-token", map[string]int{"amount": 1}, fiber.StatusUnauthorized, nil)
}

// TestBalanceDepositWithdraw 餘額查詢與存提款的完整流程與狀態碼
func TestBalanceDepositWithdraw(t *testing.T) {
	app := newTestApp(t)
	token := signupAndLogin(t, app, "alice", "pw")

	var balResp struct {
		Balance int64 `json:"balance"`
	}
	doJSON(t, app, "GET", "/balance", token, nil, fiber.StatusOK, &balResp)
	if balResp.Balance != 0 {
		t.Fatalf("balance=%d want=0", balResp.Balance)
	}

	var opResp struct {
		Msg     string `json:"msg"`
		Balance int64  `json:"balance"`
	}
	doJSON(t, app, "POST", "/deposit", token, map[string]int{"amount": 50}, fiber.StatusOK, &opResp)
	if opResp.Balance != 50 {
		t.Fatalf("balance=%d want=50", opResp.Balance)
	}

	// 金額錯誤
	doJSON(t, app, "POST", "/deposit", token, map[string]int{"amount": 0}, fiber.StatusBadRequest, &opResp)
	if opResp.Msg != "Invalid deposit amount" {
		t.Fatalf("msg=%q", opResp.Msg)
	}
	doJSON(t, app, "POST", "/withdraw", token, map[string]int{"amount": -1}, fiber.StatusBadRequest, nil)

	// 餘額不足
	doJSON(t, app, "POST", "/withdraw", token, map[string]int{"amount": 200}, fiber.StatusBadRequest, &opResp)
	if opResp.Msg != "Insufficient funds" {
		t.Fatalf("msg=%q", opResp.Msg)
	}

	doJSON(t, app, "POST", "/withdraw", token, map[string]int{"amount": 30}, fiber.StatusOK, &opResp)
	if opResp.Balance != 20 {
		t.Fatalf("balance=%d want=20", opResp.Balance)
	}
}

// TestTransferEndpoints 轉帳的成功與各種失敗狀態碼
func TestTransferEndpoints(t *testing.T) {
	app := newTestApp(t)
	aliceToken := signupAndLogin(t, app, "alice", "pw")
	bobToken := signupAndLogin(t, app, "bob", "pw")

	doJSON(t, app, "POST", "/deposit", aliceToken, map[string]int{"amount": 100}, fiber.StatusOK, nil)

	var msg struct {
		Msg     string `json:"msg"`
		Balance int64  `json:"balance"`
	}

	// 收款人不存在 → 404
	doJSON(t, app, "POST", "/transfer", aliceToken,
		map[string]any{"recipient": "ghost", "amount": 10}, fiber.StatusNotFound, &msg)
	if msg.Msg != "Recipient not found" {
		t.Fatalf("msg=%q", msg.Msg)
	}

	// 自己轉自己 → 400
	doJSON(t, app, "POST", "/transfer", aliceToken,
		map[string]any{"recipient": "alice", "amount": 10}, fiber.StatusBadRequest, nil)

	// 金額或欄位錯誤 → 400
	doJSON(t, app, "POST", "/transfer", aliceToken,
		map[string]any{"recipient": "bob", "amount": 0}, fiber.StatusBadRequest, nil)
	doJSON(t, app, "POST", "/transfer", aliceToken,
		map[string]any{"amount": 10}, fiber.StatusBadRequest, nil)

	// 餘額不足 → 400
	doJSON(t, app, "POST", "/transfer", aliceToken,
		map[string]any{"recipient": "bob", "amount": 9999}, fiber.StatusBadRequest, &msg)
	if msg.Msg != "Insufficient funds" {
		t.Fatalf("msg=%q", msg.Msg)
	}

	// 成功轉帳，回傳轉出方最新餘額
	doJSON(t, app, "POST", "/transfer", aliceToken,
		map[string]any{"recipient": "bob", "amount": 40}, fiber.StatusOK, &msg)
	if msg.Balance != 60 {
		t.Fatalf("balance=%d want=60", msg.Balance)
	}

	var balResp struct {
		Balance int64 `json:"balance"`
	}
	doJSON(t, app, "GET", "/balance", bobToken, nil, fiber.StatusOK, &balResp)
	if balResp.Balance != 40 {
		t.Fatalf("bob balance=%d want=40", balResp.Balance)
	}
}

// TestTransactionsHistory 帳目端點：新到舊、種類與敘述沿用既有格式
func TestTransactionsHistory(t *testing.T) {
	app := newTestApp(t)
	aliceToken := signupAndLogin(t, app, "alice", "pw")
	bobToken := signupAndLogin(t, app, "bob", "pw")

	doJSON(t, app, "POST", "/deposit", aliceToken, map[string]int{"amount": 100}, fiber.StatusOK, nil)
	doJSON(t, app, "POST", "/withdraw", aliceToken, map[string]int{"amount": 20}, fiber.StatusOK, nil)
	doJSON(t, app, "POST", "/transfer", aliceToken,
		map[string]any{"recipient": "bob", "amount": 30}, fiber.StatusOK, nil)

	var histResp struct {
		Transactions []struct {
			Type        string `json:"type"`
			Amount      int64  `json:"amount"`
			Description string `json:"description"`
			Timestamp   string `json:"timestamp"`
		} `json:"transactions"`
	}
	doJSON(t, app, "GET", "/transactions", aliceToken, nil, fiber.StatusOK, &histResp)
	if len(histResp.Transactions) != 3 {
		t.Fatalf("transactions=%d want=3", len(histResp.Transactions))
	}
	wantTypes := []string{"transfer_out", "withdraw", "deposit"}
	for i, want := range wantTypes {
		if histResp.Transactions[i].Type != want {
			t.Fatalf("type[%d]=%q want=%q", i, histResp.Transactions[i].Type, want)
		}
	}
	if histResp.Transactions[0].Description != "Transferred 30 to bob" {
		t.Fatalf("description=%q", histResp.Transactions[0].Description)
	}
	if histResp.Transactions[0].Timestamp == "" {
		t.Fatal("missing timestamp")
	}

	doJSON(t, app, "GET", "/transactions", bobToken, nil, fiber.StatusOK, &histResp)
	if len(histResp.Transactions) != 1 || histResp.Transactions[0].Type != "transfer_in" {
		t.Fatalf("bob transactions=%+v", histResp.Transactions)
	}
	if histResp.Transactions[0].Description != "Received 30 from alice" {
		t.Fatalf("description=%q", histResp.Transactions[0].Description)
	}
}

// TestBadJSONBody 壞 JSON 一律 400
func TestBadJSONBody(t *testing.T) {
	app := newTestApp(t)
	token := signupAndLogin(t, app, "alice", "pw")

	req, _ := http.NewRequest("POST", "/deposit", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("code=%d want=400", resp.StatusCode)
	}
}
