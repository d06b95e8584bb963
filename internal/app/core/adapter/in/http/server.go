package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/letitbank/go-bank-ledger/internal/app/core/domain"
	"github.com/letitbank/go-bank-ledger/internal/app/core/usecase"
	"github.com/letitbank/go-bank-ledger/pkg/token"
)

// Server HTTP in-adapter，路由與回應格式沿用原本的 REST API
type Server struct {
	bank        *usecase.Bank
	jwtSecret   string
	tokenExpiry time.Duration
}

func NewServer(bank *usecase.Bank, jwtSecret string, tokenExpiry time.Duration) *Server {
	return &Server{
		bank:        bank,
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
	}
}

// RegisterRoutes 掛上所有路由，/balance 以下皆需 JWT
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Post("/register", s.Register)
	app.Post("/login", s.Login)

	auth := JwtAuthMiddleware(s.jwtSecret)
	app.Get("/balance", auth, s.Balance)
	app.Post("/deposit", auth, s.Deposit)
	app.Post("/withdraw", auth, s.Withdraw)
	app.Post("/transfer", auth, s.Transfer)
	app.Get("/transactions", auth, s.Transactions)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type transferRequest struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// Register 註冊並開戶
func (s *Server) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Missing JSON in request"})
	}

	_, _, err := s.bank.Register(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"msg": "User already exists"})
		}
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"msg": "User created successfully"})
}

// Login 驗證帳密並簽發存取權杖
func (s *Server) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Missing JSON in request"})
	}

	user, _, err := s.bank.Authenticate(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"msg": "Bad username or password"})
		}
		return s.fail(c, err)
	}

	accessToken, err := token.CreateAccessToken(user, s.jwtSecret, s.tokenExpiry)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"access_token": accessToken})
}

// Balance 查詢餘額
func (s *Server) Balance(c *fiber.Ctx) error {
	account, err := s.accountOf(c)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"balance": account.Balance})
}

// Deposit 存款
func (s *Server) Deposit(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Missing JSON in request"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid deposit amount"})
	}

	account, err := s.accountOf(c)
	if err != nil {
		return s.fail(c, err)
	}

	balance, err := s.bank.Deposit(c.UserContext(), account.ID, req.Amount)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"msg":     fmt.Sprintf("Deposited %d", req.Amount),
		"balance": balance,
	})
}

// Withdraw 提款
func (s *Server) Withdraw(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Missing JSON in request"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid withdrawal amount"})
	}

	account, err := s.accountOf(c)
	if err != nil {
		return s.fail(c, err)
	}

	balance, err := s.bank.Withdraw(c.UserContext(), account.ID, req.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Insufficient funds"})
		}
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"msg":     fmt.Sprintf("Withdrew %d", req.Amount),
		"balance": balance,
	})
}

// Transfer 轉帳給指定使用者
func (s *Server) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Missing JSON in request"})
	}
	if req.Amount <= 0 || req.Recipient == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Invalid transfer data"})
	}

	account, err := s.accountOf(c)
	if err != nil {
		return s.fail(c, err)
	}

	balance, err := s.bank.Transfer(c.UserContext(), account.ID, req.Recipient, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientBalance):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Insufficient funds"})
		case errors.Is(err, domain.ErrRecipientNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"msg": "Recipient not found"})
		case errors.Is(err, domain.ErrRecipientAccountNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"msg": "Recipient account not found"})
		case errors.Is(err, domain.ErrSelfTransfer):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": "Cannot transfer to own account"})
		}
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"msg":     fmt.Sprintf("Transferred %d to %s", req.Amount, req.Recipient),
		"balance": balance,
	})
}

// Transactions 查詢帳目，新到舊
func (s *Server) Transactions(c *fiber.Ctx) error {
	account, err := s.accountOf(c)
	if err != nil {
		return s.fail(c, err)
	}

	entries, err := s.bank.ListEntries(c.UserContext(), account.ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"transactions": entries})
}

// accountOf 從 JWT 解出的使用者找到其帳戶 (Identity Boundary)
func (s *Server) accountOf(c *fiber.Ctx) (*domain.Account, error) {
	userID, ok := c.Locals(localsUserID).(int64)
	if !ok {
		return nil, errors.New("missing user id in request context")
	}
	return s.bank.AccountOf(c.UserContext(), userID)
}

// fail 將業務錯誤映射為穩定的狀態碼；非預期錯誤一律 500 且不外洩細節
func (s *Server) fail(c *fiber.Ctx, err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, domain.ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"msg": err.Error()})
	case errors.Is(err, domain.ErrAccountNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"msg": "Account not found"})
	case errors.Is(err, domain.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"msg": "User not found"})
	case errors.Is(err, domain.ErrBusy):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"msg": "Ledger busy, try again"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"msg": "Internal server error"})
	}
}
