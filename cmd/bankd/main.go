package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	http_adapter "github.com/letitbank/go-bank-ledger/internal/app/core/adapter/in/http"
	memory_adapter "github.com/letitbank/go-bank-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/letitbank/go-bank-ledger/internal/app/core/adapter/out/mysql"
	"github.com/letitbank/go-bank-ledger/internal/app/core/usecase"
	"github.com/letitbank/go-bank-ledger/pkg/config"
	"github.com/letitbank/go-bank-ledger/pkg/mysql"
	"github.com/letitbank/go-bank-ledger/pkg/wal"
)

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	JWT struct {
		Secret string         `yaml:"secret"`
		Expiry config.Duration `yaml:"expiry"`
	} `yaml:"jwt"`
	Ledger struct {
		Backend  string         `yaml:"backend"` // "mysql" 或 "memory"
		WALPath  string         `yaml:"wal_path"`
		LockWait config.Duration `yaml:"lock_wait"`
	} `yaml:"ledger"`
	MySQL mysql.Config `yaml:"mysql"`
}

func main() {
	// 1. 載入設定 (.env 可覆寫敏感欄位)
	_ = godotenv.Load()
	cfg := loadConfig()

	// 2. 依設定選擇 Ledger 後端
	var usedLedger usecase.Ledger
	switch cfg.Ledger.Backend {
	case "mysql":
		dbClient, err := mysql.NewClient(cfg.MySQL)
		if err != nil {
			log.Fatalf("Failed to connect to MySQL: %v", err)
		}
		defer dbClient.Close()
		log.Println("Connected to MySQL successfully")

		ledgerRepo := mysql_adapter.NewMySQLLedger(dbClient)
		if err := ledgerRepo.Migrate(); err != nil {
			log.Fatalf("Failed to migrate schema: %v", err)
		}
		usedLedger = ledgerRepo
	case "memory":
		walFile, err := wal.NewWAL(cfg.Ledger.WALPath)
		if err != nil {
			log.Fatalf("Failed to init WAL: %v", err)
		}
		// 程式結束時關閉 WAL
		defer walFile.Close()

		memLedger, err := memory_adapter.NewMemoryLedger(walFile, time.Duration(cfg.Ledger.LockWait))
		if err != nil {
			log.Fatalf("Failed to init MemoryLedger: %v", err)
		}
		usedLedger = memLedger
	default:
		log.Fatalf("Invalid ledger backend: %q", cfg.Ledger.Backend)
	}

	// 3. 初始化 UseCase
	bank := usecase.NewBank(usedLedger)

	// 4. 初始化 HTTP Adapter (Driving Adapter)
	server := http_adapter.NewServer(bank, cfg.JWT.Secret, time.Duration(cfg.JWT.Expiry))

	app := fiber.New()
	server.RegisterRoutes(app)

	// Graceful Shutdown
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.HTTP.Addr)
		if err := app.Listen(cfg.HTTP.Addr); err != nil {
			log.Fatalf("failed to serve: %v", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server exited")
}

func loadConfig() Config {
	cfgData, err := os.ReadFile("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}

	// 補全預設配置 (如果 yaml 沒寫)
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.JWT.Expiry == 0 {
		cfg.JWT.Expiry = config.Duration(time.Hour)
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = "memory"
	}
	if cfg.Ledger.WALPath == "" {
		cfg.Ledger.WALPath = "wal.log"
	}
	if cfg.Ledger.LockWait == 0 {
		cfg.Ledger.LockWait = config.Duration(3 * time.Second)
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.MySQL.ConnMaxLifetime == 0 {
		cfg.MySQL.ConnMaxLifetime = config.Duration(30 * time.Minute)
	}

	// JWT secret 優先讀環境變數，避免進版控
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
	if cfg.JWT.Secret == "" {
		log.Fatal("JWT secret is required (config jwt.secret or env JWT_SECRET)")
	}
	return cfg
}
