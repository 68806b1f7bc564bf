package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken string
	MySQLDSN string

	SuperAdminID   int64
	AdminCommand   string
	TrialAllowance int

	RobokassaMerchantLogin string
	RobokassaPassword1     string
	RobokassaPassword2     string
	RobokassaTestMode      bool
	RobokassaPaymentURL    string
	RobokassaStatusURL     string

	CritiqueBaseURL        string
	CritiqueAPIKeys        []string
	CritiqueModel          string
	CritiqueTranscribeMode bool

	TasksWebhookURL string

	PricesFile string
	PromptFile string

	RequestTimeout time.Duration
	SweepInterval  time.Duration
	SweepMaxAge    time.Duration

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AdminCommand:           getEnv("ADMIN_COMMAND", "adminpanel"),
		TrialAllowance:         getInt("TRIAL_TASK_ALLOWANCE", 2),
		RobokassaTestMode:      getBool("ROBOKASSA_TEST_MODE", true),
		RobokassaPaymentURL:    getEnv("ROBOKASSA_PAYMENT_URL", "https://auth.robokassa.ru/Merchant/Index.aspx"),
		RobokassaStatusURL:     getEnv("ROBOKASSA_STATUS_URL", "https://auth.robokassa.ru/Merchant/WebService/Service.asmx/OpStateExt"),
		CritiqueBaseURL:        getEnv("CRITIQUE_BASE_URL", "https://api.kie.ai"),
		CritiqueModel:          getEnv("CRITIQUE_MODEL", "gemini-1.5-flash"),
		CritiqueTranscribeMode: getBool("CRITIQUE_TRANSCRIBE_FIRST", false),
		PricesFile:             getEnv("PRICES_FILE", "prices.json"),
		PromptFile:             getEnv("PROMPT_FILE", "prompt.txt"),
		RequestTimeout:         time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		SweepInterval:          time.Minute * time.Duration(getInt("PAYMENT_SWEEP_INTERVAL_MINUTES", 60)),
		SweepMaxAge:            time.Hour * time.Duration(getInt("PAYMENT_SWEEP_MAX_AGE_HOURS", 24)),
		AdminListenAddr:        getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:          getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:          getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:             getEnv("S3_ENDPOINT", ""),
		S3Region:               os.Getenv("S3_REGION"),
		S3AccessKey:            os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:            os.Getenv("S3_SECRET_KEY"),
		S3Bucket:               os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:        os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:         getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:               getEnv("S3_PREFIX", "voice"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.SuperAdminID = getInt64("SUPER_ADMIN_ID", 0)
	cfg.RobokassaMerchantLogin = os.Getenv("ROBOKASSA_MERCHANT_LOGIN")
	cfg.RobokassaPassword1 = os.Getenv("ROBOKASSA_PASSWORD_1")
	cfg.RobokassaPassword2 = os.Getenv("ROBOKASSA_PASSWORD_2")
	cfg.TasksWebhookURL = os.Getenv("TASKS_WEBHOOK_URL")
	cfg.CritiqueAPIKeys = splitKeys(os.Getenv("CRITIQUE_API_KEYS"))

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.SuperAdminID == 0 {
		missing = append(missing, "SUPER_ADMIN_ID")
	}
	if cfg.RobokassaMerchantLogin == "" {
		missing = append(missing, "ROBOKASSA_MERCHANT_LOGIN")
	}
	if cfg.RobokassaPassword1 == "" {
		missing = append(missing, "ROBOKASSA_PASSWORD_1")
	}
	if cfg.RobokassaPassword2 == "" {
		missing = append(missing, "ROBOKASSA_PASSWORD_2")
	}
	if len(cfg.CritiqueAPIKeys) == 0 {
		missing = append(missing, "CRITIQUE_API_KEYS")
	}
	if cfg.TasksWebhookURL == "" {
		missing = append(missing, "TASKS_WEBHOOK_URL")
	}
	if cfg.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if cfg.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func splitKeys(raw string) []string {
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely on process environment is fine.
	return nil
}
