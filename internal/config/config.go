package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config 应用配置
type Config struct {
	Env       string
	AppSecret string
	Port      string
	SiteName  string

	// 存储后端：memory / redis / badger / postgres
	StorageType string
	RedisURL    string
	BadgerPath  string
	DatabaseURL string

	// 站长账号，启动时自动注册
	RootUsername string
	RootPassword string

	OpenRegister      bool
	JWTExpiry         time.Duration
	ReconcileInterval time.Duration
}

// Load 加载配置
func Load() *Config {
	expiryHours, _ := strconv.Atoi(getEnv("JWT_EXPIRY_HOURS", "72"))
	reconcileHours, _ := strconv.Atoi(getEnv("RECONCILE_INTERVAL_HOURS", "6"))

	dbUser := getEnv("DB_USER", "postgres")
	dbPass := getEnv("DB_PASSWORD", "postgres")
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_NAME", "lunatv")
	dbSSL := getEnv("DB_SSLMODE", "disable")

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPass, dbHost, dbPort, dbName, dbSSL)

	appSecret := getEnv("APP_SECRET", getEnv("JWT_SECRET", "your-secret-key-change-in-production"))

	if getEnv("APP_ENV", "development") == "production" && appSecret == "your-secret-key-change-in-production" {
		fmt.Println("【严重警告】生产环境正在使用默认密钥！请立即设置 APP_SECRET 环境变量。")
	}

	return &Config{
		Env:       getEnv("APP_ENV", "development"),
		AppSecret: appSecret,
		Port:      getEnv("PORT", "5005"),
		SiteName:  getEnv("SITE_NAME", "LunaTV"),

		StorageType: getEnv("STORAGE_TYPE", "memory"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		BadgerPath:  getEnv("BADGER_PATH", "./data/badger"),
		DatabaseURL: dbURL,

		RootUsername: getEnv("USERNAME", "admin"),
		RootPassword: getEnv("PASSWORD", ""),

		OpenRegister:      getEnv("OPEN_REGISTER", "false") == "true",
		JWTExpiry:         time.Duration(expiryHours) * time.Hour,
		ReconcileInterval: time.Duration(reconcileHours) * time.Hour,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
