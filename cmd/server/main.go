package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // 确保在精简镜像中也能识别时区

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/user/lunatv/internal/config"
	"github.com/user/lunatv/internal/handler"
	"github.com/user/lunatv/internal/middleware"
	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/router"
	"github.com/user/lunatv/internal/storage"
)

func main() {
	// 加载环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("未找到 .env 文件，使用系统环境变量")
	}

	// 加载配置
	cfg := config.Load()

	// 初始化存储后端
	backend, err := newBackend(cfg)
	if err != nil {
		log.Fatalf("存储初始化失败: %v", err)
	}
	defer backend.Close()

	svc := storage.NewService(backend)

	// 确保站长账号存在
	if err := ensureRootUser(svc, cfg); err != nil {
		log.Fatalf("站长账号初始化失败: %v", err)
	}

	// 初始化 Gin
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// 启用 gzip，默认压缩级别
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 设置 Session 中间件
	store := cookie.NewStore([]byte(cfg.AppSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 天
		HttpOnly: true,
		Secure:   false, // 关键：非 HTTPS 环境必须为 false
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("lunatv_session", store))

	// 中间件
	r.Use(middleware.Logger())
	r.Use(middleware.Security())
	r.Use(middleware.CORS())

	// 初始化 Handler
	h := handler.NewHandler(svc, cfg)

	// 启动定时对账任务
	h.Reconcile.Start()

	// 注册路由
	router.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// 在 goroutine 中启动服务器，这样我们就可以监听信号
	go func() {
		log.Printf("服务器启动于 http://localhost:%s (存储: %s)", cfg.Port, cfg.StorageType)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	// kill (no parameter) 默认发送 syscall.SIGTERM
	// kill -2 是 syscall.SIGINT
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("正在关闭服务器...")

	// 5 秒超时上下文用于关闭过程
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("服务器强制关闭:", err)
	}

	log.Println("服务器已退出")
}

// newBackend 按配置选择存储后端
func newBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageType {
	case "memory":
		return storage.NewMemoryBackend(), nil
	case "redis":
		return storage.NewRedisBackend(cfg.RedisURL)
	case "badger":
		return storage.NewBadgerBackend(cfg.BadgerPath)
	case "postgres":
		return storage.NewPostgresBackend(cfg.DatabaseURL)
	default:
		return nil, errors.New("未知的存储类型: " + cfg.StorageType)
	}
}

// ensureRootUser 注册环境变量指定的站长账号（已存在时跳过）
func ensureRootUser(svc *storage.Service, cfg *config.Config) error {
	if cfg.RootUsername == "" || cfg.RootPassword == "" {
		log.Println("未配置站长账号，跳过初始化")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := svc.RegisterUser(ctx, cfg.RootUsername, cfg.RootPassword)
	if errors.Is(err, storage.ErrUserExists) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("已创建站长账号 %s", cfg.RootUsername)
	meta := &model.UserMeta{CreatedAt: time.Now().UnixMilli()}
	return svc.SetUserMeta(ctx, cfg.RootUsername, meta)
}
