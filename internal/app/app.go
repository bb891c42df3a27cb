package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/mahasiswa/internal/client"
	"github.com/hitoshi/mahasiswa/internal/config"
	"github.com/hitoshi/mahasiswa/internal/database"
	"github.com/hitoshi/mahasiswa/internal/handler"
	"github.com/hitoshi/mahasiswa/internal/logger"
	"github.com/hitoshi/mahasiswa/internal/metrics"
	"github.com/hitoshi/mahasiswa/internal/middleware"
	"github.com/hitoshi/mahasiswa/internal/repository"
	"github.com/hitoshi/mahasiswa/internal/security"
	"github.com/hitoshi/mahasiswa/internal/student"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数（.envを含む）からConfigを読み込んでログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return fmt.Errorf("%w\n\n%s", err, Usage())
	}

	// 設定を必要としないコマンドはフル初期化をスキップする
	if !cmd.LoadsConfig() {
		switch cmd {
		case CommandHelp:
			if w == nil {
				w = os.Stdout
			}
			_, err := io.WriteString(w, Usage())
			return err
		default:
			port, err := config.LoadServerPort()
			if err != nil {
				return fmt.Errorf("healthcheck: %w", err)
			}
			return runHealthcheck(context.Background(), port)
		}
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("environment", cfg.Environment),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(context.Background(), cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 必要に応じてデータベースを作成し、マイグレーションを適用してからHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. スキーマの準備
	if err := runMigrate(ctx, cfg); err != nil {
		return err
	}

	// 2. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 3. 依存関係の組み立て
	reg := prometheus.NewRegistry()
	router, limiter := buildRouter(cfg, db, reg, slog.Default())
	defer limiter.Stop()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	servers := []*http.Server{server}

	if cfg.MetricsPort != "" {
		servers = append(servers, &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			slog.Info("HTTP server starting", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
		}()
	}

	var serveErr error
	select {
	case <-stop:
		slog.Info("shutting down API server...")
	case serveErr = <-errCh:
		slog.Error("server listen error", slog.String("error", serveErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
	}
	if serveErr != nil {
		return serveErr
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildRouter はリポジトリからルーターまでの依存関係を組み立てる。
// 戻り値のRateLimiterはレート制限が無効の場合nil（Stopはnilでも安全）。
func buildRouter(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, log *slog.Logger) (http.Handler, *middleware.RateLimiter) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	repo := repository.NewPostgresStudentRepo(db)
	service := student.NewService(repo,
		student.WithMarkupDetector(security.NewMarkupDetector()),
		student.WithMetrics(collector),
		student.WithLogger(log),
	)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitPerMinute))
		log.Info("rate limiting enabled", slog.Int("per_minute", cfg.RateLimitPerMinute))
	}

	deps := &handler.RouterDeps{
		StudentService:    service,
		Logger:            log,
		Metrics:           collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
	}
	// 専用ポートがない場合のみAPIと同じサーバーで公開する
	if cfg.MetricsPort == "" {
		deps.MetricsHandler = metrics.Handler(reg)
	}

	return handler.NewRouter(deps), limiter
}

// runMigrate はデータベースマイグレーションを実行する。
// DB_CREATE_DATABASEが有効な場合は先にデータベースを作成する。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	if cfg.DBCreateDatabase {
		if err := database.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to ensure database: %w", err)
		}
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if result.Applied() {
		slog.Info("database migrations applied",
			slog.Uint64("from_version", uint64(result.From)),
			slog.Uint64("to_version", uint64(result.To)),
		)
	} else {
		slog.Info("database schema already up to date",
			slog.Uint64("version", uint64(result.To)),
		)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /api/health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	c := client.New(fmt.Sprintf("http://localhost:%s/api", port),
		client.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))

	if _, err := c.Health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
