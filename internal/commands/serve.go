package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"VMS-backend/internal/attendance"
	"VMS-backend/internal/platform/config"
	"VMS-backend/internal/platform/logger"
)

const serviceName = "attendance-api"

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long:  `Start the attendance API server. TLS is enabled when server.cert and server.key are set (files under config/tls/<mode>/).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

// NewRouter: /healthz と /api/v1 を持つ gin エンジン
func NewRouter(cfg *config.Config, svc *attendance.Service, secret []byte) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logger.Service(serviceName), logger.RequestID(), logger.Middleware(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.IsDev() {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.AllowOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	// /api/v1
	api := r.Group("/api/v1")
	attendance.RegisterRoutes(api, svc, secret)
	return r
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("starting", "mode", cfg.Mode, "version", cfg.Version)

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	r := NewRouter(cfg, b.service(cfg), jwtSecret(cfg))
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Default().Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.Cert != "" && cfg.Server.Key != "" {
			dir := filepath.Join("config", "tls", cfg.Mode)
			logger.Info("listening", "addr", cfg.Server.Addr, "tls", true)
			err = srv.ListenAndServeTLS(filepath.Join(dir, cfg.Server.Cert), filepath.Join(dir, cfg.Server.Key))
		} else {
			logger.Info("listening", "addr", cfg.Server.Addr, "tls", false)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
