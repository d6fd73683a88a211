package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"VMS-backend/internal/attendance"
	"VMS-backend/internal/platform/config"
	"VMS-backend/internal/platform/db"
	"VMS-backend/internal/platform/events"
	"VMS-backend/internal/platform/logger"
	"VMS-backend/internal/platform/ratelimit"
	"VMS-backend/internal/qr"
)

// backend: serve / migrate が共有する接続群。close で全部閉じる
type backend struct {
	repo      attendance.Repository
	mysql     *sql.DB
	sqlite    *gorm.DB
	gormStore *attendance.GormStore
	limiter   ratelimit.Limiter
	publisher events.Publisher
	redis     *redis.Client
}

func openStore(cfg *config.Config) (*backend, error) {
	b := &backend{}
	switch cfg.DB.Driver {
	case config.DriverMySQL:
		conn, err := db.Connect(cfg.DB)
		if err != nil {
			return nil, err
		}
		b.mysql = conn
		b.repo = attendance.NewMySQLStore(conn)
		logger.Info("connected to database", "driver", cfg.DB.Driver, "dbname", cfg.DB.DBName)
	default:
		gdb, err := db.OpenSQLite(cfg.DB.SQLitePath)
		if err != nil {
			return nil, err
		}
		store := attendance.NewGormStore(gdb)
		if err := store.AutoMigrate(); err != nil {
			_ = db.CloseSQLite(gdb)
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		b.sqlite = gdb
		b.gormStore = store
		b.repo = store
		logger.Info("opened database", "driver", cfg.DB.Driver, "path", cfg.DB.SQLitePath)
	}
	return b, nil
}

// openBackend: ストア + リミッタ + イベント発行
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	b.limiter = ratelimit.NewMemory(cfg.RateLimit.CodeAttempts, cfg.RateLimit.Window)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// 多重化できないだけなのでプロセス内のリミッタで続行
			logger.Warn("redis unavailable, using in-process rate limiter", "addr", cfg.Redis.Addr, "error", err)
			_ = client.Close()
		} else {
			b.redis = client
			b.limiter = ratelimit.NewRedis(client, cfg.RateLimit.CodeAttempts, cfg.RateLimit.Window)
		}
	}

	b.publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			logger.Warn("nats unavailable, attendance events disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			b.publisher = pub
		}
	}
	return b, nil
}

func (b *backend) service(cfg *config.Config) *attendance.Service {
	a := cfg.Attendance
	policy := attendance.Policy{
		CheckInTokenTTL:  a.CheckInTokenTTL,
		CheckOutTokenTTL: a.CheckOutTokenTTL,
		CodeTTL:          a.CodeTTL,
		MaxClockSkew:     a.MaxClockSkew,
		ScanBaseURL:      a.ScanBaseURL,
	}
	opts := []attendance.Option{attendance.WithRenderer(qr.NewRenderer(a.QRSize))}
	if cfg.RateLimit.CodeAttempts > 0 && b.limiter != nil {
		opts = append(opts, attendance.WithLimiter(b.limiter))
	}
	if b.publisher != nil {
		opts = append(opts, attendance.WithPublisher(b.publisher))
	}
	return attendance.NewService(b.repo, policy, opts...)
}

func (b *backend) close() {
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			logger.Warn("close publisher", "error", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}
	if b.mysql != nil {
		if err := b.mysql.Close(); err != nil {
			logger.Warn("close database", "error", err)
		}
	}
	if b.sqlite != nil {
		if err := db.CloseSQLite(b.sqlite); err != nil {
			logger.Warn("close database", "error", err)
		}
	}
}
