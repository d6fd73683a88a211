// Package commands はサーバ・運用・クライアントの cobra サブコマンドをまとめる。
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"VMS-backend/internal/platform/config"
	"VMS-backend/internal/platform/logger"
)

// devJWTSecret: dev モードで auth.jwt_secret 未設定の時だけ使う
const devJWTSecret = "vms-dev-secret-do-not-use-in-release"

var configPath = config.DefaultPath

// RegisterCommands: rootCmd に全サブコマンドを登録する
func RegisterCommands(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config.yaml")

	rootCmd.AddCommand(ServeCmd)
	rootCmd.AddCommand(MigrateCmd)
	rootCmd.AddCommand(TokenCmd)
	rootCmd.AddCommand(ScanCmd)
	rootCmd.AddCommand(CodeCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return cfg, nil
}

func jwtSecret(cfg *config.Config) []byte {
	if cfg.Auth.JWTSecret == "" && cfg.IsDev() {
		logger.Warn("auth.jwt_secret is empty, using the development secret")
		return []byte(devJWTSecret)
	}
	return []byte(cfg.Auth.JWTSecret)
}
