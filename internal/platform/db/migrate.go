package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// Statements: schema.sql を文単位に分割（コメント行は除外）
func Statements() []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(schemaSQL, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Migrate: MySQL にスキーマを適用（IF NOT EXISTS なので何度でも実行可）
func Migrate(ctx context.Context, conn *sql.DB) (int, error) {
	stmts := Statements()
	for i, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return i, fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}
	return len(stmts), nil
}
