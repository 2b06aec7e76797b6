package apiserver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func dialectFor(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return dialectPostgres
	}
	return dialectSQLite
}

func (d dialect) driver() string {
	if d == dialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// rebind 把 ? 占位符改写成 postgres 的 $n
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// 主键与浮点列类型按方言替换
func (d dialect) ddl(stmt string) string {
	if d == dialectPostgres {
		stmt = strings.ReplaceAll(stmt, "{{pk}}", "BIGSERIAL PRIMARY KEY")
		stmt = strings.ReplaceAll(stmt, "{{real}}", "DOUBLE PRECISION")
		stmt = strings.ReplaceAll(stmt, "{{bool}}", "BOOLEAN")
		return stmt
	}
	stmt = strings.ReplaceAll(stmt, "{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT")
	stmt = strings.ReplaceAll(stmt, "{{real}}", "REAL")
	stmt = strings.ReplaceAll(stmt, "{{bool}}", "INTEGER")
	return stmt
}

func (s *Server) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stmts []string
	if s.dialect == dialectSQLite {
		stmts = append(stmts,
			`PRAGMA journal_mode=WAL;`,
			`PRAGMA foreign_keys=ON;`,
		)
	}
	stmts = append(stmts,
		`
CREATE TABLE IF NOT EXISTS portfolios (
  id {{pk}},
  name TEXT NOT NULL,
  cash_balance {{real}} NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS positions (
  id {{pk}},
  portfolio_id BIGINT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
  symbol TEXT NOT NULL,
  exchange TEXT NOT NULL,
  quantity {{real}} NOT NULL,
  avg_price {{real}} NOT NULL,
  current_price {{real}} NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_portfolio ON positions(portfolio_id);`,
		`
CREATE TABLE IF NOT EXISTS trades (
  id {{pk}},
  portfolio_id BIGINT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
  symbol TEXT NOT NULL,
  exchange TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity {{real}} NOT NULL,
  price {{real}} NOT NULL,
  commission {{real}} NOT NULL DEFAULT 0,
  strategy TEXT NOT NULL DEFAULT '',
  executed_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_executed ON trades(executed_at);`,
		`
CREATE TABLE IF NOT EXISTS strategies (
  id {{pk}},
  name TEXT NOT NULL UNIQUE,
  description TEXT NOT NULL DEFAULT '',
  is_active {{bool}} NOT NULL,
  parameters TEXT NOT NULL DEFAULT '{}',
  performance_metrics TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS market_data (
  id {{pk}},
  symbol TEXT NOT NULL,
  exchange TEXT NOT NULL,
  timeframe TEXT NOT NULL,
  ts TEXT NOT NULL,
  open_price {{real}} NOT NULL,
  high_price {{real}} NOT NULL,
  low_price {{real}} NOT NULL,
  close_price {{real}} NOT NULL,
  volume {{real}} NOT NULL DEFAULT 0,
  UNIQUE(symbol, exchange, timeframe, ts)
);`,
	)

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, s.dialect.ddl(stmt)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// 时间统一以定长 UTC 文本存储，字典序即时间序
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
