package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Store PostgreSQL 持久层：成交历史与指标表现
type Store struct {
	db *sql.DB
}

// TradeRecord 成交记录
type TradeRecord struct {
	ID              int64           `json:"id"`
	PositionID      string          `json:"position_id"`
	Symbol          string          `json:"symbol"`
	Side            string          `json:"side"`
	Stake           decimal.Decimal `json:"stake"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	ExitPrice       decimal.Decimal `json:"exit_price"`
	PnLPercent      decimal.Decimal `json:"pnl_percent"`
	ExitReason      string          `json:"exit_reason"`
	Outcome         string          `json:"outcome"`
	MartingaleLevel int             `json:"martingale_level"`
	IsReverse       bool            `json:"is_reverse"`
	Strategy        string          `json:"strategy"`
	EntryTime       time.Time       `json:"entry_time"`
	ExitTime        time.Time       `json:"exit_time"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PerformanceRecord 指标表现计数
type PerformanceRecord struct {
	Name  string `json:"name"`
	Wins  int    `json:"wins"`
	Total int    `json:"total"`
}

// NewStore 创建数据库连接
func NewStore(host, port, user, password, dbname string, sslmode string) (*Store, error) {
	if sslmode == "" {
		sslmode = "disable"
	}

	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTables 创建数据表
func (s *Store) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			position_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(32) NOT NULL,
			side VARCHAR(8) NOT NULL,
			stake DECIMAL(20,8) NOT NULL,
			entry_price DECIMAL(20,8) NOT NULL,
			exit_price DECIMAL(20,8) NOT NULL,
			pnl_percent DECIMAL(20,8) NOT NULL,
			exit_reason VARCHAR(32) NOT NULL,
			outcome VARCHAR(8) NOT NULL,
			martingale_level INTEGER NOT NULL DEFAULT 0,
			is_reverse BOOLEAN NOT NULL DEFAULT FALSE,
			strategy VARCHAR(64) NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_time ON trades (symbol, exit_time DESC)`,
		`CREATE TABLE IF NOT EXISTS indicator_performance (
			name VARCHAR(64) PRIMARY KEY,
			wins INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// SaveTrade 保存一笔已平仓的成交
func (s *Store) SaveTrade(ctx context.Context, trade *TradeRecord) error {
	query := `
		INSERT INTO trades (
			position_id, symbol, side, stake, entry_price, exit_price,
			pnl_percent, exit_reason, outcome, martingale_level, is_reverse,
			strategy, entry_time, exit_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.db.ExecContext(ctx, query,
		trade.PositionID, trade.Symbol, trade.Side, trade.Stake,
		trade.EntryPrice, trade.ExitPrice, trade.PnLPercent,
		trade.ExitReason, trade.Outcome, trade.MartingaleLevel,
		trade.IsReverse, trade.Strategy, trade.EntryTime, trade.ExitTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// RecentTrades 按平仓时间倒序取最近的成交
func (s *Store) RecentTrades(ctx context.Context, symbol string, limit int) ([]*TradeRecord, error) {
	query := `
		SELECT id, position_id, symbol, side, stake, entry_price, exit_price,
		       pnl_percent, exit_reason, outcome, martingale_level, is_reverse,
		       strategy, entry_time, exit_time, created_at
		FROM trades
		WHERE symbol = $1
		ORDER BY exit_time DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []*TradeRecord
	for rows.Next() {
		t := &TradeRecord{}
		err := rows.Scan(
			&t.ID, &t.PositionID, &t.Symbol, &t.Side, &t.Stake,
			&t.EntryPrice, &t.ExitPrice, &t.PnLPercent, &t.ExitReason,
			&t.Outcome, &t.MartingaleLevel, &t.IsReverse, &t.Strategy,
			&t.EntryTime, &t.ExitTime, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveIndicatorPerformance 覆盖保存指标表现计数
func (s *Store) SaveIndicatorPerformance(ctx context.Context, records []PerformanceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO indicator_performance (name, wins, total, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (name)
		DO UPDATE SET
			wins = EXCLUDED.wins,
			total = EXCLUDED.total,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Name, r.Wins, r.Total); err != nil {
			return fmt.Errorf("failed to upsert indicator performance: %w", err)
		}
	}

	return tx.Commit()
}

// LoadIndicatorPerformance 加载全部指标表现计数
func (s *Store) LoadIndicatorPerformance(ctx context.Context) ([]PerformanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, wins, total FROM indicator_performance`)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicator performance: %w", err)
	}
	defer rows.Close()

	var records []PerformanceRecord
	for rows.Next() {
		var r PerformanceRecord
		if err := rows.Scan(&r.Name, &r.Wins, &r.Total); err != nil {
			return nil, fmt.Errorf("failed to scan indicator performance: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
