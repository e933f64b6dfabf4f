package database

import (
	"context"
	"sort"

	"derivbot/src/learning"
	"derivbot/src/risk"
)

// ArchiveTrade 把一笔已平仓的持仓转成成交记录落库
func (s *Store) ArchiveTrade(ctx context.Context, pos *risk.Position, strategy string) error {
	record := &TradeRecord{
		PositionID:      pos.ID,
		Symbol:          pos.Symbol,
		Side:            string(pos.Direction),
		Stake:           pos.Stake,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       pos.ExitPrice,
		PnLPercent:      pos.FinalPnLPct,
		ExitReason:      pos.ExitReason,
		Outcome:         string(pos.Outcome()),
		MartingaleLevel: pos.MartingaleLevel,
		IsReverse:       pos.IsReverse,
		Strategy:        strategy,
		EntryTime:       pos.EntryTime,
		ExitTime:        pos.ExitTime,
	}
	return s.SaveTrade(ctx, record)
}

// SavePerformance 持久化学习引擎的指标表现快照
func (s *Store) SavePerformance(ctx context.Context, snapshot map[string]learning.Performance) error {
	records := make([]PerformanceRecord, 0, len(snapshot))
	for name, p := range snapshot {
		records = append(records, PerformanceRecord{Name: name, Wins: p.Wins, Total: p.Total})
	}
	// 固定顺序，方便测试和排查
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return s.SaveIndicatorPerformance(ctx, records)
}

// LoadPerformance 读出指标表现快照，用于重启后恢复学习状态
func (s *Store) LoadPerformance(ctx context.Context) (map[string]learning.Performance, error) {
	records, err := s.LoadIndicatorPerformance(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]learning.Performance, len(records))
	for _, r := range records {
		out[r.Name] = learning.Performance{Wins: r.Wins, Total: r.Total}
	}
	return out, nil
}
