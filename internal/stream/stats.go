package stream

import (
	"go.uber.org/zap"

	"v3backtester/internal/model"
)

// Stats summarizes an event stream.
type Stats struct {
	Total        int                     `json:"total"`
	ByType       map[model.EventType]int `json:"by_type"`
	MinBlock     uint64                  `json:"min_block"`
	MaxBlock     uint64                  `json:"max_block"`
	MinTimestamp int64                   `json:"min_timestamp"`
	MaxTimestamp int64                   `json:"max_timestamp"`
}

// Collect loads the stream and computes summary statistics.
func Collect(path string, logger *zap.Logger) (Stats, error) {
	records, err := Load(path, Filter{}, logger)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ByType: make(map[model.EventType]int)}
	for i := range records {
		rec := &records[i]
		stats.Total++
		stats.ByType[rec.Type]++

		if stats.MinBlock == 0 || rec.BlockNumber < stats.MinBlock {
			stats.MinBlock = rec.BlockNumber
		}
		if rec.BlockNumber > stats.MaxBlock {
			stats.MaxBlock = rec.BlockNumber
		}
		if stats.MinTimestamp == 0 || rec.BlockTimestamp < stats.MinTimestamp {
			stats.MinTimestamp = rec.BlockTimestamp
		}
		if rec.BlockTimestamp > stats.MaxTimestamp {
			stats.MaxTimestamp = rec.BlockTimestamp
		}
	}
	return stats, nil
}
