package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"v3backtester/internal/model"
)

// Filter restricts the loaded events to inclusive block and timestamp
// windows; zero bounds are open.
type Filter struct {
	StartBlock     uint64
	EndBlock       uint64
	StartTimestamp int64
	EndTimestamp   int64
}

func (f Filter) keep(rec *model.Record) bool {
	if f.StartBlock != 0 && rec.BlockNumber < f.StartBlock {
		return false
	}
	if f.EndBlock != 0 && rec.BlockNumber > f.EndBlock {
		return false
	}
	if f.StartTimestamp != 0 && rec.BlockTimestamp < f.StartTimestamp {
		return false
	}
	if f.EndTimestamp != 0 && rec.BlockTimestamp > f.EndTimestamp {
		return false
	}
	return true
}

// Load reads a JSONL event stream, validates each line, applies the filter
// and returns the events in replay order: blockTimestamp, then blockNumber,
// then logIndex, stable across runs. A malformed line fails the load with
// its line number.
func Load(path string, filter Filter, logger *zap.Logger) ([]model.Record, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var records []model.Record
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec model.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: decode event: %w", line, err)
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: invalid event: %w", line, err)
		}
		if !filter.keep(&rec) {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := &records[i], &records[j]
		if a.BlockTimestamp != b.BlockTimestamp {
			return a.BlockTimestamp < b.BlockTimestamp
		}
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})

	logger.Info("events loaded",
		zap.String("path", path),
		zap.Int("lines", line),
		zap.Int("events", len(records)))
	return records, nil
}
