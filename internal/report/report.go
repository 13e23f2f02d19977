package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"v3backtester/internal/backtest"
	"v3backtester/internal/replay"
)

// Artifact is the summary document written next to the series tables.
type Artifact struct {
	Summary  backtest.Summary     `json:"summary"`
	Metrics  Metrics              `json:"metrics"`
	Warnings []replay.Discrepancy `json:"warnings,omitempty"`
}

// Write emits the run's artifacts into dir, named by strategy:
// <strategy>_value.csv, <strategy>_price.csv, <strategy>_actions.csv and
// <strategy>_summary.json.
func Write(dir string, result *backtest.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	name := result.Summary.Strategy

	if err := writeValueTable(filepath.Join(dir, name+"_value.csv"), result); err != nil {
		return err
	}
	if err := writeSeries(filepath.Join(dir, name+"_price.csv"), "price", result.PriceSeries); err != nil {
		return err
	}
	if err := writeActions(filepath.Join(dir, name+"_actions.csv"), result.Actions); err != nil {
		return err
	}

	artifact := Artifact{
		Summary:  result.Summary,
		Metrics:  ForResult(result),
		Warnings: result.Discrepancies,
	}
	return writeJSON(filepath.Join(dir, name+"_summary.json"), artifact)
}

// writeValueTable emits the main per-event table: portfolio value plus the
// fee accrual and active-range columns sampled at the same instants.
func writeValueTable(path string, result *backtest.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{"timestamp", "portfolio_value", "fees_accum_quote", "impermanent_loss", "tick_lower", "tick_upper"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, p := range result.ValueSeries {
		row := []string{
			strconv.FormatInt(p.Timestamp, 10),
			strconv.FormatFloat(p.Value, 'f', -1, 64),
			"", "", "", "",
		}
		if i < len(result.FeesSeries) {
			row[2] = strconv.FormatFloat(result.FeesSeries[i].Value, 'f', -1, 64)
		}
		if i < len(result.ILSeries) {
			row[3] = strconv.FormatFloat(result.ILSeries[i].Value, 'f', -1, 64)
		}
		if i < len(result.RangeSeries) {
			row[4] = strconv.Itoa(result.RangeSeries[i].TickLower)
			row[5] = strconv.Itoa(result.RangeSeries[i].TickUpper)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeSeries(path, column string, series []backtest.Point) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"timestamp", column}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range series {
		row := []string{
			strconv.FormatInt(p.Timestamp, 10),
			strconv.FormatFloat(p.Value, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeActions(path string, actions []backtest.ActionRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"timestamp", "kind", "tick_lower", "tick_upper", "cost_quote", "dropped", "reason"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, a := range actions {
		row := []string{
			strconv.FormatInt(a.Timestamp, 10),
			a.Kind,
			strconv.Itoa(a.TickLower),
			strconv.Itoa(a.TickUpper),
			strconv.FormatFloat(a.CostQuote, 'f', -1, 64),
			strconv.FormatBool(a.Dropped),
			a.Reason,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
