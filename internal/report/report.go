// Package report renders movement analyses as CSV, JSON or terminal tables.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/movements/internal/domain"
)

// Output formats.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// isoLayout matches JavaScript's Date.toISOString.
const isoLayout = "2006-01-02T15:04:05.000Z"

var csvHeader = []string{
	"idx",
	"timestamp",
	"timestamp_iso",
	"type",
	"direction",
	"price_observed",
	"threshold_level",
	"prev_neutral",
	"new_neutral",
	"diff_from_prev",
}

// WriteCSV writes the event log of the report, one row per movement event.
func WriteCSV(w io.Writer, r *domain.AnalysisReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "failed to write csv header")
	}

	if r != nil && r.Movements != nil {
		for _, e := range r.Movements.Events {
			row := []string{
				strconv.Itoa(e.Index),
				strconv.FormatInt(e.Timestamp, 10),
				time.UnixMilli(e.Timestamp).UTC().Format(isoLayout),
				string(e.Tier),
				string(e.Direction),
				formatFloat(e.ObservedPrice),
				formatFloat(e.ThresholdLevel),
				formatFloat(e.PreviousReference),
				formatFloat(e.NewReference),
				formatFloat(e.Delta),
			}
			if err := cw.Write(row); err != nil {
				return errors.Wrapf(err, "failed to write event %d", e.Index)
			}
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush csv")
}

// WriteJSON writes the whole report as indented JSON.
func WriteJSON(w io.Writer, r *domain.AnalysisReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(r), "failed to encode report")
}

// FileName builds a stable file name for the report in the given format.
func FileName(r *domain.AnalysisReport, format string) string {
	iv := "0"
	if r.Movements != nil {
		iv = formatFloat(r.Movements.VolatilityPercent)
	}
	name := fmt.Sprintf("%s_%s_%s_%s_%s_iv%s.%s",
		r.Platform, r.Pair, r.Interval, r.StartDate, r.EndDate, iv, format)
	return strings.ReplaceAll(name, "/", "-")
}

// WriteFile stores the report in dir as CSV or JSON and returns the file path.
func WriteFile(dir, format string, r *domain.AnalysisReport) (string, error) {
	var write func(io.Writer, *domain.AnalysisReport) error
	switch format {
	case FormatCSV:
		write = WriteCSV
	case FormatJSON:
		write = WriteJSON
	default:
		return "", fmt.Errorf("unsupported report file format: %s", format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create output dir %s", dir)
	}

	path := filepath.Join(dir, FileName(r, format))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	if err := write(f, r); err != nil {
		return "", err
	}
	return path, errors.Wrapf(f.Close(), "failed to close %s", path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// round2 renders v with two decimals.
func round2(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}
