package collector

import (
	"fmt"
	"strconv"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
)

// ParseInterval converts "1m", "4h", "1d", "1w" style intervals to a duration.
func ParseInterval(interval string) (time.Duration, error) {
	n, unit, err := splitInterval(interval)
	if err != nil {
		return 0, err
	}

	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported interval unit: %c", unit)
	}
}

// bybitIntervals maps the standard interval notation onto the intervals the
// Bybit V5 kline endpoint accepts.
var bybitIntervals = map[string]bybit.Interval{
	"1m":  bybit.Interval1,
	"3m":  bybit.Interval3,
	"5m":  bybit.Interval5,
	"15m": bybit.Interval15,
	"30m": bybit.Interval30,
	"1h":  bybit.Interval60,
	"2h":  bybit.Interval120,
	"4h":  bybit.Interval240,
	"6h":  bybit.Interval360,
	"12h": bybit.Interval720,
	"1d":  bybit.IntervalD,
	"1w":  bybit.IntervalW,
}

// convertIntervalToBybit converts standard interval format to Bybit format.
// Standard format: "1m", "5m", "15m", "1h", "4h", "1d", etc.
// Bybit format: "1", "5", "15", "60", "240", "D", etc.
func convertIntervalToBybit(interval string) (bybit.Interval, error) {
	if _, err := ParseInterval(interval); err != nil {
		return "", err
	}
	bi, ok := bybitIntervals[interval]
	if !ok {
		return "", fmt.Errorf("interval %s is not supported by bybit", interval)
	}
	return bi, nil
}

func splitInterval(interval string) (int64, byte, error) {
	if len(interval) < 2 {
		return 0, 0, fmt.Errorf("invalid interval format: %q", interval)
	}

	unit := interval[len(interval)-1]
	n, err := strconv.ParseInt(interval[:len(interval)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("invalid interval number: %q", interval)
	}
	return n, unit, nil
}

// parseTimestamp converts an exchange timestamp string (milliseconds) to time.Time.
func parseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, errors.New("empty timestamp")
	}

	msec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to parse timestamp: %s", ts)
	}

	return time.UnixMilli(msec), nil
}
