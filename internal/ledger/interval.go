package ledger

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

var ErrInvalidInterval = errors.New("invalid interval")

// длительности хранятся целым числом миллисекунд
func EncodeMillis(d time.Duration) int64 {
	return d.Milliseconds()
}

func DecodeMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

var secondSuffixes = []string{"seconds", "second", "secs", "sec", "s"}

// ParseInterval разбирает старые текстовые представления длительности:
// "59s", "3723 seconds", "3723.5s", "3723", "1:02:03", "01:02:03.250", "1 day 01:02:03".
// Результат округляется до миллисекунды
func ParseInterval(raw string) (time.Duration, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return 0, fmt.Errorf("%w: пустая строка", ErrInvalidInterval)
	}

	var (
		d   time.Duration
		err error
	)
	if strings.Contains(s, ":") || strings.Contains(s, "day") {
		d, err = parsePostgresInterval(s)
	} else {
		d, err = parseSeconds(s)
	}
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidInterval, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w %q: отрицательная длительность", ErrInvalidInterval, raw)
	}

	return d.Round(time.Millisecond), nil
}

func parseSeconds(s string) (time.Duration, error) {
	for _, suffix := range secondSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, errors.New("не конечное значение")
	}

	return time.Duration(math.Round(seconds * 1000)) * time.Millisecond, nil
}

func parsePostgresInterval(s string) (time.Duration, error) {
	var interval pgtype.Interval
	if err := interval.Scan(s); err != nil {
		return 0, err
	}
	if interval.Months != 0 {
		return 0, errors.New("месяцы не переводятся в точную длительность")
	}

	return time.Duration(interval.Days)*24*time.Hour + time.Duration(interval.Microseconds)*time.Microsecond, nil
}

// FormatInterval выводит длительность как H:MM:SS, миллисекунды добавляются только если они есть
func FormatInterval(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}

	d = d.Round(time.Millisecond)
	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second
	millis := (d % time.Second) / time.Millisecond

	if millis != 0 {
		return fmt.Sprintf("%s%d:%02d:%02d.%03d", sign, hours, minutes, seconds, millis)
	}
	return fmt.Sprintf("%s%d:%02d:%02d", sign, hours, minutes, seconds)
}
