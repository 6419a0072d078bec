// Package puzzle defines the date keys and documents served by the proxy.
package puzzle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the inbound date format.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a date parameter is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date")

// DateKey identifies one daily puzzle.
type DateKey struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDateKey parses a strict YYYY-MM-DD string.
func ParseDateKey(raw string) (DateKey, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return DateKey{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return DateKey{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// String returns the canonical YYYY-MM-DD form.
func (k DateKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

// Time returns midnight UTC of the date.
func (k DateKey) Time() time.Time {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, time.UTC)
}

// Expand substitutes date tokens in a URL template.
//
// Supported tokens:
//   - {date}: YYYY-MM-DD
//   - {yyyy}: four digit year
//   - {mm}, {dd}: zero padded month and day
//   - {m}, {d}: month and day without padding
func (k DateKey) Expand(template string) string {
	r := strings.NewReplacer(
		"{date}", k.String(),
		"{yyyy}", fmt.Sprintf("%04d", k.Year),
		"{mm}", fmt.Sprintf("%02d", int(k.Month)),
		"{dd}", fmt.Sprintf("%02d", k.Day),
		"{m}", strconv.Itoa(int(k.Month)),
		"{d}", strconv.Itoa(k.Day),
	)
	return r.Replace(template)
}
