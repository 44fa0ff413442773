package notes

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatTime renders seconds as MM:SS.mmm, or HH:MM:SS.mmm from one hour on.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	hours := int(seconds / 3600)
	minutes := int(math.Mod(seconds, 3600) / 60)
	secs := math.Mod(seconds, 60)
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%06.3f", minutes, secs)
}

// ParseTime is the inverse of FormatTime. It also accepts a bare number of
// seconds.
func ParseTime(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("parse time %q: too many fields", value)
	}
	total := 0.0
	for _, part := range parts {
		n, err := strconv.ParseFloat(part, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("parse time %q: invalid field %q", value, part)
		}
		total = total*60 + n
	}
	return total, nil
}
