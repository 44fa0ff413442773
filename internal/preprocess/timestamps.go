package preprocess

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ParseTimestamp converts MM:SS or HH:MM:SS into seconds. The seconds field
// may carry a fractional part.
func ParseTimestamp(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q: want MM:SS or HH:MM:SS", value)
	}
	var total float64
	for i, part := range parts {
		last := i == len(parts)-1
		var n float64
		if last {
			f, err := strconv.ParseFloat(part, 64)
			if err != nil || f < 0 {
				return 0, fmt.Errorf("invalid timestamp %q", value)
			}
			n = f
		} else {
			v, err := strconv.Atoi(part)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("invalid timestamp %q", value)
			}
			n = float64(v)
		}
		total = total*60 + n
	}
	return total, nil
}

// ReadTimestamps parses one timestamp per non-blank line and returns them
// sorted ascending.
func ReadTimestamps(r io.Reader) ([]float64, error) {
	var out []float64
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		seconds, err := ParseTimestamp(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, seconds)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read timestamps: %w", err)
	}
	sort.Float64s(out)
	return out, nil
}

// ReadTimestampFile is ReadTimestamps over a file.
func ReadTimestampFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open timestamp file: %w", err)
	}
	defer f.Close()
	return ReadTimestamps(f)
}

// Boundaries brackets sorted cut points with 0 and duration, dropping points
// outside (0, duration) and duplicates. Consecutive pairs are the segments.
func Boundaries(stamps []float64, duration float64) []float64 {
	out := []float64{0}
	for _, s := range stamps {
		if s <= out[len(out)-1] || (duration > 0 && s >= duration) {
			continue
		}
		out = append(out, s)
	}
	if duration > out[len(out)-1] {
		out = append(out, duration)
	}
	return out
}
