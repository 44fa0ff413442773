package slides

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// File names written into the slides directory.
const (
	RecordsFile         = "slides.json"
	OriginalRecordsFile = "slides_original.json"
	VocabularyFile      = "vocabulary.txt"
)

// WriteRecords writes records as indented JSON.
func WriteRecords(path string, records []SlideRecord) error {
	if records == nil {
		records = []SlideRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode slide records: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write slide records: %w", err)
	}
	return nil
}

// ReadRecords loads a slides.json file.
func ReadRecords(path string) ([]SlideRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slide records: %w", err)
	}
	var records []SlideRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode slide records %s: %w", path, err)
	}
	return records, nil
}

// ApplySelection keeps the candidates at the accepted positions, in capture
// order. Duplicate and out-of-range positions are rejected.
func ApplySelection(candidates []SlideRecord, accepted []int) ([]SlideRecord, error) {
	positions := append([]int(nil), accepted...)
	sort.Ints(positions)
	out := make([]SlideRecord, 0, len(positions))
	for i, pos := range positions {
		if pos < 0 || pos >= len(candidates) {
			return nil, fmt.Errorf("slide index %d out of range", pos)
		}
		if i > 0 && positions[i-1] == pos {
			return nil, fmt.Errorf("slide index %d selected twice", pos)
		}
		out = append(out, candidates[pos])
	}
	return out, nil
}

// WriteVocabulary writes one term per line, dropping blanks and duplicates.
func WriteVocabulary(path string, terms []string) ([]string, error) {
	cleaned := NormalizeVocabulary(terms)
	content := strings.Join(cleaned, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write vocabulary: %w", err)
	}
	return cleaned, nil
}

// ReadVocabulary reads a vocabulary file; a missing file yields no terms.
func ReadVocabulary(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return NormalizeVocabulary(strings.Split(string(data), "\n")), nil
}

// NormalizeVocabulary trims terms and removes blanks and case-insensitive
// duplicates, keeping first occurrence order.
func NormalizeVocabulary(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, term)
	}
	return out
}
