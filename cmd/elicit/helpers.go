package main

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

func formatSize(size int64) string {
	if size < 0 {
		return "missing"
	}
	return humanize.IBytes(uint64(size))
}

// formatSeconds renders media offsets as m:ss.s.
func formatSeconds(value float64) string {
	if value < 0 || math.IsNaN(value) {
		return "?"
	}
	minutes := int(value) / 60
	seconds := value - float64(minutes*60)
	return fmt.Sprintf("%d:%04.1f", minutes, seconds)
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit-1]) + "…"
}
