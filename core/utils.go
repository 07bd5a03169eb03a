package core

import (
	"math"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanStringPtr cleans *s, turning blank strings into nil.
func CleanStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := CleanString(*s)
	if c == "" {
		return nil
	}
	return &c
}

// Percentage returns part/total*100 rounded half away from zero to 2 decimals; 0 when total is 0.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}
