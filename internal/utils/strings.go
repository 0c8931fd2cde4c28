package utils

import "strings"

// NormalizeSymbol returns the canonical upper-case form of a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ParseSymbols splits a comma-separated list of tickers, normalizing each one.
// Blank entries and repeats are dropped; the first occurrence keeps its position.
// Returns nil for empty/whitespace-only input.
func ParseSymbols(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var result []string
	seen := make(map[string]bool)
	for _, v := range strings.Split(s, ",") {
		symbol := NormalizeSymbol(v)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		result = append(result, symbol)
	}

	return result
}
