package iocdashcore

import (
	"strings"
	"time"
)

// dedupKey is the natural key of an indicator within one parse result.
type dedupKey struct {
	value string
	kind  IndicatorType
}

func keyOf(ioc Indicator) dedupKey {
	return dedupKey{value: strings.ToLower(ioc.Value), kind: ioc.Type}
}

// Deduplicate collapses records sharing (lowercase value, type). Discovery
// order is preserved. Under FirstWins the first occurrence survives; under
// PreferTableContext a later table-row occurrence replaces an earlier
// free-text one in place.
func Deduplicate(records []Indicator, policy DuplicatePolicy) []Indicator {
	result := make([]Indicator, 0, len(records))
	position := make(map[dedupKey]int, len(records))
	for _, ioc := range records {
		key := keyOf(ioc)
		at, seen := position[key]
		if !seen {
			position[key] = len(result)
			result = append(result, ioc)
			continue
		}
		if policy == PreferTableContext && !result[at].FromTable() && ioc.FromTable() {
			result[at] = ioc
		}
	}
	return result
}

// Categorize tallies records per indicator type. Every known type is present
// in the result, with zero when absent.
func Categorize(records []Indicator) map[IndicatorType]int {
	categories := make(map[IndicatorType]int, len(AllIndicatorTypes))
	for _, kind := range AllIndicatorTypes {
		categories[kind] = 0
	}
	for _, ioc := range records {
		categories[ioc.Type]++
	}
	return categories
}

// Aggregate builds the final document from the raw classified records.
func Aggregate(records []Indicator, stats FileStats, policy DuplicatePolicy, now time.Time) *ParsedDocument {
	unique := Deduplicate(records, policy)
	return &ParsedDocument{
		Indicators:  unique,
		LastUpdated: now,
		TotalCount:  len(unique),
		Categories:  Categorize(unique),
		FileStats:   stats,
	}
}
