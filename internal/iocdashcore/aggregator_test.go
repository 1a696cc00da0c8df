package iocdashcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicate(t *testing.T) {
	text := Indicator{ID: "1", Type: TypeIP, Value: "1.2.3.4", Description: "first"}
	table := Indicator{ID: "2", Type: TypeIP, Value: "1.2.3.4", Description: "table", TableData: map[string]string{"ip": "1.2.3.4"}}
	domain := Indicator{ID: "3", Type: TypeDomain, Value: "evil.com"}
	upper := Indicator{ID: "4", Type: TypeDomain, Value: "EVIL.com"}

	t.Run("first wins", func(t *testing.T) {
		got := Deduplicate([]Indicator{text, domain, table, upper}, FirstWins)
		require.Len(t, got, 2)
		assert.Equal(t, "1", got[0].ID)
		assert.Equal(t, "3", got[1].ID)
	})

	t.Run("prefer table context keeps position", func(t *testing.T) {
		got := Deduplicate([]Indicator{text, domain, table}, PreferTableContext)
		require.Len(t, got, 2)
		assert.Equal(t, "2", got[0].ID)
		assert.Equal(t, "3", got[1].ID)
	})

	t.Run("same value different type kept", func(t *testing.T) {
		other := Indicator{ID: "5", Type: TypeOther, Value: "1.2.3.4"}
		got := Deduplicate([]Indicator{text, other}, FirstWins)
		assert.Len(t, got, 2)
	})

	t.Run("empty input yields empty slice", func(t *testing.T) {
		got := Deduplicate(nil, FirstWins)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestCategorize(t *testing.T) {
	categories := Categorize([]Indicator{
		{Type: TypeIP}, {Type: TypeIP}, {Type: TypeHash},
	})
	assert.Len(t, categories, len(AllIndicatorTypes))
	assert.Equal(t, 2, categories[TypeIP])
	assert.Equal(t, 1, categories[TypeHash])
	assert.Equal(t, 0, categories[TypeRegistry])
}

func TestAggregate(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	stats := FileStats{TotalLines: 3, NonEmptyLines: 2}
	doc := Aggregate([]Indicator{
		{Type: TypeIP, Value: "8.8.8.8"},
		{Type: TypeIP, Value: "8.8.8.8"},
	}, stats, FirstWins, now)

	assert.Equal(t, 1, doc.TotalCount)
	assert.Len(t, doc.Indicators, 1)
	assert.Equal(t, 1, doc.Categories[TypeIP])
	assert.Equal(t, stats, doc.FileStats)
	assert.Equal(t, now, doc.LastUpdated)
}
