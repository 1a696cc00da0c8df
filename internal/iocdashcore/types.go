package iocdashcore

import (
	"time"
)

// IndicatorType classifies an extracted indicator value
type IndicatorType string

const (
	TypeHash     IndicatorType = "hash"
	TypeIP       IndicatorType = "ip"
	TypeDomain   IndicatorType = "domain"
	TypeURL      IndicatorType = "url"
	TypeEmail    IndicatorType = "email"
	TypeFile     IndicatorType = "file"
	TypeRegistry IndicatorType = "registry"
	TypeOther    IndicatorType = "other"
)

// AllIndicatorTypes lists every indicator type in display order
var AllIndicatorTypes = []IndicatorType{
	TypeHash, TypeIP, TypeDomain, TypeURL, TypeEmail, TypeFile, TypeRegistry, TypeOther,
}

// IsValid checks if the indicator type is one of the known types
func (t IndicatorType) IsValid() bool {
	for _, valid := range AllIndicatorTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// Severity is the inferred threat level of an indicator
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AllSeverities lists severities from lowest to highest
var AllSeverities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	for i, sev := range AllSeverities {
		if s == sev {
			return i
		}
	}
	return -1
}

// Status is the lifecycle flag of an indicator
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPending  Status = "pending"
)

// DefaultSource is the provenance label attached to extracted indicators
const DefaultSource = "CiberVengadores IOC Repository"

// Indicator is a single Indicator of Compromise extracted from a document
type Indicator struct {
	ID          string            `json:"id"`
	Type        IndicatorType     `json:"type"`
	Value       string            `json:"value"`
	Description string            `json:"description"`
	Severity    Severity          `json:"severity"`
	Source      string            `json:"source"`
	DateAdded   time.Time         `json:"dateAdded"`
	Tags        []string          `json:"tags"`
	Status      Status            `json:"status"`
	TableData   map[string]string `json:"tableData,omitempty"` // only for table rows
}

// FromTable reports whether the indicator carries table row data
func (i *Indicator) FromTable() bool {
	return len(i.TableData) > 0
}

// FileStats holds document level counters collected by the scanner
type FileStats struct {
	TotalLines    int `json:"totalLines"`
	NonEmptyLines int `json:"nonEmptyLines"`
	ContentLines  int `json:"contentLines"`
	TablesFound   int `json:"tablesFound"`
	SectionsFound int `json:"sectionsFound"`
}

// ParsedDocument is the result of parsing one document
type ParsedDocument struct {
	Indicators  []Indicator           `json:"iocs"`
	LastUpdated time.Time             `json:"lastUpdated"`
	TotalCount  int                   `json:"totalCount"`
	Categories  map[IndicatorType]int `json:"categories"`
	FileStats   FileStats             `json:"fileStats"`
}

// DuplicatePolicy selects which occurrence survives deduplication
type DuplicatePolicy string

const (
	// FirstWins keeps the first discovered occurrence of a value
	FirstWins DuplicatePolicy = "first"
	// PreferTableContext lets a later table-row occurrence replace a
	// free-text one, keeping the original discovery position.
	PreferTableContext DuplicatePolicy = "prefer-table"
)

// IsValid checks if the policy is known
func (p DuplicatePolicy) IsValid() bool {
	return p == FirstWins || p == PreferTableContext
}
