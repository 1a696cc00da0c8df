package iocdashcore

import (
	"regexp"
	"strings"
)

// exclusionRule rejects candidates that look like indicators but are not.
type exclusionRule struct {
	name    string
	pattern *regexp.Regexp
	// shapeOnly rules describe token shapes (numbers, words, dates) that a
	// resolved ip or hash legitimately has, so they are skipped for those types.
	shapeOnly bool
	// hostPattern, when set, replaces pattern for url, email and domain
	// values and is matched against their host only.
	hostPattern *regexp.Regexp
}

var exclusionRules = []exclusionRule{
	{name: "numeric", pattern: regexp.MustCompile(`^[0-9.]+$`), shapeOnly: true},
	{name: "alphabetic", pattern: regexp.MustCompile(`^[a-zA-Z]+$`), shapeOnly: true},
	{name: "version", pattern: regexp.MustCompile(`^v?\d+\.\d+`), shapeOnly: true},
	{name: "time", pattern: regexp.MustCompile(`^\d{1,2}:\d{2}`), shapeOnly: true},
	{name: "date", pattern: regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`), shapeOnly: true},
	{name: "acronym", pattern: regexp.MustCompile(`^[A-Z]{1,3}$`), shapeOnly: true},
	{name: "placeholder", pattern: placeholderWord, hostPattern: placeholderHost},
	{name: "localhost", pattern: regexp.MustCompile(`(?i)localhost`)},
	{name: "loopback", pattern: regexp.MustCompile(`(?:^|[^0-9])127\.0\.0\.1(?:$|[^0-9])`)},
	{name: "private-192", pattern: regexp.MustCompile(`(?:^|[^0-9])192\.168\.`)},
	{name: "private-10", pattern: regexp.MustCompile(`(?:^|[^0-9])10\.0\.`)},
	{name: "hosting", pattern: regexp.MustCompile(`(?i)github\.com`)},
	{name: "markup", pattern: regexp.MustCompile(`(?i)asciidoc|\.adoc$`)},
	{name: "bare-prefix", pattern: regexp.MustCompile(`(?i)^(?:https?://|www\.)$`)},
}

// minimum lengths per resolved type
var minLength = map[IndicatorType]int{
	TypeIP:       7,
	TypeDomain:   4,
	TypeURL:      10,
	TypeEmail:    5,
	TypeFile:     4,
	TypeRegistry: 10,
}

// IsValidCandidate is the global validity filter applied after type
// resolution. Values resolved as TypeOther pass only when they come from a
// table row.
func IsValidCandidate(value string, kind IndicatorType, fromTable bool) bool {
	clean := strings.TrimSpace(value)
	if len(clean) <= 3 {
		return false
	}

	if exclusionReason(clean, kind) != "" {
		return false
	}

	switch kind {
	case TypeHash:
		switch len(clean) {
		case 32, 40, 64, 128:
			return true
		}
		return false
	case TypeDomain:
		return len(clean) >= minLength[kind] && plausibleDomain(strings.ToLower(clean))
	case TypeEmail:
		return len(clean) >= minLength[kind] && strings.Contains(clean, "@") && strings.Contains(clean, ".")
	case TypeIP, TypeURL, TypeFile, TypeRegistry:
		return len(clean) >= minLength[kind]
	case TypeOther:
		return fromTable
	}
	return false
}

// exclusionReason names the first exclusion rule matching value, or "".
func exclusionReason(value string, kind IndicatorType) string {
	typed := kind == TypeIP || kind == TypeHash
	hosted := kind == TypeURL || kind == TypeEmail || kind == TypeDomain
	for _, rule := range exclusionRules {
		if rule.shapeOnly && typed {
			continue
		}
		if rule.hostPattern != nil && hosted {
			if rule.hostPattern.MatchString(candidateHost(value)) {
				return rule.name
			}
			continue
		}
		if rule.pattern.MatchString(value) {
			return rule.name
		}
	}
	return ""
}
