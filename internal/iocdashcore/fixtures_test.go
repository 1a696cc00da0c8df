package iocdashcore

import (
	"time"
)

var fixtureTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func fixtureIndicator(kind IndicatorType, value, description string, severity Severity, tags ...string) Indicator {
	return Indicator{
		ID:          string(kind) + "-" + value,
		Type:        kind,
		Value:       value,
		Description: description,
		Severity:    severity,
		Source:      DefaultSource,
		DateAdded:   fixtureTime,
		Tags:        tags,
		Status:      StatusActive,
	}
}

// fixtureDocument holds one hash, one ip and one domain.
func fixtureDocument() *ParsedDocument {
	return Aggregate([]Indicator{
		fixtureIndicator(TypeHash, "44d88612fea8a8f36de82e1278abb02f", "Ransomware dropper sample", SeverityCritical, "malware", "ransomware"),
		fixtureIndicator(TypeIP, "45.77.10.20", "Command and control server", SeverityHigh, "c2"),
		fixtureIndicator(TypeDomain, "bad-login.net", "Phishing landing page", SeverityMedium, "phishing"),
	}, FileStats{TotalLines: 3, NonEmptyLines: 3, ContentLines: 3}, FirstWins, fixtureTime)
}
