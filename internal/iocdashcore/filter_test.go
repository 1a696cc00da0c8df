package iocdashcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidCandidate(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		kind      IndicatorType
		fromTable bool
		expected  bool
	}{
		{"public ip", "8.8.8.8", TypeIP, false, true},
		{"private 192.168 range", "192.168.1.10", TypeIP, false, false},
		{"private 10.0 range", "10.0.0.5", TypeIP, false, false},
		{"loopback", "127.0.0.1", TypeIP, false, false},
		{"hex-only hash", "deadbeefdeadbeefdeadbeefdeadbeef", TypeHash, false, true},
		{"hash of wrong length", "deadbeefdeadbeefdeadbeefdeadbeef1", TypeHash, false, false},
		{"domain", "evil.com", TypeDomain, false, true},
		{"placeholder domain", "sub.test.org", TypeDomain, false, false},
		{"placeholder word inside a name", "latest.exe", TypeFile, false, true},
		{"placeholder file", "test/dropper.exe", TypeFile, false, false},
		{"url with test path", "https://evil.com/test/payload.bin", TypeURL, false, true},
		{"url on placeholder host", "https://example.com/payload.bin", TypeURL, false, false},
		{"placeholder mail host", "ops@test.net", TypeEmail, false, false},
		{"too short", "abc", TypeOther, true, false},
		{"version number", "v1.2.3", TypeOther, true, false},
		{"date", "2024-01-15", TypeOther, true, false},
		{"time of day", "12:30:00", TypeOther, true, false},
		{"plain word", "CustomValue", TypeOther, true, false},
		{"bare prefix", "www.", TypeOther, true, false},
		{"short url", "http://", TypeURL, false, false},
		{"other from table", "value-42", TypeOther, true, true},
		{"other from free text", "value-42", TypeOther, false, false},
		{"markup toolchain", "docs.asciidoc.org", TypeDomain, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidCandidate(tt.value, tt.kind, tt.fromTable))
		})
	}
}

func TestExclusionReason_ShapeRulesSkippedForTypedValues(t *testing.T) {
	assert.Equal(t, "", exclusionReason("8.8.8.8", TypeIP))
	assert.Equal(t, "numeric", exclusionReason("8.8.8.8", TypeOther))
	assert.Equal(t, "", exclusionReason("deadbeefdeadbeefdeadbeefdeadbeef", TypeHash))
	assert.Equal(t, "alphabetic", exclusionReason("deadbeefdeadbeefdeadbeefdeadbeef", TypeOther))
	assert.Equal(t, "private-192", exclusionReason("192.168.0.1", TypeIP))
}
