package iocdashcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "inline formatting and references",
			input:    "*bold* text `code` [link text] <<ref>> link:http://x[y]",
			expected: "bold text code link text",
		},
		{
			name:     "registry underscores survive",
			input:    `HKEY_LOCAL_MACHINE\Software\my_app_key`,
			expected: `HKEY_LOCAL_MACHINE\Software\my_app_key`,
		},
		{
			name:     "italic unwrapped",
			input:    "seen _recently_ on 8.8.8.8",
			expected: "seen recently on 8.8.8.8",
		},
		{
			name:     "brackets glued to a value",
			input:    "ip[8.8.4.4]",
			expected: "ip 8.8.4.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripMarkup(tt.input))
		})
	}
}

func TestExtractor_Extract(t *testing.T) {
	e := NewExtractor()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "ip then hash in recognizer order",
			input:    "Sample hash 44d88612fea8a8f36de82e1278abb02f seen at 8.8.8.8",
			expected: []string{"8.8.8.8", "44d88612fea8a8f36de82e1278abb02f"},
		},
		{
			name:     "url also yields its host",
			input:    "download https://evil-site.com/payload.exe now",
			expected: []string{"https://evil-site.com/payload.exe", "evil-site.com"},
		},
		{
			name:     "uppercase hash is lowercased",
			input:    "DEADBEEFDEADBEEFDEADBEEFDEADBEEF",
			expected: []string{"deadbeefdeadbeefdeadbeefdeadbeef"},
		},
		{
			name:     "invalid octet is not an ip",
			input:    "Bad IP 192.168.999.1",
			expected: nil,
		},
		{
			name:     "placeholder hosts are dropped",
			input:    "see https://example.com/x and user@example.com",
			expected: nil,
		},
		{
			name:     "placeholder word in a url path",
			input:    "download https://evil.com/test/payload.bin now",
			expected: []string{"https://evil.com/test/payload.bin", "evil.com"},
		},
		{
			name:     "denylisted hosting platform",
			input:    "source on github.com",
			expected: nil,
		},
		{
			name:     "file name is not a domain",
			input:    "dropper evil.exe",
			expected: []string{"evil.exe"},
		},
		{
			name:     "windows path",
			input:    `Dropped to C:\Users\Public\evil.dll`,
			expected: []string{`C:\Users\Public\evil.dll`},
		},
		{
			name:     "cidr range",
			input:    "block 45.33.0.0/16",
			expected: []string{"45.33.0.0/16"},
		},
		{
			name:     "registry key",
			input:    `Persistence via HKEY_CURRENT_USER\Software\Microsoft\Windows\CurrentVersion\Run\evil`,
			expected: []string{`HKEY_CURRENT_USER\Software\Microsoft\Windows\CurrentVersion\Run\evil`},
		},
		{
			name:     "empty",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, e.Extract(tt.input))
		})
	}
}

func TestExtractor_ExactDuplicatesCollapsed(t *testing.T) {
	got := NewExtractor().Extract("8.8.8.8 and again 8.8.8.8")
	assert.Equal(t, []string{"8.8.8.8"}, got)
}

func TestPlausibleDomain(t *testing.T) {
	assert.True(t, plausibleDomain("evil.com"))
	assert.True(t, plausibleDomain("cdn.bad-actor.net"))
	assert.False(t, plausibleDomain("1.2.3"))
	assert.False(t, plausibleDomain("v1.2"))
	assert.False(t, plausibleDomain("a..b.com"))
	assert.False(t, plausibleDomain(".evil.com"))
	assert.False(t, plausibleDomain("report.pdf"))
}
