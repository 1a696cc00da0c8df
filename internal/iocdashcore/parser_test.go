package iocdashcore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const sampleDocument = `= IOC Repository
:author: team
// internal note

== Ransomware
|===
|SHA256|Archivo|Detección
|aaaabbbbccccddddeeeeffff00001111aaaabbbbccccddddeeeeffff00001111|locker.exe|Ransom-Locker detected
|===

== Phishing
Phishing kit hosted at https://bad-login.net/signin #credential
Reply-to fraud@bad-login.net

== Infrastructure
C2 server:: 45.77.10.20
Contacted bad-login.net again
`

func findIndicator(t *testing.T, doc *ParsedDocument, kind IndicatorType, value string) Indicator {
	t.Helper()
	for _, ioc := range doc.Indicators {
		if ioc.Type == kind && ioc.Value == value {
			return ioc
		}
	}
	require.Failf(t, "indicator not found", "%s %s", kind, value)
	return Indicator{}
}

func TestParse_FreeTextLine(t *testing.T) {
	doc := NewParser().Parse("== Malware\nSample hash 44d88612fea8a8f36de82e1278abb02f seen at 8.8.8.8")

	require.Equal(t, 2, doc.TotalCount)
	assert.Equal(t, TypeIP, doc.Indicators[0].Type)
	assert.Equal(t, TypeHash, doc.Indicators[1].Type)
	for _, ioc := range doc.Indicators {
		assert.Contains(t, ioc.Tags, "malware")
		assert.Equal(t, SeverityHigh, ioc.Severity)
		assert.Equal(t, "Sample hash seen at - Related to: Malware", ioc.Description)
		assert.Nil(t, ioc.TableData)
	}
}

func TestParse_KeywordForms(t *testing.T) {
	doc := NewParser().Parse("== Notes\nTrojans dropped from 45.77.10.20")
	require.Equal(t, 1, doc.TotalCount)
	assert.Equal(t, SeverityCritical, doc.Indicators[0].Severity)
	assert.Contains(t, doc.Indicators[0].Tags, "trojan")

	doc = NewParser().Parse("== Indicators of Compromise\nThreats and attacks from 45.77.10.21 via botnets")
	require.Equal(t, 1, doc.TotalCount)
	assert.Equal(t, SeverityHigh, doc.Indicators[0].Severity)
	assert.Equal(t, []string{"indicators-of-compromise", "botnet", "threat", "attack"}, doc.Indicators[0].Tags)

	doc = NewParser().Parse("TrojanDownloader beacon 45.77.10.22")
	require.Equal(t, 1, doc.TotalCount)
	assert.Equal(t, SeverityCritical, doc.Indicators[0].Severity)
}

func TestParse_URLWithPlaceholderPath(t *testing.T) {
	doc := NewParser().Parse("download https://evil.com/test/payload.bin now")

	findIndicator(t, doc, TypeURL, "https://evil.com/test/payload.bin")
	findIndicator(t, doc, TypeDomain, "evil.com")
	assert.Equal(t, 2, doc.TotalCount)
}

func TestParse_TableRow(t *testing.T) {
	doc := NewParser().Parse(strings.Join([]string{
		"== Samples",
		"|===",
		"|Hash|Archivo|Descripcion",
		"|deadbeefdeadbeefdeadbeefdeadbeef|evil.exe|Ransomware payload",
		"|===",
	}, "\n"))

	hash := findIndicator(t, doc, TypeHash, "deadbeefdeadbeefdeadbeefdeadbeef")
	assert.Equal(t, "deadbeefdeadbeefdeadbeefdeadbeef", hash.TableData["hash"])
	assert.Equal(t, "evil.exe", hash.TableData["archivo"])
	assert.Equal(t, "evil.exe", hash.TableData["Archivo"])
	assert.Contains(t, hash.Description, "Ransomware payload")
	assert.Equal(t, SeverityCritical, hash.Severity)

	file := findIndicator(t, doc, TypeFile, "evil.exe")
	assert.True(t, file.FromTable())
	assert.Equal(t, 1, doc.Categories[TypeHash])
	assert.Equal(t, 1, doc.Categories[TypeFile])
	assert.Equal(t, 1, doc.FileStats.TablesFound)
}

func TestParse_DuplicateAcrossSections(t *testing.T) {
	doc := NewParser().Parse("== First\nC2 at 1.2.3.4\n== Second\nSeen 1.2.3.4 again")

	require.Equal(t, 1, doc.TotalCount)
	assert.Contains(t, doc.Indicators[0].Description, "First")
	assert.Contains(t, doc.Indicators[0].Tags, "first")
}

func TestParse_PreferTableContext(t *testing.T) {
	content := "== Notes\nSeen 45.77.10.20\n|===\n|IP|Descripcion\n|45.77.10.20|Botnet relay\n|==="

	first := NewParser().Parse(content)
	require.Equal(t, 1, first.TotalCount)
	assert.False(t, first.Indicators[0].FromTable())

	preferred := NewParser(WithDuplicatePolicy(PreferTableContext)).Parse(content)
	require.Equal(t, 1, preferred.TotalCount)
	assert.True(t, preferred.Indicators[0].FromTable())
	assert.Equal(t, "Botnet relay | Section: Notes", preferred.Indicators[0].Description)
	assert.Equal(t, SeverityHigh, preferred.Indicators[0].Severity)
}

func TestParse_TableTagsFromCell(t *testing.T) {
	doc := NewParser().Parse("== Notes\n|===\n|IP|Descripcion\n|45.77.10.20|Botnet relay #infra\n|===")

	ip := findIndicator(t, doc, TypeIP, "45.77.10.20")
	assert.Equal(t, []string{"notes"}, ip.Tags)
	assert.Equal(t, SeverityHigh, ip.Severity)
}

func TestParse_InvalidOctet(t *testing.T) {
	doc := NewParser().Parse("Bad IP 192.168.999.1")
	assert.Equal(t, 0, doc.Categories[TypeIP])
}

func TestParse_EmptyDocument(t *testing.T) {
	doc := NewParser().Parse("")

	assert.Equal(t, 0, doc.TotalCount)
	assert.NotNil(t, doc.Indicators)
	assert.Empty(t, doc.Indicators)
	assert.Equal(t, FileStats{}, doc.FileStats)
	for _, kind := range AllIndicatorTypes {
		assert.Equal(t, 0, doc.Categories[kind])
	}
}

func TestParse_HeadingClosesTable(t *testing.T) {
	doc := NewParser().Parse("|===\n|IP|Note\n|45.77.10.20|relay\n== Later\n45.77.10.21 seen")

	row := findIndicator(t, doc, TypeIP, "45.77.10.20")
	assert.True(t, row.FromTable())

	text := findIndicator(t, doc, TypeIP, "45.77.10.21")
	assert.False(t, text.FromTable())
	assert.Equal(t, "seen - Related to: Later", text.Description)
}

func TestParse_LabeledListItem(t *testing.T) {
	doc := NewParser().Parse("== Infra\nC2 server:: 45.77.10.20")

	require.Equal(t, 1, doc.TotalCount)
	assert.Equal(t, "C2 server - Related to: Infra", doc.Indicators[0].Description)
	assert.Equal(t, SeverityHigh, doc.Indicators[0].Severity)
}

func TestParse_SampleDocument(t *testing.T) {
	doc := NewParser().Parse(sampleDocument)

	hash := findIndicator(t, doc, TypeHash, "aaaabbbbccccddddeeeeffff00001111aaaabbbbccccddddeeeeffff00001111")
	assert.Equal(t, "Ransom-Locker detected | File: locker.exe | Section: Ransomware", hash.Description)
	assert.Equal(t, SeverityCritical, hash.Severity)
	assert.Equal(t, "locker.exe", hash.TableData[FieldFile])

	url := findIndicator(t, doc, TypeURL, "https://bad-login.net/signin")
	assert.Equal(t, SeverityMedium, url.Severity)
	assert.Contains(t, url.Tags, "credential")
	assert.Contains(t, url.Tags, "phishing")

	findIndicator(t, doc, TypeEmail, "fraud@bad-login.net")
	findIndicator(t, doc, TypeDomain, "bad-login.net")
	findIndicator(t, doc, TypeIP, "45.77.10.20")

	assert.Equal(t, 4, doc.FileStats.SectionsFound)
	assert.Equal(t, 1, doc.FileStats.TablesFound)
}

func TestParse_Properties(t *testing.T) {
	doc := NewParser().Parse(sampleDocument)

	t.Run("value and type are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for _, ioc := range doc.Indicators {
			key := string(ioc.Type) + "|" + strings.ToLower(ioc.Value)
			assert.False(t, seen[key], key)
			seen[key] = true
		}
	})

	t.Run("categories sum to total", func(t *testing.T) {
		sum := 0
		for _, n := range doc.Categories {
			sum += n
		}
		assert.Equal(t, doc.TotalCount, sum)
		assert.Len(t, doc.Indicators, doc.TotalCount)
	})

	t.Run("ids are unique", func(t *testing.T) {
		ids := make(map[string]bool)
		for _, ioc := range doc.Indicators {
			assert.NotEmpty(t, ioc.ID)
			assert.False(t, ids[ioc.ID])
			ids[ioc.ID] = true
		}
	})

	t.Run("types and severities are known", func(t *testing.T) {
		for _, ioc := range doc.Indicators {
			assert.True(t, ioc.Type.IsValid())
			assert.GreaterOrEqual(t, ioc.Severity.Rank(), 0)
			assert.Equal(t, StatusActive, ioc.Status)
			assert.Equal(t, DefaultSource, ioc.Source)
		}
	})
}

func TestParse_Idempotent(t *testing.T) {
	p := NewParser()
	first := p.Parse(sampleDocument)
	second := p.Parse(sampleDocument)

	strip := func(in []Indicator) []Indicator {
		out := make([]Indicator, len(in))
		for i, ioc := range in {
			ioc.ID = ""
			ioc.DateAdded = time.Time{}
			out[i] = ioc
		}
		return out
	}
	assert.Equal(t, strip(first.Indicators), strip(second.Indicators))
	assert.Equal(t, first.Categories, second.Categories)
	assert.Equal(t, first.FileStats, second.FileStats)
}

func TestParse_Concurrent(t *testing.T) {
	p := NewParser()
	expected := p.Parse(sampleDocument).TotalCount

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Parse(sampleDocument).TotalCount
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, expected, got)
	}
}

func TestParse_Options(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	p := NewParser(
		WithSource("unit-test feed"),
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("ioc-%d", n)
		}),
		WithDuplicatePolicy("bogus"),
	)
	doc := p.Parse("45.77.10.20 and 45.77.10.21")

	require.Equal(t, 2, doc.TotalCount)
	assert.Equal(t, "ioc-1", doc.Indicators[0].ID)
	assert.Equal(t, "ioc-2", doc.Indicators[1].ID)
	assert.Equal(t, "unit-test feed", doc.Indicators[0].Source)
	assert.Equal(t, fixed, doc.Indicators[0].DateAdded)
	assert.Equal(t, fixed, doc.LastUpdated)
	assert.Equal(t, FirstWins, p.policy)
}

func TestParse_Logging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := NewParser(WithLogger(zap.New(core).Sugar()))
	p.Parse(sampleDocument)

	assert.Equal(t, 1, logs.FilterMessage("Document parsed").Len())
	assert.Equal(t, 4, logs.FilterMessage("Section").Len())
	assert.Equal(t, 1, logs.FilterMessage("Table opened").Len())
}

func TestParseReader(t *testing.T) {
	p := NewParser()

	_, err := p.ParseReader(nil)
	assert.ErrorIs(t, err, ErrNilDocument)

	_, err = p.ParseReader(iotest.ErrReader(errors.New("disk gone")))
	assert.ErrorContains(t, err, "disk gone")

	doc, err := p.ParseReader(strings.NewReader("seen at 8.8.8.8"))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.TotalCount)
}
