package iocdashcore

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// typeRule pairs an indicator type with the predicate that recognizes a
// standalone value of that type.
type typeRule struct {
	Type  IndicatorType
	Match func(value string) bool
}

var (
	ipExact       = regexp.MustCompile(`^(?:` + ipExtract.String() + `)$`)
	hashExact     = regexp.MustCompile(`^(?:[a-fA-F0-9]{32}|[a-fA-F0-9]{40}|[a-fA-F0-9]{64}|[a-fA-F0-9]{128})$`)
	urlExact      = regexp.MustCompile(`^(?:` + urlExtract.String() + `)$`)
	emailExact    = regexp.MustCompile(`^(?:` + emailExtract.String() + `)$`)
	domainExact   = regexp.MustCompile(`^(?:` + domainExtract.String() + `)$`)
	fileExact     = regexp.MustCompile(`(?i)^(?:[A-Za-z]:\\[^<>:"/|?*\r\n]*|/[^<>\s"\\|?*\r\n]*|[^<>\s"\\|?*\r\n]*\.(?:` + fileExtensions + `))$`)
	registryExact = regexp.MustCompile(`(?i)^HKEY_(?:CLASSES_ROOT|CURRENT_USER|LOCAL_MACHINE|USERS|CURRENT_CONFIG)\\\S+`)
)

// typePrecedence is evaluated top to bottom; the first matching rule wins.
// Order matters because the shapes overlap (a hex run is also a word, a URL
// contains a domain, a file name looks like a domain).
var typePrecedence = []typeRule{
	{Type: TypeIP, Match: func(v string) bool {
		if !ipExact.MatchString(v) {
			return false
		}
		_, ok := acceptIP(v)
		return ok
	}},
	{Type: TypeHash, Match: hashExact.MatchString},
	{Type: TypeURL, Match: urlExact.MatchString},
	{Type: TypeEmail, Match: emailExact.MatchString},
	{Type: TypeDomain, Match: func(v string) bool {
		return domainExact.MatchString(v) && plausibleDomain(strings.ToLower(v))
	}},
	{Type: TypeFile, Match: fileExact.MatchString},
	{Type: TypeRegistry, Match: registryExact.MatchString},
}

// TypePrecedence returns the resolution order, ending with TypeOther.
func TypePrecedence() []IndicatorType {
	order := make([]IndicatorType, 0, len(typePrecedence)+1)
	for _, rule := range typePrecedence {
		order = append(order, rule.Type)
	}
	return append(order, TypeOther)
}

// ResolveType classifies a single candidate value in isolation.
func ResolveType(value string) IndicatorType {
	clean := strings.TrimSpace(value)
	for _, rule := range typePrecedence {
		if rule.Match(clean) {
			return rule.Type
		}
	}
	return TypeOther
}

// NormalizeValue applies the per-type case rule: hashes, domains and emails
// are compared lowercase; everything else keeps its spelling.
func NormalizeValue(value string, kind IndicatorType) string {
	clean := strings.TrimSpace(value)
	switch kind {
	case TypeHash, TypeDomain, TypeEmail:
		return strings.ToLower(clean)
	}
	return clean
}

// severityTier is one keyword set of the severity ladder.
type severityTier struct {
	severity Severity
	keywords *regexp.Regexp
}

// severityTiers are checked in order; the first tier with a keyword hit wins.
var severityTiers = []severityTier{
	{SeverityCritical, keywordPattern("critical", "severe", "ransomware", "backdoor", "trojan", "apt", "advanced persistent threat", "crítico", "critico")},
	{SeverityHigh, keywordPattern("high", "malware", "virus", "worm", "spyware", "botnet", "c2", "command and control", "command-and-control", "alto")},
	{SeverityMedium, keywordPattern("medium", "suspicious", "potential", "phishing", "scam", "medio", "sospechoso")},
}

// tagVocabulary is matched against the raw source text of each indicator.
var tagVocabulary = []string{
	"malware", "ransomware", "trojan", "backdoor", "spyware", "adware",
	"phishing", "scam", "fraud", "suspicious", "botnet", "c2", "c&c",
	"apt", "threat", "campaign", "family", "variant", "exploit",
	"vulnerability", "attack", "compromise", "breach", "incident",
	"indicator", "ioc", "threat-intelligence", "cybersecurity",
	"peticion", "solicitud", "request", "analysis", "analisis",
}

var (
	tagPatterns     = compileVocabulary(tagVocabulary)
	hashtagPattern  = regexp.MustCompile(`(?:^|\s)#([a-zA-Z0-9_]+)`)
	markupPunct     = regexp.MustCompile("[|*_`\\-]")
	labeledListItem = regexp.MustCompile(`^([^:]{1,60}?)::\s+(.*)$`)
)

// keywordPattern matches any keyword at the start of a word. Anything may
// follow, so plurals and compounds ("botnets", "trojandownloader", "apt28")
// count, while "apt" inside "captured" does not.
func keywordPattern(keywords ...string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)`)
}

func compileVocabulary(words []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		patterns[i] = keywordPattern(w)
	}
	return patterns
}

// DetermineSeverity infers severity from keywords in the description, tags
// and section name.
func DetermineSeverity(description string, tags []string, section string) Severity {
	text := strings.ToLower(description + " " + strings.Join(tags, " ") + " " + section)
	for _, tier := range severityTiers {
		if tier.keywords.MatchString(text) {
			return tier.severity
		}
	}
	return SeverityLow
}

// ExtractTags derives the tag set from the section name and the raw text.
func ExtractTags(text, section string) []string {
	var tags []string
	if slug := SectionSlug(section); slug != "" {
		tags = append(tags, slug)
	}

	lower := strings.ToLower(text)
	for i, pattern := range tagPatterns {
		if pattern.MatchString(lower) {
			tags = append(tags, tagVocabulary[i])
		}
	}
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tags = append(tags, strings.ToLower(m[1]))
	}
	return RemoveDuplicates(tags)
}

// SectionSlug lowercases a section name and joins its words with hyphens.
func SectionSlug(section string) string {
	return strings.Join(strings.Fields(strings.ToLower(section)), "-")
}

// GenericDescription is used when no descriptive text survives.
const GenericDescription = "Indicator extracted from the CiberVengadores IOC repository"

// BuildTableDescription assembles a description from a table row.
func BuildTableDescription(tableData map[string]string, section string) string {
	var parts []string
	for _, field := range []string{FieldDescription, FieldDetection} {
		if v := strings.TrimSpace(tableData[field]); v != "" {
			parts = append(parts, v)
			break
		}
	}

	if file := strings.TrimSpace(tableData[FieldFile]); file != "" && !anyContains(parts, file, false) {
		parts = append(parts, "File: "+file)
	}
	if section != "" && !anyContains(parts, section, true) {
		parts = append(parts, "Section: "+section)
	}

	if len(parts) == 0 {
		return GenericDescription
	}
	return strings.Join(parts, " | ")
}

// BuildTextDescription assembles a description from a free-text line. The
// label is the term of a labeled list item and may be empty.
func BuildTextDescription(text, section, label string) string {
	residual := ResidualText(text)

	var parts []string
	if label != "" && label != residual && len(label) > 2 {
		parts = append(parts, label)
	}
	if len(residual) > 3 {
		parts = append(parts, residual)
	}
	if section != "" && !anyContains(parts, section, true) {
		parts = append(parts, "Related to: "+section)
	}

	if len(parts) == 0 {
		return GenericDescription
	}
	return strings.Join(parts, " - ")
}

// ResidualText removes indicator-shaped substrings and markup punctuation,
// leaving the narrative part of a line.
func ResidualText(text string) string {
	residual := text
	for _, pattern := range []*regexp.Regexp{urlExtract, emailExtract, ipExtract, hashExtract, registryExtract, fileExtract, domainExtract} {
		residual = pattern.ReplaceAllString(residual, " ")
	}
	residual = markupPunct.ReplaceAllString(residual, " ")
	return strings.TrimSpace(collapseSpaces.ReplaceAllString(residual, " "))
}

// splitLabeledItem splits "Term:: text" into its term and text.
func splitLabeledItem(line string) (label, text string) {
	m := labeledListItem.FindStringSubmatch(line)
	if m == nil {
		return "", line
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
}

func anyContains(parts []string, needle string, foldCase bool) bool {
	if foldCase {
		needle = strings.ToLower(needle)
	}
	for _, part := range parts {
		if foldCase {
			part = strings.ToLower(part)
		}
		if strings.Contains(part, needle) {
			return true
		}
	}
	return false
}

// Canonical table fields recognized across header spellings.
const (
	FieldHash        = "hash"
	FieldFile        = "archivo"
	FieldDetection   = "deteccion"
	FieldDescription = "descripcion"
)

// headerAliases maps normalized header names to canonical fields.
var headerAliases = map[string]string{
	"hash":        FieldHash,
	"hashes":      FieldHash,
	"md5":         FieldHash,
	"sha1":        FieldHash,
	"sha256":      FieldHash,
	"sha512":      FieldHash,
	"archivo":     FieldFile,
	"file":        FieldFile,
	"filename":    FieldFile,
	"fichero":     FieldFile,
	"nombre":      FieldFile,
	"deteccion":   FieldDetection,
	"detecciones": FieldDetection,
	"detection":   FieldDetection,
	"detections":  FieldDetection,
	"descripcion": FieldDescription,
	"description": FieldDescription,
	"desc":        FieldDescription,
}

// NormalizeHeader lowercases a header, folds accents and drops everything
// outside [a-z0-9].
func NormalizeHeader(header string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), header)
	if err != nil {
		folded = header
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalField returns the canonical field for a normalized header, or "".
func CanonicalField(normalized string) string {
	return headerAliases[normalized]
}

// candidateContext carries what the classifier knows about where a
// candidate was found.
type candidateContext struct {
	Section   string
	Raw       string            // source text the tags come from: the line, or the cell in a table
	Body      string            // line text without its list label
	Label     string            // labeled list term, free text only
	TableData map[string]string // nil outside tables
	FromTable bool
}

// Classifier turns validated candidates into Indicator records.
type Classifier struct {
	source string
	newID  func() string
}

// NewClassifier creates a classifier stamping records with source and ids
// from newID.
func NewClassifier(source string, newID func() string) *Classifier {
	return &Classifier{source: source, newID: newID}
}

// Classify builds an Indicator for value, or reports false when the value
// does not pass the validity filter.
func (c *Classifier) Classify(value string, ctx candidateContext, now time.Time) (Indicator, bool) {
	kind := ResolveType(value)
	if !IsValidCandidate(value, kind, ctx.FromTable) {
		return Indicator{}, false
	}

	var description string
	if ctx.FromTable {
		description = BuildTableDescription(ctx.TableData, ctx.Section)
	} else {
		description = BuildTextDescription(ctx.Body, ctx.Section, ctx.Label)
	}
	tags := ExtractTags(ctx.Raw, ctx.Section)

	ioc := Indicator{
		ID:          c.newID(),
		Type:        kind,
		Value:       NormalizeValue(value, kind),
		Description: description,
		Severity:    DetermineSeverity(description, tags, ctx.Section),
		Source:      c.source,
		DateAdded:   now,
		Tags:        tags,
		Status:      StatusActive,
	}
	if len(ctx.TableData) > 0 {
		ioc.TableData = make(map[string]string, len(ctx.TableData))
		for k, v := range ctx.TableData {
			ioc.TableData[k] = v
		}
	}
	return ioc, true
}

// RemoveDuplicates returns items without repeats, keeping first occurrences.
func RemoveDuplicates(items []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}
