package iocdashcore

import (
	"regexp"
	"strconv"
	"strings"
)

// Recognizer patterns are compiled once and shared read-only by every parse.
var (
	boldMarkup      = regexp.MustCompile(`(^|[^\w*])\*([^*\s](?:[^*]*[^*\s])?)\*($|[^\w*])`)
	italicMarkup    = regexp.MustCompile(`(^|[^\w_])_([^_\s](?:[^_]*[^_\s])?)_($|[^\w_])`)
	codeMarkup      = regexp.MustCompile("`([^`]+)`")
	crossReference  = regexp.MustCompile(`<<[^>]+>>`)
	linkMacro       = regexp.MustCompile(`link:[^\[\s]+\[[^\]]*\]`)
	bracketedText   = regexp.MustCompile(`\[([^\]]*)\]`)
	collapseSpaces  = regexp.MustCompile(`\s+`)
	ipExtract       = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)(?:/(?:3[0-2]|[12][0-9]|[0-9]))?\b`)
	hashExtract     = regexp.MustCompile(`\b[a-fA-F0-9]{32,128}\b`)
	urlExtract      = regexp.MustCompile(`https?://[-\w.]+(?::[0-9]+)?(?:/[\w/.\-~%+]*(?:\?[\w&=%.\-+]*)?(?:#[\w.\-]*)?)?`)
	emailExtract    = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}\b`)
	domainExtract   = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}\b`)
	fileExtract     = regexp.MustCompile(`(?:^|[\s(])(/[^<>"{}|\\^\x60\[\]\s]+)|([A-Za-z]:\\[^<>"{}|^\x60\[\]\s]*)|([^\s<>"{}|\\^\x60\[\]]*\.(?i:` + fileExtensions + `)\b)`)
	registryExtract = regexp.MustCompile(`(?i)HKEY_(?:CLASSES_ROOT|CURRENT_USER|LOCAL_MACHINE|USERS|CURRENT_CONFIG)\\[^\s<>"{}|^\x60\[\]]+`)

	placeholderWord = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:example|test)(?:\.|$|[^a-z0-9])`)
	placeholderHost = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:example|test)\.`)
	versionOnly     = regexp.MustCompile(`^v?\d+(?:\.\d+)+$`)
	digitsAndDots   = regexp.MustCompile(`^[0-9.]+$`)
)

// fileExtensions is the executable/document/archive vocabulary for file candidates.
const fileExtensions = `exe|dll|bat|cmd|ps1|vbs|scr|jar|pdf|docx|doc|xlsx|xls|pptx|ppt|zip|rar|7z|bin|sys|tmp`

var fileExtensionSet = func() map[string]bool {
	set := make(map[string]bool)
	for _, ext := range strings.Split(fileExtensions, "|") {
		set[ext] = true
	}
	return set
}()

// hostDenylist holds hosts that appear in IOC documents without being indicators:
// the hosting platform, the markup toolchain and loopback names.
var hostDenylist = []string{
	"localhost",
	"github.com",
	"githubusercontent.com",
	"asciidoc",
}

// recognizer finds candidates of one indicator shape inside a text fragment.
type recognizer struct {
	kind    IndicatorType
	pattern *regexp.Regexp
	// accept validates a raw match and returns the candidate to keep.
	accept func(match string) (string, bool)
}

// Extractor scans text fragments for indicator candidates.
// The zero value is not usable; create it with NewExtractor.
type Extractor struct {
	recognizers []recognizer
}

// NewExtractor builds an extractor with the recognizers in scan order.
func NewExtractor() *Extractor {
	return &Extractor{
		recognizers: []recognizer{
			{kind: TypeIP, pattern: ipExtract, accept: acceptIP},
			{kind: TypeHash, pattern: hashExtract, accept: acceptHash},
			{kind: TypeURL, pattern: urlExtract, accept: acceptURL},
			{kind: TypeEmail, pattern: emailExtract, accept: acceptEmail},
			{kind: TypeDomain, pattern: domainExtract, accept: acceptDomain},
			{kind: TypeFile, pattern: fileExtract, accept: acceptFile},
			{kind: TypeRegistry, pattern: registryExtract, accept: acceptRegistry},
		},
	}
}

// Extract returns the distinct indicator candidates found in text, in
// recognizer order and then match order.
func (e *Extractor) Extract(text string) []string {
	clean := StripMarkup(text)
	if clean == "" {
		return nil
	}

	var candidates []string
	seen := make(map[string]bool)
	for _, r := range e.recognizers {
		for _, match := range findAll(r.pattern, clean) {
			value, ok := r.accept(match)
			if !ok || seen[value] {
				continue
			}
			seen[value] = true
			candidates = append(candidates, value)
		}
	}
	return candidates
}

// findAll returns whole matches, or the first non-empty capture group when
// the pattern carries groups.
func findAll(pattern *regexp.Regexp, text string) []string {
	if pattern.NumSubexp() == 0 {
		return pattern.FindAllString(text, -1)
	}
	var out []string
	for _, groups := range pattern.FindAllStringSubmatch(text, -1) {
		for _, g := range groups[1:] {
			if g != "" {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// StripMarkup removes inline formatting so that markup characters do not
// glue onto indicator values.
func StripMarkup(text string) string {
	clean := crossReference.ReplaceAllString(text, " ")
	clean = linkMacro.ReplaceAllString(clean, " ")
	clean = codeMarkup.ReplaceAllString(clean, "$1")
	clean = replaceConstrained(boldMarkup, clean)
	clean = replaceConstrained(italicMarkup, clean)
	clean = bracketedText.ReplaceAllString(clean, " $1 ")
	return strings.TrimSpace(collapseSpaces.ReplaceAllString(clean, " "))
}

// replaceConstrained unwraps constrained formatting pairs. Adjacent pairs
// share a boundary character, so it repeats until the text is stable.
func replaceConstrained(pattern *regexp.Regexp, text string) string {
	for i := 0; i < 4; i++ {
		next := pattern.ReplaceAllString(text, "$1$2$3")
		if next == text {
			break
		}
		text = next
	}
	return text
}

func acceptIP(match string) (string, bool) {
	addr, mask, hasMask := strings.Cut(match, "/")
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return "", false
	}
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
	}
	if hasMask {
		bits, err := strconv.Atoi(mask)
		if err != nil || bits < 0 || bits > 32 {
			return "", false
		}
	}
	return match, true
}

func acceptHash(match string) (string, bool) {
	switch len(match) {
	case 32, 40, 64, 128:
		return strings.ToLower(match), true
	}
	return "", false
}

func acceptURL(match string) (string, bool) {
	if len(match) < 10 || placeholderHost.MatchString(candidateHost(match)) {
		return "", false
	}
	return match, true
}

func acceptEmail(match string) (string, bool) {
	_, host, ok := strings.Cut(match, "@")
	if !ok || len(match) < 5 || placeholderHost.MatchString(host) || deniedHost(host) {
		return "", false
	}
	return match, true
}

func acceptDomain(match string) (string, bool) {
	domain := strings.ToLower(match)
	if !plausibleDomain(domain) || placeholderHost.MatchString(domain) || deniedHost(domain) {
		return "", false
	}
	return domain, true
}

func acceptFile(match string) (string, bool) {
	if len(match) <= 4 || placeholderWord.MatchString(match) {
		return "", false
	}
	if !strings.ContainsAny(match, `\/.`) {
		return "", false
	}
	return match, true
}

func acceptRegistry(match string) (string, bool) {
	if len(match) <= 10 {
		return "", false
	}
	return match, true
}

// plausibleDomain applies the structural domain checks shared by the
// recognizer and the type resolver.
func plausibleDomain(domain string) bool {
	if len(domain) < 4 || strings.Contains(domain, "..") {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	if versionOnly.MatchString(domain) || digitsAndDots.MatchString(domain) {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" {
			return false
		}
	}
	// evil.exe is a file name, not a host
	return !fileExtensionSet[strings.ToLower(labels[len(labels)-1])]
}

// candidateHost returns the host of a url or email candidate. Other values
// are returned unchanged.
func candidateHost(value string) string {
	if scheme := strings.Index(value, "://"); scheme >= 0 {
		host := value[scheme+3:]
		if end := strings.IndexAny(host, "/?#"); end >= 0 {
			host = host[:end]
		}
		if at := strings.LastIndex(host, "@"); at >= 0 {
			host = host[at+1:]
		}
		return host
	}
	if _, host, ok := strings.Cut(value, "@"); ok {
		return host
	}
	return value
}

func deniedHost(host string) bool {
	lower := strings.ToLower(host)
	for _, denied := range hostDenylist {
		if strings.Contains(lower, denied) {
			return true
		}
	}
	return false
}
