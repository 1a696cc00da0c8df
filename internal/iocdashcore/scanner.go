package iocdashcore

import (
	"regexp"
	"strings"
)

// EventKind identifies what a scanned line means to the extraction pipeline
type EventKind int

const (
	EventSection EventKind = iota
	EventTableStart
	EventTableEnd
	EventTableRow
	EventText
)

func (k EventKind) String() string {
	switch k {
	case EventSection:
		return "section"
	case EventTableStart:
		return "table-start"
	case EventTableEnd:
		return "table-end"
	case EventTableRow:
		return "table-row"
	case EventText:
		return "text"
	}
	return "unknown"
}

// TableHeader is one column header in original and normalized spelling
type TableHeader struct {
	Original   string
	Normalized string
}

// ScanEvent is a classified line with the scanner state at that line
type ScanEvent struct {
	Kind    EventKind
	LineNo  int // 1-based
	Text    string
	Section string
	Headers []TableHeader // current table headers, table events only
	Cells   []string      // EventTableRow only
}

// headingLine matches "= Title", "== Title", ...
var headingLine = regexp.MustCompile(`^=+\s+`)

const tableFence = "|==="

// ScanDocument walks content line by line, calling visit for every line that
// matters downstream, and returns the document counters.
func ScanDocument(content string, visit func(ScanEvent)) FileStats {
	var stats FileStats
	if content == "" {
		return stats
	}

	lines := strings.Split(content, "\n")
	stats.TotalLines = len(lines)
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		stats.NonEmptyLines++
		if !isSkippable(line) && !headingLine.MatchString(line) && line != tableFence {
			stats.ContentLines++
		}
	}

	var (
		section string
		inTable bool
		headers []TableHeader
	)
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || isSkippable(line) {
			continue
		}

		if headingLine.MatchString(line) {
			if inTable {
				// a heading closes an unterminated table
				visit(ScanEvent{Kind: EventTableEnd, LineNo: i + 1, Text: line, Section: section, Headers: headers})
			}
			section = strings.TrimSpace(headingLine.ReplaceAllString(line, ""))
			stats.SectionsFound++
			inTable = false
			headers = nil
			visit(ScanEvent{Kind: EventSection, LineNo: i + 1, Text: line, Section: section})
			continue
		}

		if line == tableFence {
			inTable = !inTable
			if !inTable {
				visit(ScanEvent{Kind: EventTableEnd, LineNo: i + 1, Text: line, Section: section, Headers: headers})
				headers = nil
				continue
			}
			stats.TablesFound++
			fenceNo := i + 1
			headers = nil
			if i+1 < len(lines) {
				if next := strings.TrimSpace(lines[i+1]); strings.HasPrefix(next, "|") && next != tableFence {
					headers = parseHeaders(next)
					i++
				}
			}
			visit(ScanEvent{Kind: EventTableStart, LineNo: fenceNo, Text: line, Section: section, Headers: headers})
			continue
		}

		if inTable {
			if strings.HasPrefix(line, "|") {
				visit(ScanEvent{
					Kind:    EventTableRow,
					LineNo:  i + 1,
					Text:    line,
					Section: section,
					Headers: headers,
					Cells:   SplitCells(line),
				})
			}
			continue
		}

		visit(ScanEvent{Kind: EventText, LineNo: i + 1, Text: line, Section: section})
	}

	return stats
}

// isSkippable reports comment and attribute directive lines
func isSkippable(line string) bool {
	return strings.HasPrefix(line, "//") || strings.HasPrefix(line, ":")
}

// SplitCells splits a table line on "|" and returns the trimmed, non-empty cells.
func SplitCells(line string) []string {
	var cells []string
	for _, cell := range strings.Split(line, "|") {
		if cell = strings.TrimSpace(cell); cell != "" {
			cells = append(cells, cell)
		}
	}
	return cells
}

func parseHeaders(line string) []TableHeader {
	cells := SplitCells(line)
	headers := make([]TableHeader, len(cells))
	for i, cell := range cells {
		headers[i] = TableHeader{Original: cell, Normalized: NormalizeHeader(cell)}
	}
	return headers
}

// RowData aligns cells with headers. Each cell is stored under the original
// header, the normalized header and, when the header is a known alias, the
// canonical field name. Cells past the last header are left out.
func RowData(headers []TableHeader, cells []string) map[string]string {
	if len(headers) == 0 || len(cells) == 0 {
		return nil
	}
	data := make(map[string]string, len(cells)*3)
	for i, cell := range cells {
		if i >= len(headers) {
			break
		}
		h := headers[i]
		data[h.Original] = cell
		if h.Normalized != "" {
			data[h.Normalized] = cell
		}
		if field := CanonicalField(h.Normalized); field != "" {
			if _, taken := data[field]; !taken || field == h.Normalized {
				data[field] = cell
			}
		}
	}
	return data
}
