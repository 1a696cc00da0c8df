package iocdashcore

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNilDocument is returned when no document is supplied at all. An empty
// document is valid and yields an empty result.
var ErrNilDocument = errors.New("nil document")

// Parser turns an IOC document into a ParsedDocument. It holds only
// read-only state, so one Parser may serve concurrent Parse calls.
type Parser struct {
	extractor  *Extractor
	classifier *Classifier
	policy     DuplicatePolicy
	logger     *zap.SugaredLogger
	clock      func() time.Time
}

// Option configures a Parser
type Option func(*parserOptions)

type parserOptions struct {
	source string
	policy DuplicatePolicy
	logger *zap.SugaredLogger
	clock  func() time.Time
	newID  func() string
}

// WithSource sets the provenance label stamped on every indicator.
func WithSource(source string) Option {
	return func(o *parserOptions) { o.source = source }
}

// WithDuplicatePolicy selects the deduplication policy. Unknown policies are
// ignored.
func WithDuplicatePolicy(policy DuplicatePolicy) Option {
	return func(o *parserOptions) {
		if policy.IsValid() {
			o.policy = policy
		}
	}
}

// WithLogger sets the logger used for the extraction trace.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *parserOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(o *parserOptions) { o.clock = clock }
}

// WithIDGenerator overrides the indicator id source.
func WithIDGenerator(newID func() string) Option {
	return func(o *parserOptions) { o.newID = newID }
}

// NewParser creates a Parser. Defaults: DefaultSource, FirstWins, a no-op
// logger, time.Now and random UUIDs.
func NewParser(opts ...Option) *Parser {
	o := parserOptions{
		source: DefaultSource,
		policy: FirstWins,
		logger: zap.NewNop().Sugar(),
		clock:  time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Parser{
		extractor:  NewExtractor(),
		classifier: NewClassifier(o.source, o.newID),
		policy:     o.policy,
		logger:     o.logger,
		clock:      o.clock,
	}
}

// ParseReader reads the whole document from r and parses it.
func (p *Parser) ParseReader(r io.Reader) (*ParsedDocument, error) {
	if r == nil {
		return nil, ErrNilDocument
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return p.Parse(string(data)), nil
}

// Parse extracts, classifies and deduplicates the indicators of content.
// Malformed markup never fails; the worst case is an empty result.
func (p *Parser) Parse(content string) *ParsedDocument {
	now := p.clock()
	var records []Indicator

	stats := ScanDocument(content, func(ev ScanEvent) {
		switch ev.Kind {
		case EventSection:
			p.logger.Debugw("Section", "name", ev.Section, "line", ev.LineNo)

		case EventTableStart:
			headers := make([]string, len(ev.Headers))
			for i, h := range ev.Headers {
				headers[i] = h.Original
			}
			p.logger.Debugw("Table opened", "section", ev.Section, "line", ev.LineNo, "headers", headers)

		case EventTableEnd:
			p.logger.Debugw("Table closed", "section", ev.Section, "line", ev.LineNo)

		case EventTableRow:
			rowData := RowData(ev.Headers, ev.Cells)
			before := len(records)
			for _, cell := range ev.Cells {
				for _, candidate := range p.extractor.Extract(cell) {
					ctx := candidateContext{
						Section:   ev.Section,
						Raw:       cell,
						Body:      cell,
						TableData: rowData,
						FromTable: true,
					}
					if ioc, ok := p.classifier.Classify(candidate, ctx, now); ok {
						records = append(records, ioc)
					}
				}
			}
			p.logger.Debugw("Table row", "line", ev.LineNo, "cells", len(ev.Cells), "indicators", len(records)-before)

		case EventText:
			label, body := splitLabeledItem(ev.Text)
			before := len(records)
			for _, candidate := range p.extractor.Extract(ev.Text) {
				ctx := candidateContext{
					Section: ev.Section,
					Raw:     ev.Text,
					Body:    body,
					Label:   label,
				}
				if ioc, ok := p.classifier.Classify(candidate, ctx, now); ok {
					records = append(records, ioc)
				}
			}
			if n := len(records) - before; n > 0 {
				p.logger.Debugw("Text line", "line", ev.LineNo, "section", ev.Section, "indicators", n)
			}
		}
	})

	doc := Aggregate(records, stats, p.policy, now)
	p.logger.Infow("Document parsed",
		"indicators", doc.TotalCount,
		"candidates", len(records),
		"sections", stats.SectionsFound,
		"tables", stats.TablesFound,
		"lines", stats.TotalLines,
	)
	return doc
}
