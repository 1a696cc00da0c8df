package iocdashcore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	indicatorDocType = "indicator"
	indexBatchSize   = 100
	defaultHitCount  = 10
	maxHitCount      = 500
)

// IndicatorDocument is the flattened indicator stored in the bleve index.
type IndicatorDocument struct {
	Document    string    `json:"document"`
	Type        string    `json:"type"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Tags        []string  `json:"tags"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	DateAdded   time.Time `json:"dateAdded"`
}

// BleveType selects the document mapping.
func (IndicatorDocument) BleveType() string {
	return indicatorDocType
}

// NewIndicatorDocument flattens ioc for indexing under document name docName.
func NewIndicatorDocument(docName string, ioc Indicator) IndicatorDocument {
	return IndicatorDocument{
		Document:    docName,
		Type:        string(ioc.Type),
		Value:       ioc.Value,
		Description: ioc.Description,
		Severity:    string(ioc.Severity),
		Tags:        ioc.Tags,
		Source:      ioc.Source,
		Status:      string(ioc.Status),
		DateAdded:   ioc.DateAdded,
	}
}

// IndicatorDocID is stable across re-parses of the same document, so
// re-indexing replaces instead of duplicating.
func IndicatorDocID(docName string, ioc Indicator) string {
	return docName + "|" + IndicatorKey(ioc)
}

// CreateIndexMapping builds the index mapping for indicator documents.
func CreateIndexMapping() mapping.IndexMapping {
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	dateFieldMapping := bleve.NewDateTimeFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("document", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("type", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("value", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("severity", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("tags", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("source", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("status", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("dateAdded", dateFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping(indicatorDocType, docMapping)
	return indexMapping
}

// OpenOrCreateIndex opens the index at indexPath, creating it when missing.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	index, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		if dir := filepath.Dir(indexPath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create index directory: %w", err)
			}
		}
		index, err = bleve.New(indexPath, CreateIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create bleve index: %w", err)
		}
		return index, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}
	return index, nil
}

// IndexDocument indexes every indicator of doc in batches and returns how
// many were indexed.
func IndexDocument(index bleve.Index, docName string, doc *ParsedDocument) (int, error) {
	batch := index.NewBatch()
	count := 0

	for _, ioc := range doc.Indicators {
		if err := batch.Index(IndicatorDocID(docName, ioc), NewIndicatorDocument(docName, ioc)); err != nil {
			return count, fmt.Errorf("failed to add %s to batch: %w", ioc.Value, err)
		}
		count++

		if count%indexBatchSize == 0 {
			if err := index.Batch(batch); err != nil {
				return count, fmt.Errorf("failed to index batch: %w", err)
			}
			batch = index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return count, fmt.Errorf("failed to index final batch: %w", err)
		}
	}
	return count, nil
}

// RemoveDocument deletes the index entries of every indicator in doc, as
// indexed under docName. Ids that are not in the index are ignored.
func RemoveDocument(index bleve.Index, docName string, doc *ParsedDocument) (int, error) {
	if doc == nil {
		return 0, nil
	}
	batch := index.NewBatch()
	count := 0

	for _, ioc := range doc.Indicators {
		batch.Delete(IndicatorDocID(docName, ioc))
		count++

		if count%indexBatchSize == 0 {
			if err := index.Batch(batch); err != nil {
				return count, fmt.Errorf("failed to delete batch: %w", err)
			}
			batch = index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return count, fmt.Errorf("failed to delete final batch: %w", err)
		}
	}
	return count, nil
}

// SearchQuery filters indicator searches. Empty fields match everything.
type SearchQuery struct {
	Query    string
	Type     IndicatorType
	Severity Severity
	Size     int
}

// SearchHit is a single search result returned by the API
type SearchHit struct {
	ID          string   `json:"id"`
	Score       float64  `json:"score"`
	Document    string   `json:"document"`
	Type        string   `json:"type"`
	Value       string   `json:"value"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// SearchResult is a page of hits and the total match count.
type SearchResult struct {
	Total uint64      `json:"total"`
	Hits  []SearchHit `json:"hits"`
}

// BuildSearchQuery turns q into a bleve query: free text matches the
// description or the exact value, type and severity are exact filters.
func BuildSearchQuery(q SearchQuery) query.Query {
	var must []query.Query

	if text := strings.TrimSpace(q.Query); text != "" {
		description := bleve.NewMatchQuery(text)
		description.SetField("description")
		exact := bleve.NewTermQuery(text)
		exact.SetField("value")
		lower := bleve.NewTermQuery(strings.ToLower(text))
		lower.SetField("value")
		tag := bleve.NewTermQuery(strings.ToLower(text))
		tag.SetField("tags")
		must = append(must, bleve.NewDisjunctionQuery(description, exact, lower, tag))
	}
	if q.Type != "" {
		term := bleve.NewTermQuery(string(q.Type))
		term.SetField("type")
		must = append(must, term)
	}
	if q.Severity != "" {
		term := bleve.NewTermQuery(string(q.Severity))
		term.SetField("severity")
		must = append(must, term)
	}

	switch len(must) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return must[0]
	}
	return bleve.NewConjunctionQuery(must...)
}

// SearchIndicators runs q against the index.
func SearchIndicators(index bleve.Index, q SearchQuery) (*SearchResult, error) {
	size := q.Size
	if size <= 0 {
		size = defaultHitCount
	}
	if size > maxHitCount {
		size = maxHitCount
	}

	request := bleve.NewSearchRequest(BuildSearchQuery(q))
	request.Fields = []string{"document", "type", "value", "severity", "description", "tags"}
	request.Size = size

	results, err := index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := &SearchResult{Total: results.Total, Hits: make([]SearchHit, 0, len(results.Hits))}
	for _, hit := range results.Hits {
		out.Hits = append(out.Hits, SearchHit{
			ID:          hit.ID,
			Score:       hit.Score,
			Document:    fieldString(hit.Fields["document"]),
			Type:        fieldString(hit.Fields["type"]),
			Value:       fieldString(hit.Fields["value"]),
			Severity:    fieldString(hit.Fields["severity"]),
			Description: fieldString(hit.Fields["description"]),
			Tags:        fieldStrings(hit.Fields["tags"]),
		})
	}
	return out, nil
}

// fieldString reads a stored field, which bleve returns as a plain value for
// single values and as a slice for repeated ones.
func fieldString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []interface{}:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func fieldStrings(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// IndexSnapshots indexes every snapshot held in store and returns the number
// of indicators indexed.
func IndexSnapshots(store *SnapshotStore, index bleve.Index) (int, error) {
	snaps, err := store.ListDocuments(0)
	if err != nil {
		return 0, err
	}
	store.logger.Infow("Indexing snapshots", "count", len(snaps))

	total := 0
	for _, snap := range snaps {
		n, err := IndexDocument(index, snap.Name, snap.Document)
		total += n
		if err != nil {
			return total, fmt.Errorf("failed to index %s: %w", snap.Name, err)
		}
	}
	return total, nil
}
