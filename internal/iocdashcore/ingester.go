package iocdashcore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// IngestedDocument is one parsed file from a document directory.
type IngestedDocument struct {
	Name     string          `json:"name"` // slash-separated path relative to the ingest root
	Path     string          `json:"path"`
	Checksum string          `json:"checksum"`
	Document *ParsedDocument `json:"document"`
}

// DataIngester reads IOC documents from local files and parses them.
type DataIngester struct {
	parser      *Parser
	extensions  []string
	concurrency int
	logger      *zap.SugaredLogger
}

// NewDataIngester creates an ingester. Extensions are matched
// case-insensitively; concurrency below 1 means one file at a time.
func NewDataIngester(parser *Parser, extensions []string, concurrency int, logger *zap.SugaredLogger) *DataIngester {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	exts := make([]string, len(extensions))
	for i, ext := range extensions {
		exts[i] = strings.ToLower(ext)
	}
	return &DataIngester{
		parser:      parser,
		extensions:  exts,
		concurrency: concurrency,
		logger:      logger,
	}
}

// IngestPath ingests a single file or every matching file below a directory.
func (di *DataIngester) IngestPath(ctx context.Context, path string) ([]IngestedDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		doc, err := di.IngestFile(path, filepath.Base(path))
		if err != nil {
			return nil, err
		}
		return []IngestedDocument{*doc}, nil
	}
	return di.IngestDirectory(ctx, path)
}

// IngestDirectory parses every matching file below dirPath with bounded
// parallelism. Files that fail are logged and skipped. The result is sorted
// by name.
func (di *DataIngester) IngestDirectory(ctx context.Context, dirPath string) ([]IngestedDocument, error) {
	files, err := di.listFiles(dirPath)
	if err != nil {
		return nil, err
	}
	di.logger.Infow("Found documents to process", "dir", dirPath, "count", len(files))

	results := make([]*IngestedDocument, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(di.concurrency)

	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name, err := filepath.Rel(dirPath, path)
			if err != nil {
				name = filepath.Base(path)
			}
			doc, err := di.IngestFile(path, filepath.ToSlash(name))
			if err != nil {
				di.logger.Warnw("Error ingesting file", "path", path, "error", err)
				return nil
			}
			results[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingest of %s interrupted: %w", dirPath, err)
	}

	docs := make([]IngestedDocument, 0, len(results))
	for _, doc := range results {
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// IngestFile reads and parses one document.
func (di *DataIngester) IngestFile(path, name string) (*IngestedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	doc := di.parser.Parse(string(data))
	di.logger.Debugw("Processed document", "name", name, "indicators", doc.TotalCount)
	return &IngestedDocument{
		Name:     name,
		Path:     path,
		Checksum: fmt.Sprintf("%x", sha256.Sum256(data)),
		Document: doc,
	}, nil
}

func (di *DataIngester) listFiles(dirPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && di.matches(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dirPath, err)
	}
	return files, nil
}

func (di *DataIngester) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range di.extensions {
		if ext == want {
			return true
		}
	}
	return false
}
