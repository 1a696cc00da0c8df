package iocdashcore

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const maxDocumentBytes = 10 << 20

// APIServer exposes parsing, search and stored snapshots over HTTP. The
// store and the index are optional; endpoints that need a missing one
// answer 503.
type APIServer struct {
	parser *Parser
	store  *SnapshotStore
	index  bleve.Index
	logger *zap.SugaredLogger
	now    func() time.Time
}

// DocumentListing is the summary of a stored snapshot returned by the API
type DocumentListing struct {
	Name        string                `json:"name"`
	Checksum    string                `json:"checksum"`
	SavedAt     time.Time             `json:"savedAt"`
	TotalCount  int                   `json:"totalCount"`
	Categories  map[IndicatorType]int `json:"categories"`
	LastUpdated time.Time             `json:"lastUpdated"`
}

// NewAPIServer creates the server. store and index may be nil.
func NewAPIServer(parser *Parser, store *SnapshotStore, index bleve.Index, logger *zap.SugaredLogger) *APIServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &APIServer{parser: parser, store: store, index: index, logger: logger, now: time.Now}
}

// Handler returns the routed API wrapped in CORS handling for origins.
func (s *APIServer) Handler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/parse", s.handleParse)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/lookup", s.handleLookup)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{name...}", s.handleGetDocument)
	mux.HandleFunc("DELETE /api/documents/{name...}", s.handleDeleteDocument)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleParse parses the request body. With ?name= and a configured store
// the result is also saved as a snapshot.
func (s *APIServer) handleParse(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	doc := s.parser.Parse(string(data))

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name != "" {
		if s.store == nil {
			s.writeError(w, http.StatusServiceUnavailable, "snapshot store is not configured")
			return
		}
		previous, err := s.store.GetDocument(name)
		if err != nil && !errors.Is(err, ErrDocumentNotFound) {
			s.logger.Errorw("Failed to load previous snapshot", "name", name, "error", err)
			s.writeError(w, http.StatusInternalServerError, "could not save snapshot")
			return
		}
		snap := &DocumentSnapshot{
			Name:     name,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(data)),
			SavedAt:  s.now().UTC(),
			Document: doc,
		}
		if err := s.store.SaveDocument(snap); err != nil {
			s.logger.Errorw("Failed to save snapshot", "name", name, "error", err)
			s.writeError(w, http.StatusInternalServerError, "could not save snapshot")
			return
		}
		if s.index != nil {
			if previous != nil {
				s.unindex(name, previous.Document)
			}
			if _, err := IndexDocument(s.index, name, doc); err != nil {
				s.logger.Warnw("Failed to index snapshot", "name", name, "error", err)
			}
		}
	}

	s.logger.Infow("Parsed document", "name", name, "indicators", doc.TotalCount)
	s.writeJSON(w, http.StatusOK, doc)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentBytes)
	}
	return data, nil
}

func (s *APIServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.writeError(w, http.StatusServiceUnavailable, "search index is not configured")
		return
	}

	params := r.URL.Query()
	q := SearchQuery{
		Query:    params.Get("query"),
		Type:     IndicatorType(params.Get("type")),
		Severity: Severity(params.Get("severity")),
	}
	if q.Type != "" && !q.Type.IsValid() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown indicator type %q", q.Type))
		return
	}
	if q.Severity != "" && q.Severity.Rank() < 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown severity %q", q.Severity))
		return
	}
	if raw := params.Get("size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			s.writeError(w, http.StatusBadRequest, "size must be a positive integer")
			return
		}
		q.Size = size
	}

	result, err := SearchIndicators(s.index, q)
	if err != nil {
		s.logger.Errorw("Search failed", "query", q.Query, "error", err)
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *APIServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "snapshot store is not configured")
		return
	}
	kind := IndicatorType(r.URL.Query().Get("type"))
	value := r.URL.Query().Get("value")
	if !kind.IsValid() || value == "" {
		s.writeError(w, http.StatusBadRequest, "type and value are required")
		return
	}

	names, err := s.store.LookupIndicator(kind, NormalizeValue(value, kind))
	if err != nil {
		s.logger.Errorw("Lookup failed", "type", kind, "value", value, "error", err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"type": kind, "value": value, "documents": names})
}

func (s *APIServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "snapshot store is not configured")
		return
	}
	stats, err := s.store.CollectionStats()
	if err != nil {
		s.logger.Errorw("Failed to compute stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not compute stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *APIServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "snapshot store is not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	snaps, err := s.store.ListDocuments(limit)
	if err != nil {
		s.logger.Errorw("Failed to list documents", "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not list documents")
		return
	}

	listings := make([]DocumentListing, 0, len(snaps))
	for _, snap := range snaps {
		listings = append(listings, DocumentListing{
			Name:        snap.Name,
			Checksum:    snap.Checksum,
			SavedAt:     snap.SavedAt,
			TotalCount:  snap.Document.TotalCount,
			Categories:  snap.Document.Categories,
			LastUpdated: snap.Document.LastUpdated,
		})
	}
	s.writeJSON(w, http.StatusOK, listings)
}

func (s *APIServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "snapshot store is not configured")
		return
	}
	snap, err := s.store.GetDocument(r.PathValue("name"))
	if errors.Is(err, ErrDocumentNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Errorw("Failed to load document", "name", r.PathValue("name"), "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not load document")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *APIServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "snapshot store is not configured")
		return
	}
	name := r.PathValue("name")
	snap, err := s.store.GetDocument(name)
	if err == nil {
		err = s.store.DeleteDocument(name)
	}
	if errors.Is(err, ErrDocumentNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Errorw("Failed to delete document", "name", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not delete document")
		return
	}
	if s.index != nil {
		s.unindex(name, snap.Document)
	}
	w.WriteHeader(http.StatusNoContent)
}

// unindex drops the search entries of a stored document version.
func (s *APIServer) unindex(name string, doc *ParsedDocument) {
	removed, err := RemoveDocument(s.index, name, doc)
	if err != nil {
		s.logger.Warnw("Failed to remove indexed indicators", "name", name, "error", err)
		return
	}
	s.logger.Debugw("Removed indexed indicators", "name", name, "count", removed)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnw("Failed to encode response", "error", err)
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
