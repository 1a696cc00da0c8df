package iocdashcore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

const (
	DocumentBucket  = "documents"
	IndicatorBucket = "indicator_index"
)

// ErrDocumentNotFound is returned when no snapshot exists under a name.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentSnapshot is a stored parse result
type DocumentSnapshot struct {
	Name     string          `json:"name"`
	Checksum string          `json:"checksum"`
	SavedAt  time.Time       `json:"savedAt"`
	Document *ParsedDocument `json:"document"`
}

// CollectionStats provides analytics over all stored snapshots
type CollectionStats struct {
	TotalDocuments    int                   `json:"totalDocuments"`
	TotalIndicators   int                   `json:"totalIndicators"`
	UniqueIndicators  int                   `json:"uniqueIndicators"`
	TypeFrequency     map[IndicatorType]int `json:"typeFrequency"`
	SeverityFrequency map[Severity]int      `json:"severityFrequency"`
	TagFrequency      map[string]int        `json:"tagFrequency"`
}

// SnapshotStore keeps parse results in a bolt database, keyed by document
// name, with a reverse index from indicator to documents.
type SnapshotStore struct {
	db     *bolt.DB
	logger *zap.SugaredLogger
}

// NewSnapshotStore opens (or creates) the database at dbPath.
func NewSnapshotStore(dbPath string, logger *zap.SugaredLogger) (*SnapshotStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{DocumentBucket, IndicatorBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SnapshotStore{db: db, logger: logger}, nil
}

// IndicatorKey is the natural key of an indicator: "type:lowercase value".
func IndicatorKey(ioc Indicator) string {
	return string(ioc.Type) + ":" + strings.ToLower(ioc.Value)
}

// SaveDocument stores a snapshot, replacing any previous snapshot with the
// same name, and updates the indicator index.
func (s *SnapshotStore) SaveDocument(snap *DocumentSnapshot) error {
	if snap == nil || snap.Document == nil || snap.Name == "" {
		return fmt.Errorf("invalid snapshot")
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket([]byte(DocumentBucket))
		index := tx.Bucket([]byte(IndicatorBucket))
		if docs == nil || index == nil {
			return fmt.Errorf("snapshot buckets not found")
		}

		if previous := docs.Get([]byte(snap.Name)); previous != nil {
			var old DocumentSnapshot
			if err := json.Unmarshal(previous, &old); err == nil && old.Document != nil {
				for _, ioc := range old.Document.Indicators {
					if err := updateIndexEntry(index, IndicatorKey(ioc), snap.Name, false); err != nil {
						return err
					}
				}
			}
		}

		if err := docs.Put([]byte(snap.Name), data); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		for _, ioc := range snap.Document.Indicators {
			if err := updateIndexEntry(index, IndicatorKey(ioc), snap.Name, true); err != nil {
				return err
			}
		}

		s.logger.Debugw("Saved snapshot", "name", snap.Name, "indicators", snap.Document.TotalCount)
		return nil
	})
}

// updateIndexEntry adds or removes name from the sorted name list stored
// under key. Empty lists are deleted.
func updateIndexEntry(bucket *bolt.Bucket, key, name string, add bool) error {
	var names []string
	if raw := bucket.Get([]byte(key)); raw != nil {
		if err := json.Unmarshal(raw, &names); err != nil {
			return fmt.Errorf("corrupt index entry %s: %w", key, err)
		}
	}

	at := sort.SearchStrings(names, name)
	present := at < len(names) && names[at] == name
	switch {
	case add && !present:
		names = append(names, "")
		copy(names[at+1:], names[at:])
		names[at] = name
	case !add && present:
		names = append(names[:at], names[at+1:]...)
	default:
		return nil
	}

	if len(names) == 0 {
		return bucket.Delete([]byte(key))
	}
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to marshal index entry: %w", err)
	}
	return bucket.Put([]byte(key), data)
}

// GetDocument retrieves a snapshot by name
func (s *SnapshotStore) GetDocument(name string) (*DocumentSnapshot, error) {
	var snap DocumentSnapshot

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(DocumentBucket))
		if bucket == nil {
			return fmt.Errorf("document bucket not found")
		}

		data := bucket.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
		}
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListDocuments returns snapshots in name order. A limit of 0 returns all.
func (s *SnapshotStore) ListDocuments(limit int) ([]*DocumentSnapshot, error) {
	var snaps []*DocumentSnapshot

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(DocumentBucket))
		if bucket == nil {
			return fmt.Errorf("document bucket not found")
		}

		cursor := bucket.Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			if limit > 0 && len(snaps) >= limit {
				break
			}
			var snap DocumentSnapshot
			if err := json.Unmarshal(value, &snap); err != nil {
				s.logger.Warnw("Skipping unreadable snapshot", "name", string(key), "error", err)
				continue
			}
			snaps = append(snaps, &snap)
		}
		return nil
	})

	return snaps, err
}

// DeleteDocument removes a snapshot and its index entries.
func (s *SnapshotStore) DeleteDocument(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket([]byte(DocumentBucket))
		index := tx.Bucket([]byte(IndicatorBucket))
		raw := docs.Get([]byte(name))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
		}
		var snap DocumentSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil && snap.Document != nil {
			for _, ioc := range snap.Document.Indicators {
				if err := updateIndexEntry(index, IndicatorKey(ioc), name, false); err != nil {
					return err
				}
			}
		}
		return docs.Delete([]byte(name))
	})
}

// LookupIndicator lists the documents that contain the given indicator.
func (s *SnapshotStore) LookupIndicator(kind IndicatorType, value string) ([]string, error) {
	var names []string
	key := IndicatorKey(Indicator{Type: kind, Value: value})

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(IndicatorBucket))
		if bucket == nil {
			return fmt.Errorf("indicator bucket not found")
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &names)
	})
	return names, err
}

// CollectionStats computes statistics over every stored snapshot
func (s *SnapshotStore) CollectionStats() (*CollectionStats, error) {
	stats := &CollectionStats{
		TypeFrequency:     make(map[IndicatorType]int),
		SeverityFrequency: make(map[Severity]int),
		TagFrequency:      make(map[string]int),
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		docs := tx.Bucket([]byte(DocumentBucket))
		if docs == nil {
			return fmt.Errorf("document bucket not found")
		}

		cursor := docs.Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			var snap DocumentSnapshot
			if err := json.Unmarshal(value, &snap); err != nil || snap.Document == nil {
				continue
			}

			stats.TotalDocuments++
			for _, ioc := range snap.Document.Indicators {
				stats.TotalIndicators++
				stats.TypeFrequency[ioc.Type]++
				stats.SeverityFrequency[ioc.Severity]++
				for _, tag := range ioc.Tags {
					stats.TagFrequency[tag]++
				}
			}
		}

		stats.UniqueIndicators = tx.Bucket([]byte(IndicatorBucket)).Stats().KeyN
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close closes the database connection
func (s *SnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
