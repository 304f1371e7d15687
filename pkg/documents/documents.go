// Package documents holds the document model and the in-memory collection
// the CLI works against. The backend owns persistence; this collection only
// mirrors what the document service reports.
package documents

import (
	"sync"
	"time"
)

// FileType enumerates the upload kinds the backend accepts.
type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeAudio FileType = "audio"
	FileTypeVideo FileType = "video"
)

// IsMedia reports whether the file type has a playback surface.
func (t FileType) IsMedia() bool {
	return t == FileTypeAudio || t == FileTypeVideo
}

// Document is the backend's view of one uploaded file.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FileType   FileType  `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	Summary    string    `json:"summary,omitempty"`
	Processed  bool      `json:"processed"`
	CreatedAt  time.Time `json:"created_at"`
	ChunkCount int       `json:"chunk_count"`
}

// Collection is the set of known documents plus the current selection.
// Replace swaps a document record by id; when the replaced document is the
// selected one, the selection reference moves to the new record so
// dependent views observe the update.
type Collection struct {
	mu       sync.RWMutex
	docs     []Document
	selected string // id of the selected document, "" for none
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// SetAll replaces the whole collection, keeping the selection when the
// selected id still exists.
func (c *Collection) SetAll(docs []Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs = make([]Document, len(docs))
	copy(c.docs, docs)

	if c.selected != "" && c.lookupLocked(c.selected) == nil {
		c.selected = ""
	}
}

// Add appends a document if its id is not already present.
func (c *Collection) Add(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lookupLocked(doc.ID) != nil {
		return
	}
	c.docs = append(c.docs, doc)
}

// Replace swaps the record with the same id for the given document.
// Returns false when no record matches.
func (c *Collection) Replace(doc Document) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.docs {
		if c.docs[i].ID == doc.ID {
			c.docs[i] = doc
			return true
		}
	}
	return false
}

// Get returns the document with the given id.
func (c *Collection) Get(id string) (Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if d := c.lookupLocked(id); d != nil {
		return *d, true
	}
	return Document{}, false
}

// All returns a copy of the collection in insertion order.
func (c *Collection) All() []Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Document, len(c.docs))
	copy(out, c.docs)
	return out
}

// Select marks the document with the given id as selected.
// Returns false when the id is unknown; the selection is left unchanged.
func (c *Collection) Select(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lookupLocked(id) == nil {
		return false
	}
	c.selected = id
	return true
}

// ClearSelection drops the current selection.
func (c *Collection) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = ""
}

// Selected returns the currently selected document.
func (c *Collection) Selected() (Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.selected == "" {
		return Document{}, false
	}
	if d := c.lookupLocked(c.selected); d != nil {
		return *d, true
	}
	return Document{}, false
}

// Unprocessed returns the ids of documents not yet marked processed.
func (c *Collection) Unprocessed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for i := range c.docs {
		if !c.docs[i].Processed {
			ids = append(ids, c.docs[i].ID)
		}
	}
	return ids
}

func (c *Collection) lookupLocked(id string) *Document {
	for i := range c.docs {
		if c.docs[i].ID == id {
			return &c.docs[i]
		}
	}
	return nil
}
