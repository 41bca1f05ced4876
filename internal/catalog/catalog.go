package catalog

import (
	"errors"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Kind classifies a catalog entry by media class.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// ErrNotFound reports an operation on an unknown catalog id.
var ErrNotFound = errors.New("catalog entry not found")

var kindByExt = map[string]Kind{
	".mp4":  KindVideo,
	".webm": KindVideo,
	".mkv":  KindVideo,
	".mov":  KindVideo,
	".avi":  KindVideo,
	".m4v":  KindVideo,
	".mp3":  KindAudio,
	".wav":  KindAudio,
	".ogg":  KindAudio,
	".flac": KindAudio,
	".m4a":  KindAudio,
	".aac":  KindAudio,
}

// KindForFile derives the media kind from a file name's extension.
// Reports false for extensions outside the known video/audio sets.
func KindForFile(name string) (Kind, bool) {
	k, ok := kindByExt[strings.ToLower(filepath.Ext(name))]
	return k, ok
}

// Entry is one playable local media file.
type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Kind      Kind      `json:"kind"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Catalog is the inventory of locally stored media, keyed by file name.
// It carries no locks: every mutation runs on the hub's serial loop.
type Catalog struct {
	entries map[string]Entry
	baseURL string // access path prefix for stored files, e.g. "/media"
}

// New creates an empty catalog whose entries are served under baseURL.
func New(baseURL string) *Catalog {
	return &Catalog{
		entries: make(map[string]Entry),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Add registers a file. The id is the file name. Reports false when the id
// was already cataloged, returning the existing entry unchanged.
func (c *Catalog) Add(name string, kind Kind, size int64, createdAt time.Time) (Entry, bool) {
	if e, ok := c.entries[name]; ok {
		return e, false
	}
	e := Entry{
		ID:        name,
		Name:      name,
		URL:       c.baseURL + "/" + url.PathEscape(name),
		Kind:      kind,
		SizeBytes: size,
		CreatedAt: createdAt,
	}
	c.entries[name] = e
	return e, true
}

// Remove deletes the entry and returns it.
func (c *Catalog) Remove(id string) (Entry, bool) {
	e, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	delete(c.entries, id)
	return e, true
}

// Get returns the entry for id.
func (c *Catalog) Get(id string) (Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// List returns all entries sorted by name.
func (c *Catalog) List() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of cataloged entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
