// Package resource implements display resources: short-lived blob URLs
// created from raw frame bytes that a surface can point at until they are
// revoked.
package resource

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShellAddicted/wsCamera/pkg/types"
)

// Scheme prefix of every URL handed out by a Store.
const Scheme = "blob:"

// Resource is an immutable display resource.
type Resource struct {
	URL         string
	Data        []byte
	ContentType string
	Format      types.Format // as sniffed from Data at creation
	CreatedAt   time.Time
}

// Store owns every live display resource. The zero value is not usable;
// call NewStore.
type Store struct {
	origin string

	mu        sync.RWMutex
	resources map[string]Resource
	created   uint64
	revoked   uint64
}

// NewStore creates a store whose URLs look like blob:<origin>/<uuid>.
func NewStore(origin string) *Store {
	return &Store{
		origin:    strings.TrimRight(origin, "/"),
		resources: make(map[string]Resource),
	}
}

// Create wraps data in a new resource and returns its URL. The bytes are
// kept by reference; callers must not modify them afterwards.
func (s *Store) Create(data []byte) string {
	url := Scheme + s.origin + "/" + uuid.NewString()
	format := types.DetectFormat(data)
	res := Resource{
		URL:         url,
		Data:        data,
		ContentType: format.ContentType,
		Format:      format,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.resources[url] = res
	s.created++
	s.mu.Unlock()

	return url
}

// Revoke releases the resource behind url. Unknown URLs, including
// non-blob sources such as "" or "#", are ignored.
func (s *Store) Revoke(url string) {
	if !strings.HasPrefix(url, Scheme) {
		return
	}

	s.mu.Lock()
	if _, ok := s.resources[url]; ok {
		delete(s.resources, url)
		s.revoked++
	}
	s.mu.Unlock()
}

// Lookup returns the live resource behind url.
func (s *Store) Lookup(url string) (Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[url]
	return res, ok
}

// Len returns the number of live resources.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.resources)
}

// Counts returns how many resources were ever created and revoked.
func (s *Store) Counts() (created, revoked uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created, s.revoked
}

// Origin returns the origin embedded in the store's URLs.
func (s *Store) Origin() string {
	return s.origin
}

// ID returns the path component of a blob URL created by this store.
func (s *Store) ID(url string) (string, bool) {
	prefix := Scheme + s.origin + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// ServeHTTP serves resources by id: GET <mount>/<uuid>. Mount it with
// http.StripPrefix.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.Trim(r.URL.Path, "/")
	res, ok := s.Lookup(Scheme + s.origin + "/" + id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "", res.CreatedAt, bytes.NewReader(res.Data))
}
