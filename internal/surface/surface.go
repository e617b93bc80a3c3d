package surface

import (
	"sort"
	"sync"

	"github.com/ShellAddicted/wsCamera/internal/logger"
)

// NeutralSource is the source of a surface that displays nothing.
const NeutralSource = ""

// Surface is an image-capable display element.
type Surface interface {
	ID() string
	Source() string
	SetSource(src string)
}

// Image is a Surface that fans every source change out to subscribers.
type Image struct {
	id string

	mu      sync.Mutex
	src     string
	clients map[int]chan string
	nextID  int
	updates uint64
}

// NewImage creates a detached image element with a neutral source.
func NewImage(id string) *Image {
	return &Image{
		id:      id,
		clients: make(map[int]chan string),
	}
}

// ID returns the element id.
func (img *Image) ID() string { return img.id }

// Source returns the currently bound source reference.
func (img *Image) Source() string {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.src
}

// Updates returns how many times the source has been set.
func (img *Image) Updates() uint64 {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.updates
}

// SetSource rebinds the element and notifies subscribers. Subscribers that
// are not keeping up miss intermediate sources but always see later ones.
func (img *Image) SetSource(src string) {
	img.mu.Lock()
	defer img.mu.Unlock()

	img.src = src
	img.updates++

	for _, ch := range img.clients {
		select {
		case ch <- src:
		default:
			// Client too slow, skip this source for this client
		}
	}
}

// Subscribe adds a client and returns a channel carrying source changes.
func (img *Image) Subscribe() (int, <-chan string) {
	img.mu.Lock()
	defer img.mu.Unlock()

	id := img.nextID
	img.nextID++
	ch := make(chan string, 2)
	img.clients[id] = ch

	logger.Debug("Surface", "%s: client #%d subscribed (total clients: %d)", img.id, id, len(img.clients))
	return id, ch
}

// Unsubscribe removes a client and closes its channel.
func (img *Image) Unsubscribe(id int) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if ch, ok := img.clients[id]; ok {
		close(ch)
		delete(img.clients, id)
		logger.Debug("Surface", "%s: client #%d unsubscribed (remaining clients: %d)", img.id, id, len(img.clients))
	}
}

// Subscribers returns the number of subscribed clients.
func (img *Image) Subscribers() int {
	img.mu.Lock()
	defer img.mu.Unlock()
	return len(img.clients)
}

// Document is the set of named surfaces a viewer can be bound to.
type Document struct {
	mu       sync.RWMutex
	elements map[string]*Image
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{elements: make(map[string]*Image)}
}

// NewImage creates an element with the given id and registers it,
// replacing any element with the same id.
func (d *Document) NewImage(id string) *Image {
	img := NewImage(id)
	d.Register(img)
	return img
}

// Register adds img to the document under its id.
func (d *Document) Register(img *Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[img.ID()] = img
}

// GetElementByID looks up an element.
func (d *Document) GetElementByID(id string) (*Image, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	img, ok := d.elements[id]
	return img, ok
}

// IDs returns the registered ids in sorted order.
func (d *Document) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.elements))
	for id := range d.elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
