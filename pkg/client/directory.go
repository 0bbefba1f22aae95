package client

import "sync"

// Directory maps club IDs to display names. It is filled by ListClubs
// before events are fetched and only read afterwards.
type Directory struct {
	mu    sync.RWMutex
	names map[int64]string
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{names: make(map[int64]string)}
}

// Add records the display names of clubs. Later entries for the same ID win.
func (d *Directory) Add(clubs ...Club) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range clubs {
		d.names[c.ID] = c.Name
	}
}

// Name returns the display name for a club ID.
func (d *Directory) Name(id int64) (string, bool) {
	if d == nil {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[id]
	return name, ok && name != ""
}

// Len returns the number of known clubs.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}
