package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Registry hands out one Controller per browser session and caps how many
// live in memory at once. Eviction is LRU; evicted sessions lose only their
// in-memory controller, not what the store already holds.
type Registry struct {
	controllers *lru.Cache[string, *Controller]
	factory     func(sessionID string) *Controller
}

// NewRegistry creates a registry with the given capacity. onEvict, when
// non-nil, is called with the evicted session id.
func NewRegistry(capacity int, factory func(sessionID string) *Controller, onEvict func(sessionID string)) (*Registry, error) {
	var cache *lru.Cache[string, *Controller]
	var err error
	if onEvict != nil {
		cache, err = lru.NewWithEvict[string, *Controller](capacity, func(id string, _ *Controller) {
			onEvict(id)
		})
	} else {
		cache, err = lru.New[string, *Controller](capacity)
	}
	if err != nil {
		return nil, err
	}
	return &Registry{controllers: cache, factory: factory}, nil
}

// Create allocates a fresh session and its controller.
func (r *Registry) Create() (string, *Controller) {
	id := newSessionID()
	controller := r.factory(id)
	r.controllers.Add(id, controller)
	return id, controller
}

// Get returns the controller for a session id, rebuilding it from the
// store if the in-memory entry was evicted.
func (r *Registry) Get(id string) (*Controller, bool) {
	if controller, ok := r.controllers.Get(id); ok {
		return controller, true
	}
	if !validSessionID(id) {
		return nil, false
	}
	controller := r.factory(id)
	r.controllers.Add(id, controller)
	return controller, true
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	return r.controllers.Len()
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func validSessionID(id string) bool {
	if len(id) != 32 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
