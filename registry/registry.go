package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-describe/metrics"
	"github.com/ethereum-optimism/infra/op-describe/types"
	"github.com/ethereum/go-ethereum/log"
)

// ErrSuiteNotFound is returned when no suite is registered under an id
var ErrSuiteNotFound = errors.New("suite not found")

// Registry owns the suite tree of one run.
// Roots are kept in registration order; every node is also indexed by id.
type Registry struct {
	log log.Logger
	mu  sync.RWMutex

	roots     []*types.Suite
	rootsByID map[string]*types.Suite
	nodesByID map[string]*types.Suite // First node registered under an id
	size      int
	warnings  []string
}

// NewRegistry creates an empty registry
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Registry{
		log:       logger,
		rootsByID: make(map[string]*types.Suite),
		nodesByID: make(map[string]*types.Suite),
	}
}

// PushSuite creates a suite node and attaches it to its parent, or registers it as a new root.
// A root whose id is already taken is registered under a rewritten id; the original stays reachable.
func (r *Registry) PushSuite(params types.SuiteParams, start time.Time) *types.Suite {
	r.mu.Lock()
	defer r.mu.Unlock()

	var parent *types.Suite
	if params.ParentID != "" {
		parent = r.lookup(params.ParentID)
		if parent == nil {
			r.log.Warn("Parent suite not found, registering as root", "suite", params.Name, "parentId", params.ParentID)
		}
	}

	if parent == nil {
		if _, exists := r.rootsByID[params.ID]; exists {
			msg := fmt.Sprintf("There is already a suite with the ID: %s", params.ID)
			r.log.Warn(msg, "name", params.Name)
			r.warnings = append(r.warnings, msg)
			metrics.RecordDuplicateSuite()
			params.ID = r.uniqueRootID(params.Name + params.ID)
		}
	}

	node := types.NewSuite(params, start)
	if parent != nil {
		node.Parent = parent
		node.Depth = parent.Depth + 1
		parent.Children = append(parent.Children, node)
	} else {
		r.roots = append(r.roots, node)
		r.rootsByID[node.ID] = node
	}

	if _, exists := r.nodesByID[node.ID]; !exists {
		r.nodesByID[node.ID] = node
	}
	r.size++

	r.log.Debug("Registered suite", "id", node.ID, "name", node.Name, "depth", node.Depth)
	return node
}

// uniqueRootID returns candidate, suffixed with -2, -3, ... until it names no existing root.
// Callers must hold the lock.
func (r *Registry) uniqueRootID(candidate string) string {
	if _, exists := r.rootsByID[candidate]; !exists {
		return candidate
	}
	for i := 2; ; i++ {
		id := fmt.Sprintf("%s-%d", candidate, i)
		if _, exists := r.rootsByID[id]; !exists {
			return id
		}
	}
}

// GetSuite returns the suite registered under id at any depth
func (r *Registry) GetSuite(id string) (*types.Suite, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.lookup(id)
	return s, s != nil
}

// lookup checks roots first, then the id index. Callers must hold the lock.
func (r *Registry) lookup(id string) *types.Suite {
	if s, ok := r.rootsByID[id]; ok {
		return s
	}
	return r.nodesByID[id]
}

// Search walks every root depth-first and returns the first node with the given id.
// GetSuite answers the same question from the index.
func (r *Registry) Search(id string) (*types.Suite, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.rootsByID[id]; ok {
		return s, true
	}
	var found *types.Suite
	for _, root := range r.roots {
		root.Walk(func(s *types.Suite) bool {
			if found != nil {
				return false
			}
			if s.ID == id {
				found = s
				return false
			}
			return true
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

// AddTestToSuite appends a settled case to the suite
func (r *Registry) AddTestToSuite(s *types.Suite, c *types.Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Tests = append(s.Tests, c)
}

// FinishSuite records the settlement of a suite body
func (r *Registry) FinishSuite(s *types.Suite, duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Duration = duration
	s.Error = err
}

// Roots returns the root suites in registration order
func (r *Registry) Roots() []*types.Suite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roots := make([]*types.Suite, len(r.roots))
	copy(roots, r.roots)
	return roots
}

// SuiteStack returns the roots keyed by id
func (r *Registry) SuiteStack() map[string]*types.Suite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stack := make(map[string]*types.Suite, len(r.rootsByID))
	for id, s := range r.rootsByID {
		stack[id] = s
	}
	return stack
}

// Walk visits every suite in pre-order while holding the read lock.
// fn must not call back into the registry.
func (r *Registry) Walk(fn func(s *types.Suite) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, root := range r.roots {
		root.Walk(fn)
	}
}

// View runs fn with the read lock held so the tree can be read consistently
func (r *Registry) View(fn func(roots []*types.Suite)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.roots)
}

// Snapshot returns a deep copy of the tree. Cases are shared since they are never mutated once added.
func (r *Registry) Snapshot() []*types.Suite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roots := make([]*types.Suite, 0, len(r.roots))
	for _, root := range r.roots {
		roots = append(roots, cloneSuite(root, nil))
	}
	return roots
}

func cloneSuite(s *types.Suite, parent *types.Suite) *types.Suite {
	c := *s
	c.Parent = parent
	c.Tests = append(make([]*types.Case, 0, len(s.Tests)), s.Tests...)
	c.Children = make([]*types.Suite, 0, len(s.Children))
	for _, child := range s.Children {
		c.Children = append(c.Children, cloneSuite(child, &c))
	}
	return &c
}

// Warnings returns the duplicate-id warnings emitted so far
func (r *Registry) Warnings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.warnings...)
}

// Len returns the number of registered suites
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Reset drops every suite and warning
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots = nil
	r.rootsByID = make(map[string]*types.Suite)
	r.nodesByID = make(map[string]*types.Suite)
	r.warnings = nil
	r.size = 0
}
