// Package scene holds the visual subtree of every rendered avatar. Each
// subtree is keyed by view and participant, and animation selectors only
// resolve inside their own subtree.
package scene

import (
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"github.com/normanking/meetavatar/internal/tween"
)

// ScopeKey identifies one rendered avatar.
type ScopeKey struct {
	View        string `json:"view"`
	Participant string `json:"participant"`
}

// KeyOf returns the scope key a selector addresses.
func KeyOf(sel tween.Selector) ScopeKey {
	return ScopeKey{View: sel.View, Participant: sel.Participant}
}

// Element declares a named node in a subtree. Path is its rest shape, if any.
type Element struct {
	Name string
	Path *tween.Path
}

// Offset is a translation in avatar units.
type Offset struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Frame is a point-in-time copy of a subtree.
type Frame struct {
	Paths   map[string]string `json:"paths"`
	Offsets map[string]Offset `json:"offsets"`
}

// Node is an animatable element. It implements tween.Target.
type Node struct {
	mu      sync.Mutex
	name    string
	path    tween.Path
	hasPath bool
	offset  mgl32.Vec2
}

// Name returns the element name.
func (n *Node) Name() string { return n.name }

// SetPath implements tween.Target
func (n *Node) SetPath(p tween.Path) {
	n.mu.Lock()
	n.path = p
	n.hasPath = true
	n.mu.Unlock()
}

// SetOffset implements tween.Target
func (n *Node) SetOffset(v mgl32.Vec2) {
	n.mu.Lock()
	n.offset = v
	n.mu.Unlock()
}

// Path returns the current path, if the node has one.
func (n *Node) Path() (tween.Path, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path, n.hasPath
}

// Offset returns the current translation.
func (n *Node) Offset() mgl32.Vec2 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offset
}

// Graph is the set of mounted subtrees. It implements tween.Resolver.
type Graph struct {
	mu       sync.RWMutex
	subtrees map[ScopeKey]map[string]*Node
	logger   zerolog.Logger
}

// NewGraph creates an empty graph.
func NewGraph(logger zerolog.Logger) *Graph {
	return &Graph{
		subtrees: make(map[ScopeKey]map[string]*Node),
		logger:   logger.With().Str("component", "scene").Logger(),
	}
}

// Mount creates the subtree for key, replacing any previous one.
func (g *Graph) Mount(key ScopeKey, elements ...Element) {
	nodes := make(map[string]*Node, len(elements))
	for _, el := range elements {
		if el.Name == "" {
			continue
		}
		n := &Node{name: el.Name}
		if el.Path != nil {
			n.path = *el.Path
			n.hasPath = true
		}
		nodes[el.Name] = n
	}

	g.mu.Lock()
	_, replaced := g.subtrees[key]
	g.subtrees[key] = nodes
	g.mu.Unlock()

	g.logger.Debug().
		Str("view", key.View).
		Str("participant", key.Participant).
		Int("elements", len(nodes)).
		Bool("replaced", replaced).
		Msg("Subtree mounted")
}

// Unmount removes the subtree for key. It reports whether one existed.
func (g *Graph) Unmount(key ScopeKey) bool {
	g.mu.Lock()
	_, ok := g.subtrees[key]
	delete(g.subtrees, key)
	g.mu.Unlock()

	if ok {
		g.logger.Debug().Str("view", key.View).Str("participant", key.Participant).Msg("Subtree unmounted")
	}
	return ok
}

// Resolve returns the node sel addresses within its own subtree.
func (g *Graph) Resolve(sel tween.Selector) []tween.Target {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes, ok := g.subtrees[KeyOf(sel)]
	if !ok {
		return nil
	}
	n, ok := nodes[sel.Element]
	if !ok {
		return nil
	}
	return []tween.Target{n}
}

// Node returns a single node.
func (g *Graph) Node(key ScopeKey, name string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.subtrees[key][name]
	return n, ok
}

// Snapshot copies the current state of the subtree for key.
func (g *Graph) Snapshot(key ScopeKey) (Frame, bool) {
	g.mu.RLock()
	nodes, ok := g.subtrees[key]
	g.mu.RUnlock()
	if !ok {
		return Frame{}, false
	}

	f := Frame{
		Paths:   make(map[string]string),
		Offsets: make(map[string]Offset, len(nodes)),
	}
	for name, n := range nodes {
		if p, ok := n.Path(); ok {
			f.Paths[name] = p.String()
		}
		v := n.Offset()
		f.Offsets[name] = Offset{X: v.X(), Y: v.Y()}
	}
	return f, true
}

// Keys lists mounted subtrees in a stable order.
func (g *Graph) Keys() []ScopeKey {
	g.mu.RLock()
	keys := make([]ScopeKey, 0, len(g.subtrees))
	for k := range g.subtrees {
		keys = append(keys, k)
	}
	g.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].View != keys[j].View {
			return keys[i].View < keys[j].View
		}
		return keys[i].Participant < keys[j].Participant
	})
	return keys
}
