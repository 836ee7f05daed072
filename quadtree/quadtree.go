package quadtree

import (
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Region Quadtree
//
// A point quadtree over a fixed rectangular boundary. The particularities are:
//   - a node stores up to capacity points. The next point landing in a full
//     node subdivides it into four quadrants. Points already stored stay in
//     the subdivided node and are still returned by queries.
//   - points are never removed. A tree is built once, then only read, which
//     makes concurrent queries safe once all inserts are done.

// Quadrant indexes a node child.
type Quadrant int

const (
	NorthEast Quadrant = iota
	NorthWest
	SouthEast
	SouthWest
)

func (q Quadrant) String() string {
	switch q {
	case NorthEast:
		return "northeast"
	case NorthWest:
		return "northwest"
	case SouthEast:
		return "southeast"
	case SouthWest:
		return "southwest"
	default:
		return "unknown"
	}
}

// Children are tried in this order when inserting and listed in this order
// when enumerating boundaries.
var insertOrder = [4]Quadrant{NorthEast, NorthWest, SouthEast, SouthWest}

// Children are visited in this order when querying.
var queryOrder = [4]Quadrant{NorthWest, NorthEast, SouthWest, SouthEast}

// Option configures a tree.
type Option func(*Tree)

// WithMaxDepth limits how deep nodes can be subdivided. The root is at depth
// 0. A value of 0 means no limit.
func WithMaxDepth(depth int) Option {
	return func(t *Tree) {
		if depth > 0 {
			t.maxDepth = depth
		}
	}
}

// Tree is a region quadtree.
type Tree struct {
	root     *Node
	capacity int
	maxDepth int

	count        int
	subdivisions int
	rejected     int
}

// New creates an empty tree covering the given boundary.
func New(boundary Rectangle, capacity int, options ...Option) (*Tree, error) {
	if capacity < 1 {
		return nil, errors.New("capacity must be at least 1").
			WithType(ErrTypeInvalidConfiguration).
			WithTag("capacity", capacity)
	}

	if !boundary.Valid() {
		return nil, errors.New("boundary must have a positive size").
			WithType(ErrTypeInvalidConfiguration).
			WithTag("boundary", boundary.String())
	}

	t := &Tree{capacity: capacity}
	for _, o := range options {
		o(t)
	}

	t.root = newNode(boundary, capacity, 0)
	return t, nil
}

// Insert stores p and reports whether it was stored. It returns false when p
// is outside the tree boundary or when the depth limit is reached.
func (t *Tree) Insert(p Point) bool {
	return t.TryInsert(p) == nil
}

// TryInsert stores p. The returned error is typed ErrTypePointRejected when p
// is outside the tree boundary and ErrTypeCapacityExceeded when p lands in a
// full node that cannot be subdivided.
func (t *Tree) TryInsert(p Point) error {
	if !t.root.boundary.Contains(p) {
		t.rejected++
		return errors.New("point is outside the boundary").
			WithType(ErrTypePointRejected).
			WithTag("point", p.String()).
			WithTag("boundary", t.root.boundary.String())
	}

	if err := t.root.insert(t, p); err != nil {
		t.rejected++
		return err
	}

	t.count++
	return nil
}

// Query returns the points contained by r. The result is never nil.
func (t *Tree) Query(r Rectangle) []Point {
	return t.root.query(r, make([]Point, 0))
}

// Boundaries returns the boundary of every node, depth first, a node being
// followed by its northeast, northwest, southeast and southwest children.
func (t *Tree) Boundaries() []Rectangle {
	return t.root.boundaries(make([]Rectangle, 0, 1+4*t.subdivisions))
}

// Len returns the number of stored points.
func (t *Tree) Len() int {
	return t.count
}

func (t *Tree) Boundary() Rectangle {
	return t.root.boundary
}

func (t *Tree) Capacity() int {
	return t.capacity
}

func (t *Tree) MaxDepth() int {
	return t.maxDepth
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Stats describes the shape of a tree.
type Stats struct {
	Nodes        int `json:"nodes"`
	Leaves       int `json:"leaves"`
	Depth        int `json:"depth"`
	Points       int `json:"points"`
	Subdivisions int `json:"subdivisions"`
	Rejected     int `json:"rejected"`
	Capacity     int `json:"capacity"`
}

func (t *Tree) Stats() Stats {
	stats := Stats{
		Points:       t.count,
		Subdivisions: t.subdivisions,
		Rejected:     t.rejected,
		Capacity:     t.capacity,
	}
	t.root.walk(func(n *Node) {
		stats.Nodes++
		if !n.divided {
			stats.Leaves++
		}
		if n.depth > stats.Depth {
			stats.Depth = n.depth
		}
	})
	return stats
}

// Node is a quadtree node. It is a leaf until it gets divided, and stays
// divided afterward.
type Node struct {
	boundary Rectangle
	capacity int
	depth    int
	points   []Point
	divided  bool
	children [4]*Node
}

func newNode(boundary Rectangle, capacity, depth int) *Node {
	return &Node{
		boundary: boundary,
		capacity: capacity,
		depth:    depth,
		points:   make([]Point, 0, capacity),
	}
}

func (n *Node) Boundary() Rectangle {
	return n.boundary
}

// Points returns a copy of the points stored directly in the node.
func (n *Node) Points() []Point {
	return slices.Clone(n.points)
}

func (n *Node) Divided() bool {
	return n.divided
}

func (n *Node) Depth() int {
	return n.depth
}

// Child returns the child in the given quadrant, or nil when the node is not
// divided.
func (n *Node) Child(q Quadrant) *Node {
	if q < NorthEast || q > SouthWest {
		return nil
	}
	return n.children[q]
}

// Children returns the four children in northeast, northwest, southeast,
// southwest order, or nil when the node is not divided.
func (n *Node) Children() []*Node {
	if !n.divided {
		return nil
	}

	children := make([]*Node, 0, len(insertOrder))
	for _, q := range insertOrder {
		children = append(children, n.children[q])
	}
	return children
}

// insert expects p to be contained by the node boundary.
func (n *Node) insert(t *Tree, p Point) error {
	if !n.divided && len(n.points) < n.capacity {
		n.points = append(n.points, p)
		return nil
	}

	if !n.divided {
		if !n.canSubdivide(t.maxDepth) {
			return errors.New("node is full and cannot be subdivided").
				WithType(ErrTypeCapacityExceeded).
				WithTag("point", p.String()).
				WithTag("boundary", n.boundary.String()).
				WithTag("depth", n.depth)
		}

		n.subdivide()
		t.subdivisions++
	}

	for _, q := range insertOrder {
		if c := n.children[q]; c.boundary.Contains(p) {
			return c.insert(t, p)
		}
	}

	// Rounding can leave a thin gap between quadrants. A point falling in it
	// has no node to be stored in.
	return errors.New("point falls between quadrants").
		WithType(ErrTypeCapacityExceeded).
		WithTag("point", p.String()).
		WithTag("boundary", n.boundary.String()).
		WithTag("depth", n.depth)
}

func (n *Node) canSubdivide(maxDepth int) bool {
	if maxDepth > 0 && n.depth >= maxDepth {
		return false
	}
	return n.boundary.W/2 > 0 && n.boundary.H/2 > 0
}

func (n *Node) subdivide() {
	x, y := n.boundary.X, n.boundary.Y
	hw, hh := n.boundary.W/2, n.boundary.H/2
	depth := n.depth + 1

	n.children[NorthEast] = newNode(Rectangle{X: x + hw, Y: y, W: hw, H: hh}, n.capacity, depth)
	n.children[NorthWest] = newNode(Rectangle{X: x, Y: y, W: hw, H: hh}, n.capacity, depth)
	n.children[SouthEast] = newNode(Rectangle{X: x + hw, Y: y + hh, W: hw, H: hh}, n.capacity, depth)
	n.children[SouthWest] = newNode(Rectangle{X: x, Y: y + hh, W: hw, H: hh}, n.capacity, depth)
	n.divided = true
}

func (n *Node) query(r Rectangle, found []Point) []Point {
	if !n.boundary.Intersects(r) {
		return found
	}

	for _, p := range n.points {
		if r.Contains(p) {
			found = append(found, p)
		}
	}

	if n.divided {
		for _, q := range queryOrder {
			found = n.children[q].query(r, found)
		}
	}
	return found
}

func (n *Node) boundaries(res []Rectangle) []Rectangle {
	res = append(res, n.boundary)
	if n.divided {
		for _, q := range insertOrder {
			res = n.children[q].boundaries(res)
		}
	}
	return res
}

func (n *Node) walk(f func(*Node)) {
	f(n)
	if n.divided {
		for _, q := range insertOrder {
			n.children[q].walk(f)
		}
	}
}
