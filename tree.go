package archivefs

import (
	"io/fs"
	"time"

	"github.com/rs/zerolog/log"
)

// NodeID addresses a node in a Tree.
type NodeID uint32

// RootID is the id of the root directory of every Tree.
const RootID NodeID = 0

// NodeKind tells directory nodes from file nodes.
type NodeKind uint8

const (
	KindDir NodeKind = iota + 1
	KindFile
)

func (k NodeKind) String() string {
	switch k {
	case KindDir:
		return "directory"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

type node struct {
	kind NodeKind
	name string
	attr Attr

	// file nodes
	entry *Entry

	// directory nodes; children is in first-insertion order
	children []NodeID
	index    map[string]NodeID
}

// Tree is the directory hierarchy synthesized from an archive's entry names.
// Nodes live in an arena addressed by NodeID; parents own their children and
// there are no back-references. A Tree is immutable once BuildTree returns,
// so all of its methods are safe for concurrent use.
type Tree struct {
	nodes []node
}

// BuildTree builds the tree for entries, in order. Every segment of an
// entry's name but the last becomes a directory, created on first use with
// its timestamp taken from now; the last segment becomes a file node for the
// entry. A nil now uses time.Now.
//
// An entry whose path needs a directory where a file already is, or a file
// where a directory already is, fails the whole build with a
// *StructureError. A later entry with the same path as an earlier file
// replaces it in place.
func BuildTree(entries []*Entry, now func() time.Time) (*Tree, error) {
	if now == nil {
		now = time.Now
	}
	t := &Tree{nodes: make([]node, 0, len(entries)+1)}
	t.nodes = append(t.nodes, node{
		kind:  KindDir,
		attr:  dirAttr(RootID, now()),
		index: make(map[string]NodeID),
	})

	for _, e := range entries {
		if err := t.insert(e, now); err != nil {
			return nil, err
		}
	}

	log.Debug().
		Int("entries", len(entries)).
		Int("nodes", len(t.nodes)).
		Msg("tree: built")

	return t, nil
}

func (t *Tree) insert(e *Entry, now func() time.Time) error {
	segments := SplitPath(e.Name)
	if err := checkSegments(e.Name, segments); err != nil {
		return err
	}

	current := RootID
	for _, seg := range segments[:len(segments)-1] {
		child, ok := t.nodes[current].index[seg]
		if !ok {
			id := NodeID(len(t.nodes))
			child = t.add(current, node{
				kind:  KindDir,
				name:  seg,
				attr:  dirAttr(id, now()),
				index: make(map[string]NodeID),
			})
			log.Debug().
				Str("entry", e.Name).
				Str("dir", seg).
				Uint32("id", uint32(child)).
				Msg("tree: directory created")
		} else if t.nodes[child].kind != KindDir {
			return &StructureError{Entry: e.Name, Segment: seg, Reason: "file used as directory"}
		}
		current = child
	}

	leaf := segments[len(segments)-1]
	if existing, ok := t.nodes[current].index[leaf]; ok {
		if t.nodes[existing].kind != KindFile {
			return &StructureError{Entry: e.Name, Segment: leaf, Reason: "directory used as file"}
		}
		log.Warn().
			Str("entry", e.Name).
			Msg("tree: duplicate entry replaces earlier one")
		t.nodes[existing].entry = e
		t.nodes[existing].attr = fileAttr(existing, e)
		return nil
	}

	id := NodeID(len(t.nodes))
	t.add(current, node{
		kind:  KindFile,
		name:  leaf,
		attr:  fileAttr(id, e),
		entry: e,
	})
	return nil
}

// add appends n to the arena as the last child of parent.
func (t *Tree) add(parent NodeID, n node) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	p := &t.nodes[parent]
	p.children = append(p.children, id)
	p.index[n.name] = id
	return id
}

// Resolve walks segments down from the root. An empty sequence resolves to
// RootID. A missing segment fails with fs.ErrNotExist and a segment below a
// file fails with ErrNotDir; nothing is returned on failure.
func (t *Tree) Resolve(segments []string) (NodeID, error) {
	current := RootID
	for _, seg := range segments {
		n := &t.nodes[current]
		if n.kind != KindDir {
			return 0, ErrNotDir
		}
		child, ok := n.index[seg]
		if !ok {
			return 0, fs.ErrNotExist
		}
		current = child
	}
	return current, nil
}

// Len returns the number of nodes, the root included.
func (t *Tree) Len() int { return len(t.nodes) }

// Kind returns the kind of node id.
func (t *Tree) Kind(id NodeID) NodeKind { return t.nodes[id].kind }

// Name returns the name of node id within its parent. The root's is empty.
func (t *Tree) Name(id NodeID) string { return t.nodes[id].name }

// Attr returns the attributes synthesized for node id.
func (t *Tree) Attr(id NodeID) Attr { return t.nodes[id].attr }

// Entry returns the archive entry of file node id, or nil for directories.
func (t *Tree) Entry(id NodeID) *Entry { return t.nodes[id].entry }

// Children returns the children of directory node id in insertion order.
// The returned slice belongs to the tree and must not be modified.
func (t *Tree) Children(id NodeID) []NodeID { return t.nodes[id].children }
