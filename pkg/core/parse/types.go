package parse

// NodeType is the closed set of semantic labels the adapter assigns. All
// downstream logic switches exhaustively over these; anything the classifier
// cannot place lands in Unclassified rather than in an open-ended type.
type NodeType int

const (
	Unclassified NodeType = iota
	Heading
	Paragraph
	Table
	TableOfContents
	PageFurniture
	Text
)

var nodeTypeNames = [...]string{
	Unclassified:    "unclassified",
	Heading:         "heading",
	Paragraph:       "paragraph",
	Table:           "table",
	TableOfContents: "toc",
	PageFurniture:   "furniture",
	Text:            "text",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "unclassified"
}

// MarshalText lets node dumps use the readable label.
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Node is one typed unit of the semantic tree. Nodes live in the Tree's
// arena and reference their enclosing heading by index, so the structure has
// no pointer cycles and serializes trivially.
type Node struct {
	ID    int      `json:"id"`
	Type  NodeType `json:"type"`
	Text  string   `json:"text"`
	Level int      `json:"level,omitempty"` // heading rank 1..6, 0 otherwise
	Depth int      `json:"depth"`           // raw markup nesting depth
	// Parent indexes the nearest enclosing heading node, -1 at document root.
	Parent int `json:"parent"`

	// RawHTML preserves the original markup for Table nodes only, so the
	// artifact writer can render excluded tables separately. Never part of
	// extracted text.
	RawHTML string `json:"-"`
}

// Tree is the ordered, classified representation of one parsed document.
// It is owned by a single document's pipeline run and never shared.
type Tree struct {
	Nodes []Node

	// AncestorCap bounds breadcrumb length; pathological heading nesting
	// must not produce unbounded ancestor chains.
	AncestorCap int
}

// DefaultAncestorCap is the soft limit on breadcrumb depth.
const DefaultAncestorCap = 6

// Ancestors returns the enclosing heading texts for node id, outermost
// first, capped at AncestorCap entries (nearest headings win).
func (t *Tree) Ancestors(id int) []string {
	cap := t.AncestorCap
	if cap <= 0 {
		cap = DefaultAncestorCap
	}

	var chain []string
	for p := t.Nodes[id].Parent; p >= 0; p = t.Nodes[p].Parent {
		chain = append(chain, t.Nodes[p].Text)
		if len(chain) == cap {
			break
		}
	}

	// Reverse in place: collected nearest-first, returned outermost-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// NearestHeading returns the text of the closest enclosing heading, or "".
func (t *Tree) NearestHeading(id int) string {
	if p := t.Nodes[id].Parent; p >= 0 {
		return t.Nodes[p].Text
	}
	return ""
}
