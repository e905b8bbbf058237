package model

type EdgeKind string

const (
	// DataEdge means the child consumes the result of the parent.
	DataEdge EdgeKind = "data"
	// OrderEdge only orders the child after the parent.
	OrderEdge EdgeKind = "order"
)

// EdgeKindAttribute is the graph edge attribute holding the EdgeKind.
const EdgeKindAttribute = "kind"

type Edge struct {
	From string
	To   string
	Kind EdgeKind
}
