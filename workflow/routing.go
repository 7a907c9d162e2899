package workflow

import "fmt"

// Route is the dispatch decision derived from the classifier's two flags.
type Route int

const (
	// RouteNone dispatches no retrieval branch.
	RouteNone Route = iota
	// RouteMemoryOnly dispatches only the conversation-memory branch.
	RouteMemoryOnly
	// RouteContextOnly dispatches only the document-context branch.
	RouteContextOnly
	// RouteBoth dispatches both branches in parallel.
	RouteBoth
)

// String returns the route name.
func (r Route) String() string {
	switch r {
	case RouteNone:
		return "none"
	case RouteMemoryOnly:
		return "memory_only"
	case RouteContextOnly:
		return "context_only"
	case RouteBoth:
		return "both"
	default:
		return fmt.Sprintf("unknown(%d)", r)
	}
}

// Branch identifies one retrieval branch.
type Branch int

const (
	// BranchMemory is the conversation-memory lookup.
	BranchMemory Branch = iota
	// BranchContext is the document-context lookup.
	BranchContext
)

// String returns the branch name.
func (b Branch) String() string {
	switch b {
	case BranchMemory:
		return "memory"
	case BranchContext:
		return "context"
	default:
		return fmt.Sprintf("unknown(%d)", b)
	}
}

// DecideRoute maps the two independent classifier flags onto a route.
// It is pure: the same flags always produce the same route.
func DecideRoute(requiresMemory, requiresRAG bool) Route {
	switch {
	case requiresMemory && requiresRAG:
		return RouteBoth
	case requiresMemory:
		return RouteMemoryOnly
	case requiresRAG:
		return RouteContextOnly
	default:
		return RouteNone
	}
}

// Branches returns the branches this route dispatches, in dispatch order.
func (r Route) Branches() []Branch {
	switch r {
	case RouteMemoryOnly:
		return []Branch{BranchMemory}
	case RouteContextOnly:
		return []Branch{BranchContext}
	case RouteBoth:
		return []Branch{BranchMemory, BranchContext}
	default:
		return nil
	}
}
