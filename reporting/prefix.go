package reporting

import (
	"strings"

	"github.com/ethereum-optimism/infra/op-describe/types"
)

// Box drawing connectors for hierarchical rows
const (
	treeBranch     = "├── "
	treeLastBranch = "└── "
	treeContinue   = "│   "
	treeIndent     = "    "
)

// buildTreePrefix generates a prefix from the depth, whether the node is the last
// sibling, and the same flag for each ancestor below the root
func buildTreePrefix(depth int, isLast bool, parentIsLast []bool) string {
	if depth == 0 {
		return ""
	}

	var prefix strings.Builder
	for i := 0; i < depth-1; i++ {
		if i < len(parentIsLast) && parentIsLast[i] {
			prefix.WriteString(treeIndent)
		} else {
			prefix.WriteString(treeContinue)
		}
	}
	if isLast {
		prefix.WriteString(treeLastBranch)
	} else {
		prefix.WriteString(treeBranch)
	}
	return prefix.String()
}

// suitePrefix returns the tree prefix for a suite node
func suitePrefix(s *types.Suite) string {
	if s.Parent == nil {
		return ""
	}

	var parentIsLast []bool
	for current := s.Parent; current != nil && current.Parent != nil; current = current.Parent {
		parentIsLast = append([]bool{isLastSibling(current)}, parentIsLast...)
	}
	return buildTreePrefix(s.Depth, isLastSibling(s), parentIsLast)
}

func isLastSibling(s *types.Suite) bool {
	if s.Parent == nil {
		return true
	}
	siblings := s.Parent.Children
	return len(siblings) > 0 && siblings[len(siblings)-1] == s
}
