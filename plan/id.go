package plan

import (
	"strconv"
	"strings"
)

// ChildID returns the hierarchical ID for the child step of parent at the
// given 1-based index. An empty parent produces a top-level ID.
func ChildID(parent string, index int) string {
	if parent == "" {
		return strconv.Itoa(index)
	}
	return parent + "." + strconv.Itoa(index)
}

// RootID returns the top-level component of a hierarchical step ID, so
// "3.2.1" maps to "3".
func RootID(id string) string {
	before, _, _ := strings.Cut(id, ".")
	return before
}

// InFamily reports whether id belongs to the step family rooted at root:
// the root itself or any recovery sub-step beneath it.
func InFamily(root, id string) bool {
	return id == root || strings.HasPrefix(id, root+".")
}

// CompareIDs orders hierarchical step IDs by their dotted numeric
// components, so "3" < "3.1" < "3.2" < "4". It returns -1, 0, or 1.
func CompareIDs(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, _ := strconv.Atoi(as[i])
		bi, _ := strconv.Atoi(bs[i])
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}
