package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PermissionTree is a nested mapping of permission segments. A leaf grants or
// denies a single capability; a branch groups capabilities under a namespace.
// The JSON form matches the JSONB column contents, e.g.
// {"cared_persons":{"read":true,"write":false}}.
type PermissionTree map[string]PermissionNode

// PermissionNode is either a boolean leaf (Children == nil) or a branch.
type PermissionNode struct {
	Allow    bool
	Children PermissionTree
}

// Leaf builds a leaf node.
func Leaf(allow bool) PermissionNode {
	return PermissionNode{Allow: allow}
}

// Branch builds a branch node.
func Branch(children PermissionTree) PermissionNode {
	if children == nil {
		children = PermissionTree{}
	}
	return PermissionNode{Children: children}
}

// IsLeaf reports whether the node carries a boolean grant.
func (n PermissionNode) IsLeaf() bool {
	return n.Children == nil
}

// MarshalJSON renders a leaf as a bare boolean and a branch as an object.
func (n PermissionNode) MarshalJSON() ([]byte, error) {
	if n.IsLeaf() {
		return json.Marshal(n.Allow)
	}
	return json.Marshal(n.Children)
}

// UnmarshalJSON accepts either a boolean leaf or a nested object. Non-boolean
// scalar leaves are coerced: zero numbers, empty strings, and null read as
// false, anything else as true.
func (n *PermissionNode) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))

	switch {
	case trimmed == "null":
		*n = Leaf(false)
		return nil
	case strings.HasPrefix(trimmed, "{"):
		var children PermissionTree
		if err := json.Unmarshal(data, &children); err != nil {
			return err
		}
		if children == nil {
			children = PermissionTree{}
		}
		*n = PermissionNode{Children: children}
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*n = Leaf(b)
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*n = Leaf(num != 0)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = Leaf(s != "")
		return nil
	}

	return fmt.Errorf("permission node: unsupported value %s", trimmed)
}

// Resolve walks the tree along a dot-delimited path and reports whether the
// addressed leaf grants access. Any miss resolves to false: unknown segment,
// a leaf reached before the path ends, a branch left at the final segment, or
// a falsy leaf. It never errors; unrecognized permissions must not grant.
func (t PermissionTree) Resolve(path string) bool {
	if len(t) == 0 || path == "" {
		return false
	}

	segments := strings.Split(path, ".")
	current := t

	for i, segment := range segments {
		node, ok := current[segment]
		if !ok {
			return false
		}

		if i == len(segments)-1 {
			return node.IsLeaf() && node.Allow
		}

		if node.IsLeaf() {
			return false
		}
		current = node.Children
	}

	return false
}

// Validate checks that every key is a usable path segment.
func (t PermissionTree) Validate() error {
	for key, node := range t {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("permission tree: empty segment key")
		}
		if strings.Contains(key, ".") {
			return fmt.Errorf("permission tree: segment %q must not contain '.'", key)
		}
		if !node.IsLeaf() {
			if err := node.Children.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Equal reports structural equality between two trees.
func (t PermissionTree) Equal(other PermissionTree) bool {
	if len(t) != len(other) {
		return false
	}
	for key, node := range t {
		peer, ok := other[key]
		if !ok {
			return false
		}
		if node.IsLeaf() != peer.IsLeaf() {
			return false
		}
		if node.IsLeaf() {
			if node.Allow != peer.Allow {
				return false
			}
			continue
		}
		if !node.Children.Equal(peer.Children) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the tree.
func (t PermissionTree) Clone() PermissionTree {
	if t == nil {
		return nil
	}
	out := make(PermissionTree, len(t))
	for key, node := range t {
		if node.IsLeaf() {
			out[key] = node
			continue
		}
		out[key] = PermissionNode{Children: node.Children.Clone()}
	}
	return out
}
