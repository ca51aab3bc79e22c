package session

// Tree is the scope token qualifying tree-local keys.
type Tree struct {
	Name string `json:"name"`
}

func NewTree(name string) *Tree {
	return &Tree{Name: name}
}

func localKey(tree *Tree, key string) (string, error) {
	if tree == nil {
		return "", ErrNoTree
	}
	return "@" + tree.Name + ":" + key, nil
}

// Role describes what a user can access.
type Role struct {
	Name         string   `json:"name"`
	Trees        []string `json:"trees,omitempty"`
	Level        int      `json:"level"`
	OnDeniedTree string   `json:"on_denied_tree,omitempty"`
}

func (r Role) CanAccess(tree string) bool {
	for _, t := range r.Trees {
		if t == tree {
			return true
		}
	}
	return false
}
