package registry

// trie is a decimal-digit prefix tree. It is built once at load time and only
// read afterwards, so it carries no locking.
type trie[V any] struct {
	root node[V]
	size int
}

type node[V any] struct {
	children [10]*node[V]
	value    V
	set      bool
}

// insert stores v under key. It returns false if key is already present or
// contains a non-digit.
func (t *trie[V]) insert(key string, v V) bool {
	n := &t.root
	for i := 0; i < len(key); i++ {
		d := key[i] - '0'
		if d > 9 {
			return false
		}
		if n.children[d] == nil {
			n.children[d] = &node[V]{}
		}
		n = n.children[d]
	}
	if n.set {
		return false
	}
	n.value = v
	n.set = true
	t.size++
	return true
}

// longest walks s up to maxDepth digits and returns the deepest stored key
// that prefixes s.
func (t *trie[V]) longest(s string, maxDepth int) (string, V, bool) {
	var (
		best    V
		bestLen = -1
		n       = &t.root
	)
	if maxDepth > len(s) {
		maxDepth = len(s)
	}
	for i := 0; i < maxDepth; i++ {
		d := s[i] - '0'
		if d > 9 || n.children[d] == nil {
			break
		}
		n = n.children[d]
		if n.set {
			best = n.value
			bestLen = i + 1
		}
	}
	if bestLen < 0 {
		return "", best, false
	}
	return s[:bestLen], best, true
}
