package editor

// Sibling is one entry of a renumbered container.
type Sibling struct {
	ID         string `json:"id"`
	OrderIndex int    `json:"order_index"`
}

// orderable is satisfied by every tree node.
type orderable interface {
	NodeID() string
	setOrderIndex(int)
}

// clamp pins pos into [0, n].
func clamp(pos, n int) int {
	if pos < 0 {
		return 0
	}
	if pos > n {
		return n
	}
	return pos
}

func insertAt[T orderable](s []T, pos int, v T) []T {
	pos = clamp(pos, len(s))
	s = append(s, v)
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	return s
}

func removeAt[T orderable](s []T, idx int) ([]T, T) {
	v := s[idx]
	copy(s[idx:], s[idx+1:])
	var zero T
	s[len(s)-1] = zero
	return s[:len(s)-1], v
}

// moveTo moves s[from] so that it ends up at index to. Both indices are
// clamped into the valid range; an empty slice is returned unchanged.
func moveTo[T orderable](s []T, from, to int) []T {
	if len(s) == 0 {
		return s
	}
	from = clamp(from, len(s)-1)
	to = clamp(to, len(s)-1)
	if from == to {
		return s
	}
	s, v := removeAt(s, from)
	return insertAt(s, to, v)
}

func indexOf[T orderable](s []T, id string) int {
	for i, v := range s {
		if v.NodeID() == id {
			return i
		}
	}
	return -1
}

// renumber re-derives order_index from array position.
func renumber[T orderable](s []T) []Sibling {
	out := make([]Sibling, len(s))
	for i, v := range s {
		v.setOrderIndex(i)
		out[i] = Sibling{ID: v.NodeID(), OrderIndex: i}
	}
	return out
}

// dense reports whether the persisted indices are exactly 0..n-1 in order.
func dense(indices []int) bool {
	for i, v := range indices {
		if v != i {
			return false
		}
	}
	return true
}
