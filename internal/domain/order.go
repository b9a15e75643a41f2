package domain

// Order is the display order of the showcase, a sequence of item ids.
type Order []int64

// Contains reports whether id is in the order.
func (o Order) Contains(id int64) bool {
	for _, v := range o {
		if v == id {
			return true
		}
	}
	return false
}

// Append returns o with id at the end, unless it is already present.
func (o Order) Append(id int64) Order {
	if o.Contains(id) {
		return o
	}
	return append(o, id)
}

// Remove returns o without id. Removing an absent id is a no-op.
func (o Order) Remove(id int64) Order {
	out := make(Order, 0, len(o))
	for _, v := range o {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// IsPermutationOf reports whether o holds exactly the ids of other, each once.
func (o Order) IsPermutationOf(other Order) bool {
	if len(o) != len(other) {
		return false
	}
	want := make(map[int64]int, len(other))
	for _, id := range other {
		want[id]++
	}
	for _, id := range o {
		if want[id] == 0 {
			return false
		}
		want[id]--
	}
	return true
}

// Equal reports element-wise equality.
func (o Order) Equal(other Order) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// Reconcile makes o a permutation of present: dangling and duplicate ids are
// dropped, and ids missing from o are appended in the order they appear in present.
func Reconcile(o Order, present Order) Order {
	exists := make(map[int64]bool, len(present))
	for _, id := range present {
		exists[id] = true
	}

	out := make(Order, 0, len(present))
	placed := make(map[int64]bool, len(present))
	for _, id := range o {
		if exists[id] && !placed[id] {
			out = append(out, id)
			placed[id] = true
		}
	}
	for _, id := range present {
		if !placed[id] {
			out = append(out, id)
			placed[id] = true
		}
	}
	return out
}
