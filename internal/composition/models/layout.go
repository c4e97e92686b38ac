package models

import (
	"fmt"
	"slices"

	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
)

// Layout is a site's bindings in position order: Layout[i] sits at position
// i. Every operation returns a new slice and leaves its input untouched, so
// positions stay exactly 0..n-1 by construction.
type Layout []id.BindingID

// LayoutOf builds the layout of bindings already sorted by position.
func LayoutOf(bindings []*Binding) Layout {
	out := make(Layout, len(bindings))
	for i, b := range bindings {
		out[i] = b.ID
	}
	return out
}

// IndexOf returns the position of bindingID, or -1.
func (l Layout) IndexOf(bindingID id.BindingID) int {
	return slices.Index(l, bindingID)
}

// Insert places bindingID at p and shifts everything at or after p up by one.
// p may equal len(l), which appends.
func (l Layout) Insert(bindingID id.BindingID, p int) (Layout, error) {
	if p < 0 || p > len(l) {
		return nil, outOfRange("position", p, len(l))
	}
	out := make(Layout, 0, len(l)+1)
	out = append(out, l[:p]...)
	out = append(out, bindingID)
	return append(out, l[p:]...), nil
}

// Remove drops bindingID and closes the gap.
func (l Layout) Remove(bindingID id.BindingID) (Layout, error) {
	k := l.IndexOf(bindingID)
	if k < 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "binding not found").ForEntity("binding", bindingID)
	}
	out := make(Layout, 0, len(l)-1)
	out = append(out, l[:k]...)
	return append(out, l[k+1:]...), nil
}

// Move is Remove followed by Insert at p, where p is interpreted against the
// final layout and must lie in [0, n-1].
func (l Layout) Move(bindingID id.BindingID, p int) (Layout, error) {
	if p < 0 || p > len(l)-1 {
		return nil, outOfRange("position", p, len(l)-1)
	}
	without, err := l.Remove(bindingID)
	if err != nil {
		return nil, err
	}
	return without.Insert(bindingID, p)
}

// CheckPermutation verifies that proposed holds exactly the ids of l, each
// once, in any order.
func (l Layout) CheckPermutation(proposed []id.BindingID) error {
	if len(proposed) != len(l) {
		return dErrors.New(dErrors.CodeInvalidReorderSet,
			fmt.Sprintf("reorder must list all %d bindings of the site, got %d", len(l), len(proposed)))
	}
	current := make(map[id.BindingID]struct{}, len(l))
	for _, b := range l {
		current[b] = struct{}{}
	}
	seen := make(map[id.BindingID]struct{}, len(proposed))
	for _, b := range proposed {
		if _, ok := current[b]; !ok {
			return dErrors.New(dErrors.CodeInvalidReorderSet, "binding does not belong to the site").ForEntity("binding", b)
		}
		if _, dup := seen[b]; dup {
			return dErrors.New(dErrors.CodeInvalidReorderSet, "binding listed more than once").ForEntity("binding", b)
		}
		seen[b] = struct{}{}
	}
	return nil
}

// Changes returns the new position of every binding whose position differs
// between before and l. Bindings absent from l are ignored.
func (l Layout) Changes(before Layout) map[id.BindingID]int {
	old := make(map[id.BindingID]int, len(before))
	for i, b := range before {
		old[b] = i
	}
	out := make(map[id.BindingID]int)
	for i, b := range l {
		if prev, ok := old[b]; !ok || prev != i {
			out[b] = i
		}
	}
	return out
}

// Contiguous reports whether bindings, in any order, carry positions exactly
// 0..n-1.
func Contiguous(bindings []*Binding) bool {
	seen := make([]bool, len(bindings))
	for _, b := range bindings {
		if b.Position < 0 || b.Position >= len(bindings) || seen[b.Position] {
			return false
		}
		seen[b.Position] = true
	}
	return true
}

func outOfRange(field string, got, maxAllowed int) error {
	if maxAllowed < 0 {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s %d is out of range: the site has no bindings", field, got))
	}
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s %d is out of range [0, %d]", field, got, maxAllowed))
}
