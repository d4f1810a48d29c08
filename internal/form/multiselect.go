// internal/form/multiselect.go
//
// Multi-select helpers.  Selections are stored as []int64 in insertion order;
// toggling appends an absent id and removes a present one.

package form

import (
	"fmt"

	"github.com/samber/lo"
)

// ToggleItem adds id to the selection under key when absent and removes it
// when present.  Zero, negative, and non-numeric ids are logged and ignored
// so a bad id can never corrupt the selection.
func (f *Form) ToggleItem(key string, id any) error {
	return f.editSelection(key, id, func(cur []int64, n int64) []int64 {
		if lo.Contains(cur, n) {
			return lo.Without(cur, n)
		}
		return append(cur, n)
	})
}

// RemoveItem drops id from the selection under key.  Removing an absent id
// leaves the selection unchanged.
func (f *Form) RemoveItem(key string, id any) error {
	return f.editSelection(key, id, func(cur []int64, n int64) []int64 {
		return lo.Without(cur, n)
	})
}

// ClearAll empties the selection under key.
func (f *Form) ClearAll(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkSelectionLocked(key); err != nil {
		return err
	}
	f.setLocked(key, []int64{})
	return nil
}

func (f *Form) editSelection(key string, id any, edit func([]int64, int64) []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkSelectionLocked(key); err != nil {
		return err
	}
	n, ok := ToID(id)
	if !ok {
		f.log.Warnw("ignoring invalid selection id", "field", key, "id", id)
		return fmt.Errorf("%w: %v", ErrInvalidItem, id)
	}

	cur, _ := ToIDs(f.st.fields[key])
	next := edit(append([]int64(nil), cur...), n)
	if next == nil {
		next = []int64{}
	}
	f.setLocked(key, next)
	return nil
}

func (f *Form) checkSelectionLocked(key string) error {
	if f.closed {
		return ErrClosed
	}
	d, ok := f.set.Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	if d.Kind != KindMultiSelect {
		return fmt.Errorf("%w: %q", ErrNotMultiSelect, key)
	}
	return nil
}
