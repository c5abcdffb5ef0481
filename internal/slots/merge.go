package slots

import "strings"

// Merge folds newly extracted values into the current slot map and returns
// the updated map plus whether anything changed. The input map is not
// mutated.
//
// Policy, per slot name:
//   - extracted values are trimmed; blank values are ignored and never
//     clear a slot
//   - names outside the schema are ignored
//   - an empty slot takes the extracted value
//   - a filled slot is overwritten when the extracted value differs
//     (last write wins)
//
// Value semantics are not validated here; any non-blank string is accepted.
func (s Schema) Merge(current, extracted map[string]string) (map[string]string, bool) {
	updated := make(map[string]string, len(s.order))
	for _, name := range s.order {
		updated[name] = current[name]
	}

	changed := false
	for name, raw := range extracted {
		if !s.Has(name) {
			continue
		}
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		switch {
		case IsBlank(updated[name]):
			updated[name] = value
			changed = true
		case updated[name] != value:
			updated[name] = value
			changed = true
		}
	}

	return updated, changed
}
