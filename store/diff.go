package store

import (
	"encoding/json"
	"reflect"
	"sort"

	"gorm.io/datatypes"
)

// Diff is a field-level comparison of two PEI payloads. Only top-level field
// names are reported; the audit trail stores names, not values, to bound
// entry size.
type Diff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// All returns every touched field name, sorted.
func (d Diff) All() []string {
	out := make([]string, 0, len(d.Added)+len(d.Removed)+len(d.Changed))
	out = append(out, d.Added...)
	out = append(out, d.Removed...)
	out = append(out, d.Changed...)
	sort.Strings(out)
	return out
}

// diffPayloads is a pure function over two immutable payloads. A payload that
// is not a JSON object (or fails to parse) is treated as empty, so the diff
// degrades to "everything added/removed" instead of erroring.
func diffPayloads(old, new datatypes.JSON) Diff {
	oldFields := objectFields(old)
	newFields := objectFields(new)

	var d Diff
	for k, nv := range newFields {
		ov, ok := oldFields[k]
		if !ok {
			d.Added = append(d.Added, k)
		} else if !reflect.DeepEqual(ov, nv) {
			d.Changed = append(d.Changed, k)
		}
	}
	for k := range oldFields {
		if _, ok := newFields[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}

func objectFields(p datatypes.JSON) map[string]any {
	if len(p) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return nil
	}
	return m
}
