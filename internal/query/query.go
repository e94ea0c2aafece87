// Package query implements the ad-hoc predicate and sort engine used by
// the read surface of the store: conjunctions of field conditions plus
// lexicographic sort with an optional limit. Both entry points are pure
// and total — absent fields never raise, they compare as less than
// everything and sort last.
package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Predicate is a conjunction of per-field conditions. A plain value is
// an exact-equality test; wrap values in GTE/LTE/In for the range and
// membership operators. Field names are the snake_case JSON tags of the
// record structs.
type Predicate map[string]any

type condKind int

const (
	condGTE condKind = iota + 1
	condLTE
	condIn
)

// Cond is an operator condition inside a Predicate.
type Cond struct {
	kind   condKind
	value  any
	values []any
}

// GTE matches fields lexicographically greater than or equal to v.
// Used for date-range lower bounds (RFC3339 strings order correctly).
func GTE(v any) Cond { return Cond{kind: condGTE, value: v} }

// LTE matches fields lexicographically less than or equal to v.
func LTE(v any) Cond { return Cond{kind: condLTE, value: v} }

// In matches fields whose value appears in vs.
func In(vs ...any) Cond { return Cond{kind: condIn, values: vs} }

// Matches evaluates pred against rec (a record struct or pointer to
// one). Every condition must hold.
func Matches(rec any, pred Predicate) bool {
	for name, want := range pred {
		got, ok := Field(rec, name)
		if !matchOne(got, ok, want) {
			return false
		}
	}
	return true
}

// matchOne evaluates a single condition. Absent and empty values
// compare as the empty string, i.e. less than everything: a GTE lower
// bound excludes them, an LTE upper bound admits them.
func matchOne(got any, present bool, want any) bool {
	gs := ""
	if present {
		gs, _ = stringify(got)
	}

	if c, isCond := want.(Cond); isCond {
		switch c.kind {
		case condGTE:
			ws, _ := stringify(c.value)
			return gs >= ws
		case condLTE:
			ws, _ := stringify(c.value)
			return gs <= ws
		case condIn:
			for _, v := range c.values {
				if ws, _ := stringify(v); ws == gs {
					return true
				}
			}
			return false
		}
		return false
	}

	if !present {
		return false
	}
	ws, _ := stringify(want)
	return gs == ws
}

// SortAndLimit orders rows by the named field and truncates after
// sorting. A "-" prefix on sortKey sorts descending. Records missing
// the field sort last regardless of direction; the sort is stable so
// insertion order breaks ties. limit <= 0 means no truncation. The
// input slice is not modified.
func SortAndLimit[T any](rows []T, sortKey string, limit int) []T {
	out := append([]T(nil), rows...)

	if sortKey != "" {
		desc := strings.HasPrefix(sortKey, "-")
		key := strings.TrimPrefix(sortKey, "-")
		sort.SliceStable(out, func(i, j int) bool {
			vi, oki := Field(out[i], key)
			vj, okj := Field(out[j], key)
			si, oki2 := stringify(vi)
			sj, okj2 := stringify(vj)
			oki = oki && oki2
			okj = okj && okj2
			switch {
			case oki && !okj:
				return true // present before missing, both directions
			case !oki:
				return false
			case desc:
				return si > sj
			default:
				return si < sj
			}
		})
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Field resolves a record field by its JSON tag. Returns the value and
// whether the field exists on the record's type.
func Field(rec any, name string) (any, bool) {
	v := reflect.ValueOf(rec)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	idx, ok := fieldIndex(v.Type())[name]
	if !ok {
		return nil, false
	}
	return v.Field(idx).Interface(), true
}

var fieldIndexCache sync.Map // reflect.Type -> map[string]int

func fieldIndex(t reflect.Type) map[string]int {
	if cached, ok := fieldIndexCache.Load(t); ok {
		return cached.(map[string]int)
	}
	m := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		m[name] = i
	}
	fieldIndexCache.Store(t, m)
	return m
}

// stringify renders a value for lexicographic comparison. The second
// return is false for nil and empty values, which sort as missing; an
// unset optional field is an empty string on the record structs.
func stringify(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	s := fmt.Sprintf("%v", rv.Interface())
	return s, s != ""
}
