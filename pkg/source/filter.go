package source

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// datetimeKey marks a filter value as a datetime literal to be resolved
// before comparison, e.g. {"$gte": {"__datetime__": "2014-01-01"}}.
const datetimeKey = "__datetime__"

// datetimeLayouts are tried in order when resolving datetime literals and
// record field values.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// matchFilter reports whether the record satisfies the filter predicate.
// An empty filter matches everything.
func matchFilter(record Record, filter map[string]interface{}) bool {
	for key, condition := range filter {
		switch key {
		case "$and":
			clauses, ok := toFilterList(condition)
			if !ok {
				return false
			}
			for _, clause := range clauses {
				if !matchFilter(record, clause) {
					return false
				}
			}
		case "$or":
			clauses, ok := toFilterList(condition)
			if !ok {
				return false
			}
			matched := false
			for _, clause := range clauses {
				if matchFilter(record, clause) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			if !matchField(record[key], condition) {
				return false
			}
		}
	}
	return true
}

// matchField evaluates one field condition: either a bare equality value or
// an operator document like {"$gte": 100, "$lt": 200}.
func matchField(value interface{}, condition interface{}) bool {
	ops, isOps := operatorDoc(condition)
	if !isOps {
		return compareEqual(value, resolveDatetime(condition))
	}

	for op, operand := range ops {
		operand = resolveDatetime(operand)
		switch op {
		case "$eq":
			if !compareEqual(value, operand) {
				return false
			}
		case "$ne":
			if compareEqual(value, operand) {
				return false
			}
		case "$gt":
			cmp, ok := compareValues(value, operand)
			if !ok || cmp <= 0 {
				return false
			}
		case "$gte":
			cmp, ok := compareValues(value, operand)
			if !ok || cmp < 0 {
				return false
			}
		case "$lt":
			cmp, ok := compareValues(value, operand)
			if !ok || cmp >= 0 {
				return false
			}
		case "$lte":
			cmp, ok := compareValues(value, operand)
			if !ok || cmp > 0 {
				return false
			}
		case "$in":
			if !containsValue(operand, value) {
				return false
			}
		case "$nin":
			if containsValue(operand, value) {
				return false
			}
		default:
			// Unknown operators never match, mirroring strict validation
			return false
		}
	}
	return true
}

// operatorDoc reports whether the condition is an operator document (all
// keys start with $).
func operatorDoc(condition interface{}) (map[string]interface{}, bool) {
	doc, ok := condition.(map[string]interface{})
	if !ok || len(doc) == 0 {
		return nil, false
	}
	for key := range doc {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return doc, true
}

// resolveDatetime replaces {"__datetime__": "..."} documents with the parsed
// time value. Anything else passes through unchanged.
func resolveDatetime(value interface{}) interface{} {
	doc, ok := value.(map[string]interface{})
	if !ok || len(doc) != 1 {
		return value
	}
	raw, ok := doc[datetimeKey].(string)
	if !ok {
		return value
	}
	if t, ok := parseDatetime(raw); ok {
		return t
	}
	return value
}

func parseDatetime(raw string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// compareEqual reports whether two values are equal after coercion.
func compareEqual(a, b interface{}) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues compares two values, coercing numbers to float64 and
// datetimes to time.Time. The second result is false when the values are
// not comparable.
func compareValues(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}

	return 0, false
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// toTime coerces time.Time values and datetime-shaped strings. Plain
// strings only coerce when the other comparand is a time, which callers
// arrange by resolving datetime literals first.
func toTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		return parseDatetime(v)
	default:
		return time.Time{}, false
	}
}

func containsValue(operand interface{}, value interface{}) bool {
	list, ok := operand.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if compareEqual(value, resolveDatetime(item)) {
			return true
		}
	}
	return false
}

func toFilterList(condition interface{}) ([]map[string]interface{}, bool) {
	raw, ok := condition.([]interface{})
	if !ok {
		return nil, false
	}
	clauses := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		clause, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		clauses = append(clauses, clause)
	}
	return clauses, true
}

// sortRecords orders records by the sort document. Field order within the
// document is applied alphabetically for determinism when multiple keys are
// present.
func sortRecords(records []Record, sortDoc map[string]int) {
	if len(sortDoc) == 0 {
		return
	}

	fields := make([]string, 0, len(sortDoc))
	for field := range sortDoc {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	sort.SliceStable(records, func(i, j int) bool {
		for _, field := range fields {
			cmp, ok := compareValues(records[i][field], records[j][field])
			if !ok || cmp == 0 {
				continue
			}
			if sortDoc[field] < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
