package source

import (
	"fmt"
	"strings"
)

// applyPipeline runs the aggregation stages over the records in order.
// Supported stages: $match, $group, $sort, $limit.
func applyPipeline(records []Record, pipeline []map[string]interface{}) ([]Record, error) {
	current := records

	for _, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("pipeline stage must have exactly one operator, got %d", len(stage))
		}

		for op, spec := range stage {
			var err error
			switch op {
			case "$match":
				current, err = stageMatch(current, spec)
			case "$group":
				current, err = stageGroup(current, spec)
			case "$sort":
				current, err = stageSort(current, spec)
			case "$limit":
				current, err = stageLimit(current, spec)
			default:
				err = fmt.Errorf("unsupported pipeline stage: %q", op)
			}
			if err != nil {
				return nil, err
			}
		}
	}

	return current, nil
}

func stageMatch(records []Record, spec interface{}) ([]Record, error) {
	filter, ok := spec.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("$match stage requires a filter document")
	}

	var out []Record
	for _, record := range records {
		if matchFilter(record, filter) {
			out = append(out, record)
		}
	}
	return out, nil
}

// stageGroup groups records by the _id expression and evaluates the
// accumulators. Supported accumulators: $sum, $avg, $min, $max, $count.
func stageGroup(records []Record, spec interface{}) ([]Record, error) {
	doc, ok := spec.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("$group stage requires a group document")
	}

	idExpr, hasID := doc["_id"]
	if !hasID {
		return nil, fmt.Errorf("$group stage requires an _id expression")
	}

	type group struct {
		key     interface{}
		records []Record
	}

	groups := make(map[string]*group)
	var order []string
	for _, record := range records {
		key := evaluateExpr(record, idExpr)
		mapKey := fmt.Sprintf("%v", key)
		g, exists := groups[mapKey]
		if !exists {
			g = &group{key: key}
			groups[mapKey] = g
			order = append(order, mapKey)
		}
		g.records = append(g.records, record)
	}

	var out []Record
	for _, mapKey := range order {
		g := groups[mapKey]
		row := Record{"_id": g.key}

		for field, accSpec := range doc {
			if field == "_id" {
				continue
			}
			value, err := evaluateAccumulator(g.records, accSpec)
			if err != nil {
				return nil, fmt.Errorf("accumulator %q: %w", field, err)
			}
			row[field] = value
		}

		out = append(out, row)
	}
	return out, nil
}

func stageSort(records []Record, spec interface{}) ([]Record, error) {
	doc, ok := spec.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("$sort stage requires a sort document")
	}

	sortDoc := make(map[string]int, len(doc))
	for field, dir := range doc {
		f, ok := toFloat(dir)
		if !ok {
			return nil, fmt.Errorf("$sort direction for %q must be numeric", field)
		}
		sortDoc[field] = int(f)
	}

	sortRecords(records, sortDoc)
	return records, nil
}

func stageLimit(records []Record, spec interface{}) ([]Record, error) {
	f, ok := toFloat(spec)
	if !ok || f < 0 {
		return nil, fmt.Errorf("$limit stage requires a non-negative number")
	}

	limit := int(f)
	if limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// evaluateExpr resolves a group expression against a record: "$field"
// references read the field, anything else is a literal.
func evaluateExpr(record Record, expr interface{}) interface{} {
	ref, ok := expr.(string)
	if ok && strings.HasPrefix(ref, "$") {
		return record[strings.TrimPrefix(ref, "$")]
	}
	return expr
}

// evaluateAccumulator evaluates one accumulator over the group's records.
func evaluateAccumulator(records []Record, spec interface{}) (interface{}, error) {
	doc, ok := spec.(map[string]interface{})
	if !ok || len(doc) != 1 {
		return nil, fmt.Errorf("accumulator must be a single-operator document")
	}

	for op, operand := range doc {
		switch op {
		case "$count":
			return float64(len(records)), nil
		case "$sum":
			// {$sum: 1} counts; {$sum: "$field"} totals the field
			if literal, ok := toFloat(operand); ok {
				return literal * float64(len(records)), nil
			}
			var total float64
			for _, record := range records {
				if v, ok := toFloat(evaluateExpr(record, operand)); ok {
					total += v
				}
			}
			return total, nil
		case "$avg":
			var total float64
			var count int
			for _, record := range records {
				if v, ok := toFloat(evaluateExpr(record, operand)); ok {
					total += v
					count++
				}
			}
			if count == 0 {
				return nil, nil
			}
			return total / float64(count), nil
		case "$min":
			return extremum(records, operand, -1), nil
		case "$max":
			return extremum(records, operand, 1), nil
		default:
			return nil, fmt.Errorf("unsupported accumulator: %q", op)
		}
	}
	return nil, nil
}

// extremum returns the minimum (direction -1) or maximum (direction 1) of
// the expression over the records.
func extremum(records []Record, operand interface{}, direction int) interface{} {
	var best interface{}
	for _, record := range records {
		value := evaluateExpr(record, operand)
		if value == nil {
			continue
		}
		if best == nil {
			best = value
			continue
		}
		if cmp, ok := compareValues(value, best); ok && cmp*direction > 0 {
			best = value
		}
	}
	return best
}
