package source

// Evaluate runs a validated retrieve or aggregate spec over the records and
// returns the resulting rows. Adapters that hold documents in memory (or
// decode them from storage) share this evaluator.
func Evaluate(records []Record, spec QuerySpec) ([]Record, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var rows []Record
	var err error

	switch spec.Operation {
	case OpAggregate:
		rows = filterRecords(records, spec.Filter)
		rows, err = applyPipeline(rows, spec.Pipeline)
		if err != nil {
			return nil, err
		}
	default:
		rows = filterRecords(records, spec.Filter)
	}

	sortRecords(rows, spec.Sort)

	if spec.Limit > 0 && len(rows) > spec.Limit {
		rows = rows[:spec.Limit]
	}

	return rows, nil
}

// EvaluateCount returns the number of records the spec's predicate matches,
// ignoring any row cap.
func EvaluateCount(records []Record, spec QuerySpec) (int, error) {
	countSpec := spec.CountSpec()
	if err := countSpec.Validate(); err != nil {
		return 0, err
	}
	return len(filterRecords(records, countSpec.Filter)), nil
}

func filterRecords(records []Record, filter map[string]interface{}) []Record {
	if len(filter) == 0 {
		out := make([]Record, len(records))
		copy(out, records)
		return out
	}

	var out []Record
	for _, record := range records {
		if matchFilter(record, filter) {
			out = append(out, record)
		}
	}
	return out
}
