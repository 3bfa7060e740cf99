package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords() []Record {
	return []Record{
		{"item": "laptop", "department": "IT", "price": 1200.0, "date": "2014-03-15"},
		{"item": "desk", "department": "Facilities", "price": 300.0, "date": "2014-06-01"},
		{"item": "monitor", "department": "IT", "price": 250.0, "date": "2015-01-20"},
		{"item": "chair", "department": "Facilities", "price": 150.0, "date": "2014-09-10"},
		{"item": "server", "department": "IT", "price": 5000.0, "date": "2015-07-04"},
	}
}

func TestQuerySpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    QuerySpec
		wantErr bool
	}{
		{"valid retrieve", QuerySpec{Operation: OpRetrieve}, false},
		{"valid count", QuerySpec{Operation: OpCount}, false},
		{"valid aggregate", QuerySpec{Operation: OpAggregate, Pipeline: []map[string]interface{}{{"$match": map[string]interface{}{}}}}, false},
		{"count with cap", QuerySpec{Operation: OpCount, Limit: 10}, true},
		{"aggregate without pipeline", QuerySpec{Operation: OpAggregate}, true},
		{"missing operation", QuerySpec{}, true},
		{"unknown operation", QuerySpec{Operation: "explode"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluate_FilterOperators(t *testing.T) {
	records := testRecords()

	tests := []struct {
		name   string
		filter map[string]interface{}
		want   int
	}{
		{"bare equality", map[string]interface{}{"department": "IT"}, 3},
		{"eq operator", map[string]interface{}{"department": map[string]interface{}{"$eq": "Facilities"}}, 2},
		{"ne operator", map[string]interface{}{"department": map[string]interface{}{"$ne": "IT"}}, 2},
		{"gt operator", map[string]interface{}{"price": map[string]interface{}{"$gt": 300.0}}, 2},
		{"gte operator", map[string]interface{}{"price": map[string]interface{}{"$gte": 300.0}}, 3},
		{"lt operator", map[string]interface{}{"price": map[string]interface{}{"$lt": 300.0}}, 2},
		{"lte and gte range", map[string]interface{}{"price": map[string]interface{}{"$gte": 200.0, "$lte": 400.0}}, 2},
		{"in operator", map[string]interface{}{"item": map[string]interface{}{"$in": []interface{}{"desk", "chair"}}}, 2},
		{"nin operator", map[string]interface{}{"item": map[string]interface{}{"$nin": []interface{}{"desk", "chair"}}}, 3},
		{"and operator", map[string]interface{}{"$and": []interface{}{
			map[string]interface{}{"department": "IT"},
			map[string]interface{}{"price": map[string]interface{}{"$lt": 2000.0}},
		}}, 2},
		{"or operator", map[string]interface{}{"$or": []interface{}{
			map[string]interface{}{"item": "desk"},
			map[string]interface{}{"item": "server"},
		}}, 2},
		{"no filter", nil, 5},
		{"no match", map[string]interface{}{"department": "Legal"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Evaluate(records, QuerySpec{Operation: OpRetrieve, Filter: tt.filter})
			require.NoError(t, err)
			assert.Len(t, rows, tt.want)
		})
	}
}

func TestEvaluate_DatetimePlaceholders(t *testing.T) {
	records := testRecords()

	// Purchases in 2014: the generator emits __datetime__ literals for
	// date-range predicates
	spec := QuerySpec{
		Operation: OpRetrieve,
		Filter: map[string]interface{}{
			"date": map[string]interface{}{
				"$gte": map[string]interface{}{"__datetime__": "2014-01-01"},
				"$lt":  map[string]interface{}{"__datetime__": "2015-01-01"},
			},
		},
	}

	rows, err := Evaluate(records, spec)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestEvaluate_SortAndLimit(t *testing.T) {
	records := testRecords()

	spec := QuerySpec{
		Operation: OpRetrieve,
		Sort:      map[string]int{"price": -1},
		Limit:     2,
	}

	rows, err := Evaluate(records, spec)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "server", rows[0]["item"])
	assert.Equal(t, "laptop", rows[1]["item"])
}

func TestEvaluate_AggregatePipeline(t *testing.T) {
	records := testRecords()

	spec := QuerySpec{
		Operation: OpAggregate,
		Pipeline: []map[string]interface{}{
			{"$match": map[string]interface{}{"price": map[string]interface{}{"$gt": 100.0}}},
			{"$group": map[string]interface{}{
				"_id":   "$department",
				"total": map[string]interface{}{"$sum": "$price"},
				"count": map[string]interface{}{"$sum": 1},
			}},
			{"$sort": map[string]interface{}{"total": -1}},
		},
	}

	rows, err := Evaluate(records, spec)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "IT", rows[0]["_id"])
	assert.Equal(t, 6450.0, rows[0]["total"])
	assert.Equal(t, float64(3), rows[0]["count"])

	assert.Equal(t, "Facilities", rows[1]["_id"])
	assert.Equal(t, 450.0, rows[1]["total"])
}

func TestEvaluate_AggregateAccumulators(t *testing.T) {
	records := testRecords()

	spec := QuerySpec{
		Operation: OpAggregate,
		Pipeline: []map[string]interface{}{
			{"$group": map[string]interface{}{
				"_id": nil,
				"avg": map[string]interface{}{"$avg": "$price"},
				"min": map[string]interface{}{"$min": "$price"},
				"max": map[string]interface{}{"$max": "$price"},
				"n":   map[string]interface{}{"$count": map[string]interface{}{}},
			}},
		},
	}

	rows, err := Evaluate(records, spec)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1380.0, rows[0]["avg"])
	assert.Equal(t, 150.0, rows[0]["min"])
	assert.Equal(t, 5000.0, rows[0]["max"])
	assert.Equal(t, float64(5), rows[0]["n"])
}

func TestEvaluate_PipelineLimit(t *testing.T) {
	records := testRecords()

	spec := QuerySpec{
		Operation: OpAggregate,
		Pipeline: []map[string]interface{}{
			{"$sort": map[string]interface{}{"price": 1.0}},
			{"$limit": 3.0},
		},
	}

	rows, err := Evaluate(records, spec)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "chair", rows[0]["item"])
}

func TestEvaluate_UnsupportedStage(t *testing.T) {
	spec := QuerySpec{
		Operation: OpAggregate,
		Pipeline: []map[string]interface{}{
			{"$unwind": "$tags"},
		},
	}

	_, err := Evaluate(testRecords(), spec)
	assert.Error(t, err)
}

func TestEvaluateCount(t *testing.T) {
	records := testRecords()

	count, err := EvaluateCount(records, QuerySpec{
		Operation: OpRetrieve,
		Filter:    map[string]interface{}{"department": "IT"},
		Limit:     1, // the cap never affects the count
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCountSpec_AggregateUsesLeadingMatch(t *testing.T) {
	spec := QuerySpec{
		Operation: OpAggregate,
		Pipeline: []map[string]interface{}{
			{"$match": map[string]interface{}{"department": "IT"}},
			{"$group": map[string]interface{}{"_id": "$item"}},
		},
	}

	count, err := EvaluateCount(testRecords(), spec)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
