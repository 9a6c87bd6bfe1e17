package fingerprint

import (
	"strings"

	"github.com/leapstack-labs/flowtask/internal/flow"
)

// Projections hold only the fields that change output column names or types.
// Empty values are omitted so an unset list and an empty list hash the same.

type inputPrint struct {
	SourceID      string   `json:"source_id,omitempty"`
	DestinationID string   `json:"destination_id,omitempty"`
	SchemaName    string   `json:"schema_name,omitempty"`
	TableName     string   `json:"table_name,omitempty"`
	Columns       []string `json:"columns,omitempty"`
}

type cleanPrint struct {
	SelectColumns   []string              `json:"select_columns,omitempty"`
	DropColumns     []string              `json:"drop_columns,omitempty"`
	RenameColumns   map[string]string     `json:"rename_columns,omitempty"`
	ComputedColumns []flow.ComputedColumn `json:"computed_columns,omitempty"`
}

type aggregatePrint struct {
	GroupBy      []string           `json:"group_by,omitempty"`
	Aggregations []flow.Aggregation `json:"aggregations,omitempty"`
}

type joinPrint struct {
	JoinType      string   `json:"join_type,omitempty"`
	LeftKeys      []string `json:"left_keys,omitempty"`
	RightKeys     []string `json:"right_keys,omitempty"`
	OutputColumns []string `json:"output_columns,omitempty"`
}

type unionPrint struct {
	Distinct bool `json:"distinct"`
}

type pivotPrint struct {
	PivotType   string   `json:"pivot_type,omitempty"`
	PivotColumn string   `json:"pivot_column,omitempty"`
	ValueColumn string   `json:"value_column,omitempty"`
	PivotValues []string `json:"pivot_values,omitempty"`
}

type sqlPrint struct {
	Query string `json:"query,omitempty"`
}

type emptyPrint struct{}

// Project returns the shape-relevant projection of a node's configuration.
// Output, new_rows and note nodes project to an empty value.
func Project(n flow.Node) (any, error) {
	cfg, err := flow.DecodeConfig(n)
	if err != nil {
		return nil, err
	}

	switch c := cfg.(type) {
	case flow.InputConfig:
		return inputPrint{
			SourceID:      c.SourceID,
			DestinationID: c.DestinationID,
			SchemaName:    c.SchemaName,
			TableName:     c.TableName,
			Columns:       c.Columns,
		}, nil

	case flow.CleanConfig:
		return cleanPrint{
			SelectColumns:   c.SelectColumns,
			DropColumns:     c.DropColumns,
			RenameColumns:   nonEmptyRenames(c.RenameColumns),
			ComputedColumns: c.ComputedColumns,
		}, nil

	case flow.AggregateConfig:
		aggs := make([]flow.Aggregation, len(c.Aggregations))
		for i, a := range c.Aggregations {
			a.Function = strings.ToUpper(a.Function)
			aggs[i] = a
		}
		return aggregatePrint{GroupBy: c.GroupBy, Aggregations: aggs}, nil

	case flow.JoinConfig:
		return joinPrint{
			JoinType:      strings.ToUpper(c.JoinType),
			LeftKeys:      c.LeftKeys,
			RightKeys:     c.RightKeys,
			OutputColumns: c.OutputColumns,
		}, nil

	case flow.UnionConfig:
		return unionPrint{Distinct: c.Distinct}, nil

	case flow.PivotConfig:
		return pivotPrint{
			PivotType:   strings.ToUpper(c.PivotType),
			PivotColumn: c.PivotColumn,
			ValueColumn: c.ValueColumn,
			PivotValues: c.PivotValues,
		}, nil

	case flow.SQLConfig:
		return sqlPrint{Query: strings.Join(strings.Fields(c.Query), " ")}, nil
	}

	return emptyPrint{}, nil
}

// nonEmptyRenames drops half-filled rename rows the form keeps while typing.
func nonEmptyRenames(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for from, to := range m {
		if from == "" || to == "" || from == to {
			continue
		}
		out[from] = to
	}
	return out
}
