package flow

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Config is the typed configuration of a node. Each node type has exactly one
// implementation; switch on the concrete type to inspect it.
type Config interface {
	NodeType() NodeType
}

// InputConfig reads a table from a source or destination connection.
type InputConfig struct {
	Label         string   `mapstructure:"label"`
	SourceID      string   `mapstructure:"source_id"`
	DestinationID string   `mapstructure:"destination_id"`
	SchemaName    string   `mapstructure:"schema_name"`
	TableName     string   `mapstructure:"table_name"`
	Columns       []string `mapstructure:"columns"`
}

// Configured reports whether a source or destination has been selected.
func (c InputConfig) Configured() bool {
	return c.SourceID != "" || c.DestinationID != ""
}

// ComputedColumn is an expression-defined column added by a clean node.
type ComputedColumn struct {
	Name       string `mapstructure:"name" json:"name"`
	Expression string `mapstructure:"expression" json:"expression"`
	Type       string `mapstructure:"type" json:"type,omitempty"`
}

// Filter is a row predicate of a clean node.
type Filter struct {
	Column   string `mapstructure:"column"`
	Operator string `mapstructure:"operator"`
	Value    any    `mapstructure:"value"`
}

// CleanConfig projects, renames, computes and filters columns.
type CleanConfig struct {
	Label           string            `mapstructure:"label"`
	SelectColumns   []string          `mapstructure:"select_columns"`
	DropColumns     []string          `mapstructure:"drop_columns"`
	RenameColumns   map[string]string `mapstructure:"rename_columns"`
	ComputedColumns []ComputedColumn  `mapstructure:"computed_columns"`
	Filters         []Filter          `mapstructure:"filters"`
	DropNulls       bool              `mapstructure:"drop_nulls"`
	Deduplicate     bool              `mapstructure:"deduplicate"`
}

// Aggregation is one aggregate expression of an aggregate node.
type Aggregation struct {
	Function string `mapstructure:"function" json:"function"`
	Column   string `mapstructure:"column" json:"column"`
	Alias    string `mapstructure:"alias" json:"alias"`
}

// AggregateConfig groups rows and computes aggregations.
type AggregateConfig struct {
	Label        string        `mapstructure:"label"`
	GroupBy      []string      `mapstructure:"group_by"`
	Aggregations []Aggregation `mapstructure:"aggregations"`
}

// JoinConfig joins its left and right inputs.
type JoinConfig struct {
	Label         string   `mapstructure:"label"`
	JoinType      string   `mapstructure:"join_type"`
	LeftKeys      []string `mapstructure:"left_keys"`
	RightKeys     []string `mapstructure:"right_keys"`
	OutputColumns []string `mapstructure:"output_columns"`
}

// UnionConfig stacks its two inputs.
type UnionConfig struct {
	Label    string `mapstructure:"label"`
	Distinct bool   `mapstructure:"distinct"`
}

// Pivot directions.
const (
	PivotTypePivot   = "PIVOT"
	PivotTypeUnpivot = "UNPIVOT"
)

// PivotConfig rotates rows into columns or columns into rows.
type PivotConfig struct {
	Label             string   `mapstructure:"label"`
	PivotType         string   `mapstructure:"pivot_type"`
	PivotColumn       string   `mapstructure:"pivot_column"`
	ValueColumn       string   `mapstructure:"value_column"`
	PivotValues       []string `mapstructure:"pivot_values"`
	AggregateFunction string   `mapstructure:"aggregate_function"`
}

// NewRowsConfig emits literal rows.
type NewRowsConfig struct {
	Label   string           `mapstructure:"label"`
	Columns []Column         `mapstructure:"columns"`
	Rows    []map[string]any `mapstructure:"rows"`
}

// SQLConfig runs a free-form query over its input.
type SQLConfig struct {
	Label string `mapstructure:"label"`
	Query string `mapstructure:"query"`
}

// OutputConfig writes its input to a destination table.
type OutputConfig struct {
	Label         string `mapstructure:"label"`
	DestinationID string `mapstructure:"destination_id"`
	TableName     string `mapstructure:"table_name"`
	WriteMode     string `mapstructure:"write_mode"`
}

// NoteConfig is a free-text annotation.
type NoteConfig struct {
	Text string `mapstructure:"text"`
}

func (InputConfig) NodeType() NodeType     { return NodeInput }
func (CleanConfig) NodeType() NodeType     { return NodeClean }
func (AggregateConfig) NodeType() NodeType { return NodeAggregate }
func (JoinConfig) NodeType() NodeType      { return NodeJoin }
func (UnionConfig) NodeType() NodeType     { return NodeUnion }
func (PivotConfig) NodeType() NodeType     { return NodePivot }
func (NewRowsConfig) NodeType() NodeType   { return NodeNewRows }
func (SQLConfig) NodeType() NodeType       { return NodeSQL }
func (OutputConfig) NodeType() NodeType    { return NodeOutput }
func (NoteConfig) NodeType() NodeType      { return NodeNote }

// DecodeConfig decodes the data bag of n into the config variant for its type.
func DecodeConfig(n Node) (Config, error) {
	switch n.Type {
	case NodeInput:
		return DecodeInput(n.Data)
	case NodeClean:
		return decodeInto[CleanConfig](n.Data)
	case NodeAggregate:
		return decodeInto[AggregateConfig](n.Data)
	case NodeJoin:
		return decodeInto[JoinConfig](n.Data)
	case NodeUnion:
		return decodeInto[UnionConfig](n.Data)
	case NodePivot:
		return decodeInto[PivotConfig](n.Data)
	case NodeNewRows:
		return decodeInto[NewRowsConfig](n.Data)
	case NodeSQL:
		return decodeInto[SQLConfig](n.Data)
	case NodeOutput:
		return decodeInto[OutputConfig](n.Data)
	case NodeNote:
		return decodeInto[NoteConfig](n.Data)
	default:
		return nil, fmt.Errorf("unknown node type %q", n.Type)
	}
}

// DecodeInput decodes an input node's data bag.
func DecodeInput(d Data) (InputConfig, error) {
	return decodeInto[InputConfig](d)
}

// decodeInto decodes a data bag leniently: unknown keys are ignored and
// scalar types are coerced, since bags are edited by hand-built forms.
func decodeInto[T any](d Data) (T, error) {
	var out T
	if len(d) == 0 {
		return out, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]any(d)); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}

// DefaultData returns the data bag a freshly dropped node of type t starts with.
func DefaultData(t NodeType) Data {
	switch t {
	case NodeNote:
		return Data{"text": ""}
	case NodeInput:
		return Data{"label": "Input", "columns": []any{}}
	case NodeClean:
		return Data{"label": "Clean", "select_columns": []any{}, "filters": []any{}}
	case NodeAggregate:
		return Data{"label": "Aggregate", "group_by": []any{}, "aggregations": []any{}}
	case NodeJoin:
		return Data{"label": "Join", "join_type": "INNER", "left_keys": []any{}, "right_keys": []any{}}
	case NodeUnion:
		return Data{"label": "Union", "distinct": false}
	case NodePivot:
		return Data{"label": "Pivot", "pivot_type": PivotTypePivot}
	case NodeNewRows:
		return Data{"label": "New rows", "columns": []any{}, "rows": []any{}}
	case NodeSQL:
		return Data{"label": "SQL", "query": ""}
	case NodeOutput:
		return Data{"label": "Output", "write_mode": "append"}
	}
	return Data{}
}
