// Package codec implements the gateway's Codec (spec §4.C): bidirectional
// binary-record <-> JSON conversion driven by a record schema. The wire
// format is genuine Apache Avro binary, matching the original system's
// GenericRecord/BinaryEncoder pipeline (see DESIGN.md), so the binary <->
// native-value step is delegated to github.com/linkedin/goavro/v2's Codec.
// What's hand-rolled here is the layer goavro doesn't provide: mapping its
// native union/decimal representation onto the lenient, tag-free plain-JSON
// shape spec §4.C requires (a bare value or null, never a wrapped union
// branch or a scaled-integer byte string).
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/linkedin/goavro/v2"
)

// Kind identifies a schema node's shape.
type Kind string

const (
	KindNull    Kind = "null"
	KindBoolean Kind = "boolean"
	KindInt     Kind = "int"
	KindLong    Kind = "long"
	KindFloat   Kind = "float"
	KindDouble  Kind = "double"
	KindBytes   Kind = "bytes"
	KindString  Kind = "string"
	KindRecord  Kind = "record"
	KindArray   Kind = "array"
	KindMap     Kind = "map"
	KindUnion   Kind = "union"
	KindDecimal Kind = "decimal"
)

// Field is one named field of a record type.
type Field struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Type is a schema type node. It unmarshals from three JSON shapes,
// mirroring Avro's schema grammar:
//
//	"string"                                          -> primitive
//	["null","string"]                                 -> union
//	{"type":"record","name":"X",...}                  -> record/array/map
//	{"type":"bytes","logicalType":"decimal",...}       -> decimal
//
// This tree is a lightweight mirror of the schema goavro itself parses; it
// exists so the codec knows, field by field, how to fold goavro's native
// Avro value representation down into (and lift it back up from) plain
// lenient JSON.
type Type struct {
	Kind      Kind
	Name      string
	Fields    []Field // record
	Items     *Type   // array
	Values    *Type   // map
	Branches  []Type  // union
	Precision int     // decimal
	Scale     int     // decimal
}

type rawType struct {
	Type        json.RawMessage `json:"type"`
	Name        string          `json:"name"`
	Fields      []Field         `json:"fields"`
	Items       json.RawMessage `json:"items"`
	Values      json.RawMessage `json:"values"`
	LogicalType string          `json:"logicalType"`
	Precision   int             `json:"precision"`
	Scale       int             `json:"scale"`
}

// UnmarshalJSON implements the schema grammar described on Type.
func (t *Type) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		t.Kind = Kind(asString)
		return nil
	}

	var asUnion []Type
	if err := json.Unmarshal(data, &asUnion); err == nil {
		t.Kind = KindUnion
		t.Branches = asUnion
		return nil
	}

	var raw rawType
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("codec: unrecognized schema type shape: %s", string(data))
	}

	var kindStr string
	if err := json.Unmarshal(raw.Type, &kindStr); err != nil {
		return fmt.Errorf("codec: object type node missing string \"type\": %s", string(data))
	}
	t.Name = raw.Name
	t.Precision = raw.Precision
	t.Scale = raw.Scale

	switch {
	case raw.LogicalType == "decimal":
		// Avro's decimal logical type layers on a bytes or fixed base;
		// goavro surfaces it as *big.Rat regardless of the base encoding.
		t.Kind = KindDecimal
	case kindStr == string(KindRecord):
		t.Kind = KindRecord
		t.Fields = raw.Fields
	case kindStr == string(KindArray):
		t.Kind = KindArray
		var items Type
		if err := json.Unmarshal(raw.Items, &items); err != nil {
			return fmt.Errorf("codec: array schema missing items: %w", err)
		}
		t.Items = &items
	case kindStr == string(KindMap):
		t.Kind = KindMap
		var values Type
		if err := json.Unmarshal(raw.Values, &values); err != nil {
			return fmt.Errorf("codec: map schema missing values: %w", err)
		}
		t.Values = &values
	default:
		t.Kind = Kind(kindStr)
	}
	return nil
}

// RecordSchema is the top-level parsed *.avsc artifact cached by the
// registry: the lenient-JSON Type tree alongside the goavro Codec that
// performs the actual Avro binary encoding.
type RecordSchema struct {
	Root Type
	Avro *goavro.Codec
}

// ParseSchema parses a schema resource's raw bytes.
func ParseSchema(data []byte) (*RecordSchema, error) {
	var t Type
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("codec: invalid schema: %w", err)
	}
	if t.Kind != KindRecord {
		return nil, fmt.Errorf("codec: top-level schema must be a record, got %q", t.Kind)
	}
	avroCodec, err := goavro.NewCodec(string(data))
	if err != nil {
		return nil, fmt.Errorf("codec: invalid avro schema: %w", err)
	}
	return &RecordSchema{Root: t, Avro: avroCodec}, nil
}
