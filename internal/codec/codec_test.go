package codec

import (
	"encoding/json"
	"testing"
)

const testSchema = `{
  "type": "record",
  "name": "TestRecord",
  "fields": [
    {"name": "customerId", "type": "string"},
    {"name": "accountId", "type": ["null", "string"]},
    {"name": "balance", "type": {"type": "bytes", "logicalType": "decimal", "precision": 10, "scale": 2}},
    {"name": "active", "type": "boolean"},
    {"name": "tags", "type": {"type": "array", "items": "string"}},
    {"name": "attrs", "type": {"type": "map", "values": "string"}}
  ]
}`

func mustSchema(t *testing.T) *RecordSchema {
	t.Helper()
	s, err := ParseSchema([]byte(testSchema))
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	return s
}

func TestRoundTrip_EncodeThenDecode(t *testing.T) {
	schema := mustSchema(t)
	input := `{"customerId":"C-1","accountId":"A-9","balance":"123.45","active":true,"tags":["a","b"],"attrs":{"k":"v"}}`

	encoded, err := Encode(input, schema)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded, schema)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	var want, got map[string]interface{}
	_ = json.Unmarshal([]byte(input), &want)
	_ = json.Unmarshal([]byte(decoded), &got)

	for k, wv := range want {
		if k == "balance" {
			continue // decimal decodes as text at the schema's scale (e.g. "1.5" -> "1.50"), not necessarily the same literal shape
		}
		gv, ok := got[k]
		if !ok {
			t.Fatalf("decoded record missing field %q", k)
		}
		wb, _ := json.Marshal(wv)
		gb, _ := json.Marshal(gv)
		if string(wb) != string(gb) {
			t.Errorf("field %q: want %s, got %s", k, wb, gb)
		}
	}
}

func TestRoundTrip_NullUnionBranch(t *testing.T) {
	schema := mustSchema(t)
	input := `{"customerId":"C-1","accountId":null,"balance":"1.00","active":false,"tags":[],"attrs":{}}`

	encoded, err := Encode(input, schema)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded, schema)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var got map[string]interface{}
	_ = json.Unmarshal([]byte(decoded), &got)
	if got["accountId"] != nil {
		t.Fatalf("expected accountId to decode back to null, got %v", got["accountId"])
	}
}

func TestEncode_ExpectedListFailsOnObject(t *testing.T) {
	schema := mustSchema(t)
	input := `{"customerId":"C-1","accountId":null,"balance":"1.00","active":false,"tags":{"not":"a list"},"attrs":{}}`
	if _, err := Encode(input, schema); err == nil {
		t.Fatal("expected ExpectedList error")
	}
}

func TestEncode_ExpectedMapFailsOnArray(t *testing.T) {
	schema := mustSchema(t)
	input := `{"customerId":"C-1","accountId":null,"balance":"1.00","active":false,"tags":[],"attrs":["not","a","map"]}`
	if _, err := Encode(input, schema); err == nil {
		t.Fatal("expected ExpectedMap error")
	}
}

func TestEncode_TypeMismatchOnBoolean(t *testing.T) {
	schema := mustSchema(t)
	input := `{"customerId":"C-1","accountId":null,"balance":"1.00","active":"not-a-bool","tags":[],"attrs":{}}`
	if _, err := Encode(input, schema); err == nil {
		t.Fatal("expected TypeMismatch error")
	}
}

func TestDecode_TruncatedInputFails(t *testing.T) {
	schema := mustSchema(t)
	if _, err := Decode([]byte{0x01}, schema); err == nil {
		t.Fatal("expected DecodeError on truncated input")
	}
}
