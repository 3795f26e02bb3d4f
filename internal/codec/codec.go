package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"

	"github.com/eportal-gateway/gateway/internal/pipeline"
)

var (
	decimalNumericRe = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
	base64Re         = regexp.MustCompile(`^([A-Za-z0-9+/]{4})*([A-Za-z0-9+/]{3}=|[A-Za-z0-9+/]{2}==)?$`)
)

// Decode parses Avro binary-record bytes into the record's canonical,
// lenient JSON form (spec §4.C decode): goavro turns the wire bytes into
// its native Avro value tree, then liftToLenient strips union-branch
// wrapping and renders decimals/bytes as plain strings.
func Decode(payload []byte, schema *RecordSchema) (string, error) {
	native, remaining, err := schema.Avro.NativeFromBinary(payload)
	if err != nil {
		return "", pipeline.New(pipeline.KindDecodeError, err)
	}
	if len(remaining) != 0 {
		return "", pipeline.New(pipeline.KindTypeMismatch, fmt.Errorf("codec: %d trailing bytes after decoding record", len(remaining)))
	}
	lenient := liftToLenient(schema.Root, native)
	out, err := json.Marshal(lenient)
	if err != nil {
		return "", pipeline.New(pipeline.KindDecodeError, err)
	}
	return string(out), nil
}

// Encode parses payloadJSON's lenient shape, folds it down into goavro's
// native union-wrapped value tree, and emits Avro binary bytes (spec §4.C
// encode).
func Encode(payloadJSON string, schema *RecordSchema) ([]byte, error) {
	var generic interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &generic); err != nil {
		return nil, pipeline.New(pipeline.KindEncodeError, err)
	}
	native, err := lowerFromLenient(schema.Root, generic)
	if err != nil {
		return nil, err
	}
	buf, err := schema.Avro.BinaryFromNative(nil, native)
	if err != nil {
		return nil, pipeline.New(pipeline.KindEncodeError, err)
	}
	return buf, nil
}

// -----------------------------------------------------------------------
// native (goavro) -> lenient JSON
// -----------------------------------------------------------------------

func liftToLenient(t Type, v interface{}) interface{} {
	switch t.Kind {
	case KindNull:
		return nil
	case KindBoolean, KindString:
		return v
	case KindInt, KindLong:
		n, _ := toInt64(v)
		return n
	case KindFloat, KindDouble:
		f, _ := toFloat64(v)
		return f
	case KindBytes:
		b, _ := v.([]byte)
		return base64.StdEncoding.EncodeToString(b)
	case KindDecimal:
		rat, ok := v.(*big.Rat)
		if !ok {
			return nil
		}
		return rat.FloatString(t.Scale)
	case KindArray:
		items, _ := v.([]interface{})
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = liftToLenient(*t.Items, item)
		}
		return out
	case KindMap:
		m, _ := v.(map[string]interface{})
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[k] = liftToLenient(*t.Values, val)
		}
		return out
	case KindUnion:
		return liftUnion(t, v)
	case KindRecord:
		m, _ := v.(map[string]interface{})
		out := make(map[string]interface{}, len(t.Fields))
		for _, f := range t.Fields {
			out[f.Name] = liftToLenient(f.Type, m[f.Name])
		}
		return out
	default:
		return v
	}
}

// liftUnion strips goavro's map[string]interface{"<branchName>": value}
// union wrapping (or bare nil for the null branch), yielding a plain,
// tag-free value per spec §4.C.
func liftUnion(t Type, v interface{}) interface{} {
	if v == nil {
		return nil
	}
	wrapped, ok := v.(map[string]interface{})
	if !ok || len(wrapped) != 1 {
		return nil
	}
	for key, inner := range wrapped {
		for _, branch := range t.Branches {
			if branch.Kind == KindNull {
				continue
			}
			if avroUnionKey(branch) == key {
				return liftToLenient(branch, inner)
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------
// lenient JSON -> native (goavro)
// -----------------------------------------------------------------------

func lowerFromLenient(t Type, v interface{}) (interface{}, error) {
	switch t.Kind {
	case KindNull:
		if v != nil {
			return nil, pipeline.New(pipeline.KindTypeMismatch, fmt.Errorf("codec: expected null, got %T", v))
		}
		return nil, nil
	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, pipeline.New(pipeline.KindTypeMismatch, fmt.Errorf("codec: expected boolean, got %T", v))
		}
		return b, nil
	case KindInt:
		n, ok := toInt64(v)
		if !ok {
			return nil, pipeline.New(pipeline.KindTypeMismatch, fmt.Errorf("codec: expected integer, got %T", v))
		}
		return int32(n), nil
	case KindLong:
		n, ok := toInt64(v)
		if !ok {
			return nil, pipeline.New(pipeline.KindTypeMismatch, fmt.Errorf("codec: expected integer, got %T", v))
		}
		return n, nil
	case KindFloat:
		f, ok := toFloat64(v)
		if !ok {
			return nil, pipeline.New(pipeline.KindTypeMismatch, fmt.Errorf("codec: expected number, got %T", v))
		}
		return float32(f), nil
	case KindDouble:
		f, ok := toFloat64(v)
		if !ok {
			return nil, pipeline.New(pipeline.KindTypeMismatch, fmt.Errorf("codec: expected number, got %T", v))
		}
		return f, nil
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, pipeline.New(pipeline.KindTypeMismatch, fmt.Errorf("codec: expected string, got %T", v))
		}
		return s, nil
	case KindBytes:
		b, err := coerceBytes(v)
		if err != nil {
			return nil, pipeline.New(pipeline.KindBytesTypeMismatch, err)
		}
		return b, nil
	case KindDecimal:
		rat, err := coerceDecimalRat(v)
		if err != nil {
			return nil, pipeline.New(pipeline.KindDecimalTypeMismatch, err)
		}
		return rat, nil
	case KindArray:
		arr, ok := v.([]interface{})
		if !ok {
			return nil, pipeline.New(pipeline.KindExpectedList, fmt.Errorf("codec: expected JSON array, got %T", v))
		}
		out := make([]interface{}, len(arr))
		for i, item := range arr {
			lowered, err := lowerFromLenient(*t.Items, item)
			if err != nil {
				return nil, err
			}
			out[i] = lowered
		}
		return out, nil
	case KindMap:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, pipeline.New(pipeline.KindExpectedMap, fmt.Errorf("codec: expected JSON object, got %T", v))
		}
		out := make(map[string]interface{}, len(obj))
		for k, val := range obj {
			lowered, err := lowerFromLenient(*t.Values, val)
			if err != nil {
				return nil, err
			}
			out[k] = lowered
		}
		return out, nil
	case KindUnion:
		return lowerUnion(t, v)
	case KindRecord:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, pipeline.New(pipeline.KindExpectedMap, fmt.Errorf("codec: expected JSON object for record %q, got %T", t.Name, v))
		}
		out := make(map[string]interface{}, len(t.Fields))
		for _, f := range t.Fields {
			fv, present := obj[f.Name]
			if !present {
				fv = nil
			}
			lowered, err := lowerFromLenient(f.Type, fv)
			if err != nil {
				return nil, err
			}
			out[f.Name] = lowered
		}
		return out, nil
	default:
		return nil, pipeline.New(pipeline.KindUnsupportedRecordType, fmt.Errorf("codec: unsupported schema kind %q", t.Kind))
	}
}

// lowerUnion implements spec §4.C's union resolution: a JSON null selects
// the null branch; otherwise the first shape-matching branch is chosen and
// wrapped in goavro's map[string]interface{"<branchName>": value} form.
func lowerUnion(t Type, v interface{}) (interface{}, error) {
	if v == nil {
		for _, b := range t.Branches {
			if b.Kind == KindNull {
				return nil, nil
			}
		}
		return nil, pipeline.New(pipeline.KindNullNotAllowedForUnion, fmt.Errorf("codec: null value but union has no null branch"))
	}
	for _, b := range t.Branches {
		if b.Kind == KindNull {
			continue
		}
		if shapeMatches(b, v) {
			lowered, err := lowerFromLenient(b, v)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{avroUnionKey(b): lowered}, nil
		}
	}
	return nil, pipeline.New(pipeline.KindNoSuitableUnionBranch, fmt.Errorf("codec: no union branch matches value of type %T", v))
}

// avroUnionKey mirrors goavro's convention for naming a union branch in its
// native value representation: the underlying Avro type name, with logical
// types qualified as "<base>.<logicalType>" (e.g. "bytes.decimal").
func avroUnionKey(branch Type) string {
	if branch.Kind == KindDecimal {
		return "bytes.decimal"
	}
	if branch.Kind == KindRecord && branch.Name != "" {
		return branch.Name
	}
	return string(branch.Kind)
}

// shapeMatches reports whether v's JSON shape is compatible with branch's
// declared kind, used to pick a union branch.
func shapeMatches(branch Type, v interface{}) bool {
	switch branch.Kind {
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindInt, KindLong, KindFloat, KindDouble:
		_, ok := toFloat64(v)
		return ok
	case KindString:
		_, ok := v.(string)
		return ok
	case KindDecimal:
		_, err := coerceDecimalRat(v)
		return err == nil
	case KindBytes:
		_, err := coerceBytes(v)
		return err == nil
	case KindArray:
		_, ok := v.([]interface{})
		return ok
	case KindMap, KindRecord:
		_, ok := v.(map[string]interface{})
		return ok
	default:
		return false
	}
}

// -----------------------------------------------------------------------
// Primitive coercions
// -----------------------------------------------------------------------

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// coerceBytes accepts a string: base64 text is decoded, and any other
// string is taken as its raw bytes. Non-string values are rejected.
func coerceBytes(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("codec: bytes value must be a base64 string, got %T", v)
	}
	if base64Re.MatchString(s) {
		if b, err := base64.StdEncoding.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return []byte(s), nil
}

// coerceDecimalRat accepts a numeric literal or a decimal-text string and
// resolves it to the exact rational value goavro's decimal codec expects.
func coerceDecimalRat(v interface{}) (*big.Rat, error) {
	switch n := v.(type) {
	case float64:
		return new(big.Rat).SetFloat64(n), nil
	case json.Number:
		r, ok := new(big.Rat).SetString(n.String())
		if !ok {
			return nil, fmt.Errorf("codec: decimal value %q is not a valid number", n.String())
		}
		return r, nil
	case string:
		if !decimalNumericRe.MatchString(n) {
			return nil, fmt.Errorf("codec: decimal string %q is not a valid decimal literal", n)
		}
		r, ok := new(big.Rat).SetString(n)
		if !ok {
			return nil, fmt.Errorf("codec: decimal string %q is not a valid number", n)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("codec: decimal value must be numeric or a decimal string, got %T", v)
	}
}
