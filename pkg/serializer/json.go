package serializer

import (
	"encoding/json"
	"math/big"
	"regexp"
	"time"
)

// JSONOptions controls the optional __type tagging behaviour.
type JSONOptions struct {
	// TagBigInt encodes *big.Int/big.Int values as {"__type":"bigint","value":"..."}.
	// Defaults to true.
	TagBigInt bool

	// TagTimestamps encodes time.Time values as {"__type":"date","value":"..."};
	// on decode a date wrapper becomes its RFC 3339 string, which ends up as a
	// time.Time only where the target field is a time.Time. Defaults to true.
	TagTimestamps bool

	// disabled tracks explicit zero-value construction via NewJSON(JSONOptions{}),
	// which should still default both tags on.
	disabled bool
}

// JSONSerializer implements Serializer using encoding/json, with optional
// big-integer and timestamp tagging per the __type convention.
type JSONSerializer struct {
	opts JSONOptions
}

var isoTimestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z?$`)

// NewJSON constructs a JSON serializer with both bigint and timestamp tagging
// enabled. It sets TagBigInt and TagTimestamps to true whatever opts holds,
// so tagging cannot be turned off through NewJSON.
func NewJSON(opts JSONOptions) *JSONSerializer {
	if !opts.disabled {
		opts.TagBigInt = true
		opts.TagTimestamps = true
		opts.disabled = true
	}
	return &JSONSerializer{opts: opts}
}

func (s *JSONSerializer) Format() string { return "json" }

func (s *JSONSerializer) Encode(v any) ([]byte, error) {
	tagged := s.tagValue(v)
	data, err := json.Marshal(tagged)
	if err != nil {
		return nil, wrapEncodeError(err)
	}
	return data, nil
}

func (s *JSONSerializer) Decode(data []byte, v any) error {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return wrapDecodeError(err)
	}
	revived := s.reviveValue(generic)
	reencoded, err := json.Marshal(revived)
	if err != nil {
		return wrapDecodeError(err)
	}
	if err := json.Unmarshal(reencoded, v); err != nil {
		return wrapDecodeError(err)
	}
	return nil
}

// tagValue walks v, replacing big.Int/time.Time leaves with __type wrappers.
func (s *JSONSerializer) tagValue(v any) any {
	switch x := v.(type) {
	case *big.Int:
		if s.opts.TagBigInt && x != nil {
			return map[string]any{"__type": "bigint", "value": x.String()}
		}
		return x
	case big.Int:
		if s.opts.TagBigInt {
			return map[string]any{"__type": "bigint", "value": x.String()}
		}
		return x
	case time.Time:
		if s.opts.TagTimestamps {
			return map[string]any{"__type": "date", "value": x.UTC().Format(time.RFC3339Nano)}
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = s.tagValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = s.tagValue(val)
		}
		return out
	default:
		return v
	}
}

// reviveValue walks a decoded generic JSON tree, replacing each __type
// wrapper with its value string (decimal digits for bigint, RFC 3339 for
// date). Other strings, bare ISO-8601 ones included, are left unchanged.
func (s *JSONSerializer) reviveValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if typ, ok := x["__type"].(string); ok {
			if raw, hasValue := x["value"].(string); hasValue {
				switch typ {
				case "bigint":
					if s.opts.TagBigInt {
						if n, ok := new(big.Int).SetString(raw, 10); ok {
							return n.String()
						}
					}
				case "date":
					if s.opts.TagTimestamps {
						if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
							return t.Format(time.RFC3339Nano)
						}
					}
				}
			}
		}
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = s.reviveValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = s.reviveValue(val)
		}
		return out
	case string:
		if s.opts.TagTimestamps && isoTimestampPattern.MatchString(x) {
			return x
		}
		return x
	default:
		return v
	}
}
