// Package conditions turns loosely typed request mappings into validated
// schema.InputConditions.
package conditions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dshills/cropadvisor/internal/schema"
)

// Request field names.
const (
	FieldNitrogen    = "nitrogen"
	FieldPhosphorus  = "phosphorus"
	FieldPotassium   = "potassium"
	FieldPH          = "ph"
	FieldMoisture    = "moisture"
	FieldTemperature = "temperature"
	FieldRainfall    = "rainfall"
	FieldSeason      = "season"
	FieldBody        = "body"
)

// ValidationError records a single rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

type bounds struct {
	min, max float64
}

var (
	nonNegative = bounds{0, math.Inf(1)}
	anyFinite   = bounds{math.Inf(-1), math.Inf(1)}
)

// numericFields lists every numeric field with its accepted range.
var numericFields = []struct {
	name   string
	bounds bounds
	dst    func(*schema.InputConditions) **float64
}{
	{FieldNitrogen, nonNegative, func(c *schema.InputConditions) **float64 { return &c.Nitrogen }},
	{FieldPhosphorus, nonNegative, func(c *schema.InputConditions) **float64 { return &c.Phosphorus }},
	{FieldPotassium, nonNegative, func(c *schema.InputConditions) **float64 { return &c.Potassium }},
	{FieldPH, bounds{0, 14}, func(c *schema.InputConditions) **float64 { return &c.PH }},
	{FieldMoisture, bounds{0, 100}, func(c *schema.InputConditions) **float64 { return &c.Moisture }},
	{FieldTemperature, anyFinite, func(c *schema.InputConditions) **float64 { return &c.Temperature }},
	{FieldRainfall, nonNegative, func(c *schema.InputConditions) **float64 { return &c.Rainfall }},
}

// Parse validates raw and returns the input conditions it describes. Unknown
// keys are ignored. A nil, missing or empty-string value is absent.
// An unrecognised season, of any type, becomes schema.DefaultSeason.
func Parse(raw map[string]any) (schema.InputConditions, error) {
	in := schema.InputConditions{Season: schema.DefaultSeason}

	for _, f := range numericFields {
		v, err := number(f.name, raw[f.name])
		if err != nil {
			return schema.InputConditions{}, err
		}
		if v == nil {
			continue
		}
		if *v < f.bounds.min || *v > f.bounds.max {
			return schema.InputConditions{}, &ValidationError{Field: f.name, Message: outOfRange(f.bounds)}
		}
		*f.dst(&in) = v
	}

	if s, ok := raw[FieldSeason].(string); ok {
		in.Season = schema.ParseSeason(s)
	}
	return in, nil
}

// Check validates conditions built without Parse, such as by a library
// caller. Absent fields are accepted; present ones must be finite and within
// the bounds Parse enforces.
func Check(in schema.InputConditions) error {
	for _, f := range numericFields {
		v := *f.dst(&in)
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return &ValidationError{Field: f.name, Message: "must be finite"}
		}
		if *v < f.bounds.min || *v > f.bounds.max {
			return &ValidationError{Field: f.name, Message: outOfRange(f.bounds)}
		}
	}
	return nil
}

func outOfRange(b bounds) string {
	if math.IsInf(b.max, 1) {
		return fmt.Sprintf("must be >= %g", b.min)
	}
	return fmt.Sprintf("must be between %g and %g", b.min, b.max)
}

// number converts one raw value to a finite float.
func number(field string, v any) (*float64, error) {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil, &ValidationError{Field: field, Message: fmt.Sprintf("not a number: %q", t.String())}
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &ValidationError{Field: field, Message: fmt.Sprintf("not a number: %q", t)}
		}
		f = parsed
	default:
		return nil, &ValidationError{Field: field, Message: fmt.Sprintf("expected a number, got %T", v)}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &ValidationError{Field: field, Message: "must be finite"}
	}
	return &f, nil
}

// Decode reads one JSON object from r and parses it. An empty body is an
// empty request.
func Decode(r io.Reader) (schema.InputConditions, error) {
	objs, err := ReadObjects(r)
	if err != nil {
		return schema.InputConditions{}, err
	}
	switch len(objs) {
	case 0:
		return Parse(nil)
	case 1:
		return Parse(objs[0])
	default:
		return schema.InputConditions{}, &ValidationError{Field: FieldBody, Message: "expected a single JSON object"}
	}
}

// ReadObjects reads either one JSON object or an array of objects from r.
// Numbers are kept as json.Number so that Parse sees their exact text.
func ReadObjects(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "conditions: read body")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ValidationError{Field: FieldBody, Message: "malformed JSON: " + err.Error()}
	}
	if dec.More() {
		return nil, &ValidationError{Field: FieldBody, Message: "trailing data after JSON value"}
	}

	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for i, item := range t {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, &ValidationError{Field: fmt.Sprintf("%s[%d]", FieldBody, i), Message: "expected a JSON object"}
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return nil, &ValidationError{Field: FieldBody, Message: "expected a JSON object"}
	}
}
