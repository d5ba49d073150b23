// Package sanitize recovers structured crop entries from the free-form text
// returned by the advisory service. Nothing here returns an error or panics:
// unusable input is reported as absent and unusable fields as empty.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/dshills/cropadvisor/internal/schema"
)

// ListSeparator joins array-valued narrative fields into one string.
const ListSeparator = "; "

// wrapperKeys are the object keys under which an entry array may be nested.
var wrapperKeys = []string{"crops", "recommendations", "results"}

// fenceMarkerRe matches a code-fence marker (``` or ~~~) with an optional
// language tag, anywhere in the text.
var fenceMarkerRe = regexp.MustCompile("(?:`{3}|~{3})[A-Za-z0-9_-]*")

// langTagRe matches a bare language tag left at the start of the text once
// fences are gone.
var langTagRe = regexp.MustCompile(`(?i)^json\b\s*`)

// invalidJSONEscapeRe matches a backslash followed by any character that is not
// a valid JSON string escape character ("\/bfnrtu). Models sometimes emit
// regex-like text (\d, \s) or Windows paths unescaped inside JSON strings.
var invalidJSONEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

// fixInvalidJSONEscapes replaces invalid JSON escape sequences in s with their
// correctly double-escaped equivalents.
func fixInvalidJSONEscapes(s string) string {
	return invalidJSONEscapeRe.ReplaceAllString(s, `\\$1`)
}

// Extract locates a JSON array or object in raw. Each stage runs only if the
// previous one failed:
//  1. the whole text, trimmed, is JSON;
//  2. the text with wrappers removed (fence markers, BOM, null bytes, a
//     leading json tag) is JSON;
//  3. the span from the first '[' or '{' to the last matching closer is JSON.
//
// Every stage also retries once with invalid escapes repaired.
func Extract(raw string) (gjson.Result, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return gjson.Result{}, false
	}
	if v, ok := parse(text); ok {
		return v, true
	}

	text = stripWrappers(text)
	if v, ok := parse(text); ok {
		return v, true
	}

	for _, span := range spans(text) {
		if v, ok := parse(span); ok {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// parse accepts s only if it is a JSON array or object.
func parse(s string) (gjson.Result, bool) {
	for _, candidate := range []string{s, fixInvalidJSONEscapes(s)} {
		if !gjson.Valid(candidate) {
			continue
		}
		v := gjson.Parse(candidate)
		if v.IsArray() || v.IsObject() {
			return v, true
		}
	}
	return gjson.Result{}, false
}

func stripWrappers(s string) string {
	s = strings.ReplaceAll(s, "\ufeff", "")
	s = strings.ReplaceAll(s, "\x00", "")
	s = fenceMarkerRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = langTagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// spans returns the candidate JSON slices of s, earliest opener first.
func spans(s string) []string {
	type span struct {
		start int
		text  string
	}
	var found []span
	for _, p := range [][2]byte{{'[', ']'}, {'{', '}'}} {
		start := strings.IndexByte(s, p[0])
		end := strings.LastIndexByte(s, p[1])
		if start < 0 || end <= start {
			continue
		}
		found = append(found, span{start: start, text: s[start : end+1]})
	}
	if len(found) == 2 && found[1].start < found[0].start {
		found[0], found[1] = found[1], found[0]
	}
	out := make([]string, len(found))
	for i, sp := range found {
		out[i] = sp.text
	}
	return out
}

// Entries converts an extracted value into advisory entries. A top-level
// array, an object wrapping an array under one of the wrapper keys, and a
// single entry object are all accepted. Items that are not objects are kept
// as empty entries so positions stay aligned with the prompt's order.
func Entries(v gjson.Result) []schema.AdvisoryEntry {
	items := entryItems(v)
	out := make([]schema.AdvisoryEntry, 0, len(items))
	for _, item := range items {
		out = append(out, entry(item))
	}
	return out
}

func entryItems(v gjson.Result) []gjson.Result {
	if v.IsArray() {
		return v.Array()
	}
	if !v.IsObject() {
		return nil
	}
	for _, key := range wrapperKeys {
		if inner := v.Get(key); inner.IsArray() {
			return inner.Array()
		}
	}
	return []gjson.Result{v}
}

func entry(item gjson.Result) schema.AdvisoryEntry {
	if !item.IsObject() {
		return schema.AdvisoryEntry{}
	}
	e := schema.AdvisoryEntry{
		Name:   text(item.Get("name")),
		Reason: text(item.Get("reason")),
		Pros:   list(item.Get("pros")),
		Cons:   list(item.Get("cons")),
		Growth: growth(item),
	}
	if e.Name == "" {
		e.Name = text(item.Get("crop"))
	}
	if th := item.Get("thresholds"); th.IsObject() {
		e.Thresholds = make(map[string]string)
		th.ForEach(func(k, v gjson.Result) bool {
			e.Thresholds[k.String()] = strings.TrimSpace(v.String())
			return true
		})
	}
	e.Confidence = confidence(item.Get("confidence"))
	return e
}

// text returns a trimmed non-empty string value, or "".
func text(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

// list accepts a string or an array of strings. Non-string array items are
// skipped; an array with no usable items is empty.
func list(v gjson.Result) string {
	if v.Type == gjson.String {
		return strings.TrimSpace(v.Str)
	}
	if !v.IsArray() {
		return ""
	}
	var parts []string
	for _, item := range v.Array() {
		if s := text(item); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ListSeparator)
}

// growth accepts "growth" or "Growth" as a string, an array of strings, or an
// object of stage names to descriptions rendered as "stage: text".
func growth(item gjson.Result) string {
	v := item.Get("growth")
	if !v.Exists() {
		v = item.Get("Growth")
	}
	if s := list(v); s != "" {
		return s
	}
	if !v.IsObject() {
		return ""
	}
	var parts []string
	v.ForEach(func(k, val gjson.Result) bool {
		var s string
		switch val.Type {
		case gjson.String:
			s = strings.TrimSpace(val.Str)
		case gjson.Number:
			s = val.Raw
		}
		if s != "" {
			parts = append(parts, k.String()+": "+s)
		}
		return true
	})
	return strings.Join(parts, ListSeparator)
}

// confidence accepts low/medium/high case-insensitively, including a label
// followed by commentary such as "high (complete inputs)".
func confidence(v gjson.Result) schema.Confidence {
	s := text(v)
	if s == "" {
		return ""
	}
	if c, ok := schema.ParseConfidence(s); ok {
		return c
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	c, _ := schema.ParseConfidence(fields[0])
	return c
}
