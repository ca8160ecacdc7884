// Package template renders endpoint rules: JSON documents with {{ body.path }} placeholders.
//
// Only field-path substitution is supported. There are no loops, conditionals or function
// calls, which keeps user-authored rules from doing anything but reading the request body.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// RootBody is the only placeholder root.
const RootBody = "body"

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Context is the data a rule is rendered against.
type Context struct {
	Body any
}

// TemplateError reports a malformed rule or a placeholder that resolves to nothing.
type TemplateError struct {
	Msg string
}

func (e *TemplateError) Error() string      { return e.Msg }
func (e *TemplateError) ErrorClass() string { return "template" }

// TemplateJSONError reports a rendered rule that is not a valid JSON object.
type TemplateJSONError struct {
	Err error
}

func (e *TemplateJSONError) Error() string      { return e.Err.Error() }
func (e *TemplateJSONError) Unwrap() error      { return e.Err }
func (e *TemplateJSONError) ErrorClass() string { return "template_json" }

// segment is one step of a placeholder path: a field name followed by zero or more indices.
type segment struct {
	name    string
	indices []int
}

// placeholder is a parsed {{ ... }} occurrence.
type placeholder struct {
	raw    string
	path   []segment
	search func(any) (any, error)
}

// part is either literal text or a placeholder.
type part struct {
	text string
	ph   *placeholder
}

// Render substitutes every placeholder in rule with the value found in ctx.Body.
// Strings are inserted verbatim, so a value containing a quote yields invalid JSON that
// Prepare reports as *TemplateJSONError. Other values are inserted as compact JSON.
func Render(rule string, ctx Context) (string, error) {
	parts, err := parse(rule)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(rule))
	for _, p := range parts {
		if p.ph == nil {
			b.WriteString(p.text)
			continue
		}
		v, evalErr := p.ph.eval(ctx.Body)
		if evalErr != nil {
			return "", evalErr
		}
		if writeErr := writeValue(&b, v); writeErr != nil {
			return "", &TemplateError{Msg: fmt.Sprintf("placeholder %q: %v", p.ph.raw, writeErr)}
		}
	}
	return b.String(), nil
}

// Prepare renders rule and parses the result into the message object handed to providers.
func Prepare(rule string, body any) (map[string]any, error) {
	rendered, err := Render(rule, Context{Body: body})
	if err != nil {
		return nil, err
	}

	var msg map[string]any
	if jsonErr := json.Unmarshal([]byte(rendered), &msg); jsonErr != nil {
		return nil, &TemplateJSONError{Err: jsonErr}
	}
	if msg == nil {
		return nil, &TemplateJSONError{Err: errors.New("rendered message must be a JSON object")}
	}
	return msg, nil
}

// Validate checks rule syntax without rendering it.
func Validate(rule string) error {
	_, err := parse(rule)
	return err
}

func parse(rule string) ([]part, error) {
	var parts []part
	rest := rule
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			if rest != "" {
				parts = append(parts, part{text: rest})
			}
			return parts, nil
		}
		if start > 0 {
			parts = append(parts, part{text: rest[:start]})
		}
		rest = rest[start+len(openDelim):]

		end := strings.Index(rest, closeDelim)
		if end < 0 {
			return nil, &TemplateError{Msg: "unterminated placeholder: missing " + closeDelim}
		}
		ph, err := parsePlaceholder(rest[:end])
		if err != nil {
			return nil, err
		}
		parts = append(parts, part{ph: ph})
		rest = rest[end+len(closeDelim):]
	}
}

func parsePlaceholder(inner string) (*placeholder, error) {
	raw := strings.TrimSpace(inner)
	if raw == "" {
		return nil, &TemplateError{Msg: "empty placeholder"}
	}
	if strings.Contains(raw, openDelim) {
		return nil, &TemplateError{Msg: fmt.Sprintf("nested placeholder in %q", raw)}
	}

	path, err := parsePath(raw)
	if err != nil {
		return nil, err
	}
	if path[0].name != RootBody {
		return nil, &TemplateError{Msg: fmt.Sprintf("unknown root %q in %q: paths must start with %s", path[0].name, raw, RootBody)}
	}

	query, err := jmespath.Compile(expression(path[1:], path[0].indices))
	if err != nil {
		return nil, &TemplateError{Msg: fmt.Sprintf("invalid path %q: %v", raw, err)}
	}
	return &placeholder{raw: raw, path: path, search: query.Search}, nil
}

// parsePath splits "a.b[0].c" into segments.
func parsePath(raw string) ([]segment, error) {
	fields := strings.Split(raw, ".")
	path := make([]segment, 0, len(fields))
	for _, f := range fields {
		seg, err := parseSegment(f)
		if err != nil {
			return nil, &TemplateError{Msg: fmt.Sprintf("invalid path %q: %v", raw, err)}
		}
		path = append(path, seg)
	}
	return path, nil
}

func parseSegment(f string) (segment, error) {
	name := f
	var indices []int
	if i := strings.IndexByte(f, '['); i >= 0 {
		name = f[:i]
		idx, err := parseIndices(f[i:])
		if err != nil {
			return segment{}, err
		}
		indices = idx
	}
	if name == "" {
		return segment{}, errors.New("empty field name")
	}
	if strings.ContainsAny(name, " \t\r\n]\"") {
		return segment{}, fmt.Errorf("invalid field name %q", name)
	}
	return segment{name: name, indices: indices}, nil
}

func parseIndices(s string) ([]int, error) {
	var out []int
	for s != "" {
		if s[0] != '[' {
			return nil, fmt.Errorf("unexpected %q after index", s)
		}
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, errors.New("unterminated index")
		}
		n, err := strconv.Atoi(s[1:end])
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", s[1:end])
		}
		out = append(out, n)
		s = s[end+1:]
	}
	return out, nil
}

// expression builds a JMESPath expression with quoted identifiers so field names
// such as "user-id" or "2fa" are taken literally.
func expression(fields []segment, rootIndices []int) string {
	var b strings.Builder
	b.WriteString("@")
	writeIndices(&b, rootIndices)
	for _, seg := range fields {
		b.WriteByte('.')
		quoted, _ := json.Marshal(seg.name)
		b.Write(quoted)
		writeIndices(&b, seg.indices)
	}
	return b.String()
}

func writeIndices(b *strings.Builder, indices []int) {
	for _, i := range indices {
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(i))
		b.WriteByte(']')
	}
}

func (p *placeholder) eval(body any) (any, error) {
	v, err := p.search(body)
	if err != nil {
		return nil, &TemplateError{Msg: fmt.Sprintf("evaluate %q: %v", p.raw, err)}
	}
	if v == nil {
		return nil, &TemplateError{Msg: fmt.Sprintf("field %q not found", p.raw)}
	}
	return v, nil
}

func writeValue(b *strings.Builder, v any) error {
	if s, ok := v.(string); ok {
		b.WriteString(s)
		return nil
	}
	enc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.Write(enc)
	return nil
}
