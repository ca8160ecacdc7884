package template

import "strings"

// step is one field or index access in a flattened placeholder path.
type step struct {
	field string
	index int
	isIdx bool
}

// ExampleBody builds a request body that satisfies every placeholder in rule.
// Leaves hold the placeholder path as a string, e.g. {{body.user.name}} yields
// {"user":{"name":"user.name"}}. A rule without placeholders yields an empty object.
func ExampleBody(rule string) (any, error) {
	parts, err := parse(rule)
	if err != nil {
		return nil, err
	}

	var root any
	for _, p := range parts {
		if p.ph == nil {
			continue
		}
		steps := flatten(p.ph.path)
		leaf := strings.TrimPrefix(strings.TrimPrefix(p.ph.raw, RootBody), ".")
		if leaf == "" {
			leaf = "example"
		}
		root = place(root, steps, leaf)
	}
	if root == nil {
		root = map[string]any{}
	}
	return root, nil
}

func flatten(path []segment) []step {
	var steps []step
	for i, seg := range path {
		if i > 0 {
			steps = append(steps, step{field: seg.name})
		}
		for _, idx := range seg.indices {
			steps = append(steps, step{index: idx, isIdx: true})
		}
	}
	return steps
}

// place writes leaf at steps below node, creating containers as needed.
// An existing container is never replaced by a leaf.
func place(node any, steps []step, leaf string) any {
	if len(steps) == 0 {
		if node != nil {
			return node
		}
		return leaf
	}

	s := steps[0]
	if !s.isIdx {
		obj, ok := node.(map[string]any)
		if !ok {
			obj = map[string]any{}
		}
		obj[s.field] = place(obj[s.field], steps[1:], leaf)
		return obj
	}

	arr, _ := node.([]any)
	pos := s.index
	need := pos + 1
	if pos < 0 {
		need = -pos
	}
	for len(arr) < need {
		arr = append(arr, nil)
	}
	if pos < 0 {
		pos += len(arr)
	}
	arr[pos] = place(arr[pos], steps[1:], leaf)
	for i := range arr {
		if arr[i] == nil {
			arr[i] = leaf
		}
	}
	return arr
}
