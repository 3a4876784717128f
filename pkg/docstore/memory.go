package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. Documents round-trip through JSON, so
// field names in filters and updates follow json tags.
type Memory struct {
	mu    sync.Mutex
	data  map[string]map[string]map[string]any
	fault func(op, collection string) error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]map[string]any)}
}

// SetFault makes every call for which fn returns non-nil fail with that error.
func (m *Memory) SetFault(fn func(op, collection string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

func (m *Memory) check(op, collection string) error {
	if m.fault == nil {
		return nil
	}
	return m.fault(op, collection)
}

func (m *Memory) Get(ctx context.Context, collection, key string, into any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("get", collection); err != nil {
		return err
	}
	doc, ok := m.data[collection][key]
	if !ok {
		return ErrNotFound
	}
	return remarshal(doc, into)
}

func (m *Memory) Set(ctx context.Context, collection, key string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("set", collection); err != nil {
		return err
	}
	var fields map[string]any
	if err := remarshal(doc, &fields); err != nil {
		return err
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	m.data[collection][key] = fields
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, key string, updates []Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("update", collection); err != nil {
		return err
	}
	doc, ok := m.data[collection][key]
	if !ok {
		return ErrNotFound
	}
	for _, u := range updates {
		parts := strings.Split(u.Path, ".")
		parent := doc
		for _, p := range parts[:len(parts)-1] {
			next, ok := parent[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				parent[p] = next
			}
			parent = next
		}
		leaf := parts[len(parts)-1]
		if inc, ok := u.Value.(Increment); ok {
			cur, _ := parent[leaf].(float64)
			parent[leaf] = cur + float64(inc)
			continue
		}
		var v any
		if err := remarshal(u.Value, &v); err != nil {
			return err
		}
		parent[leaf] = v
	}
	return nil
}

func (m *Memory) BatchDelete(ctx context.Context, refs []Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range refs {
		if err := m.check("delete", r.Collection); err != nil {
			return err
		}
		delete(m.data[r.Collection], r.Key)
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, collection string, filters ...Filter) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("query", collection); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.data[collection]))
	for k := range m.data[collection] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Doc
	for _, k := range keys {
		doc := m.data[collection][k]
		match := true
		for _, f := range filters {
			ok, err := matches(doc[f.Field], f)
			if err != nil {
				return nil, err
			}
			if !ok {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, NewDoc(k, func(v any) error { return json.Unmarshal(raw, v) }))
	}
	return out, nil
}

// Len returns the number of documents in collection.
func (m *Memory) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[collection])
}

func remarshal(from, to any) error {
	raw, err := json.Marshal(from)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, to); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func matches(stored any, f Filter) (bool, error) {
	var cmp int
	switch want := f.Value.(type) {
	case time.Time:
		s, ok := stored.(string)
		if !ok {
			return false, nil
		}
		got, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return false, nil
		}
		cmp = got.Compare(want)
	case string:
		s, ok := stored.(string)
		if !ok {
			return false, nil
		}
		cmp = strings.Compare(s, want)
	case bool:
		b, ok := stored.(bool)
		if !ok || f.Op != "==" {
			return false, nil
		}
		return b == want, nil
	case int:
		return compareFloat(stored, float64(want), f.Op)
	case int64:
		return compareFloat(stored, float64(want), f.Op)
	case float64:
		return compareFloat(stored, want, f.Op)
	default:
		return false, fmt.Errorf("unsupported filter value %T", f.Value)
	}
	return applyOp(cmp, f.Op)
}

func compareFloat(stored any, want float64, op string) (bool, error) {
	got, ok := stored.(float64)
	if !ok {
		return false, nil
	}
	switch {
	case got < want:
		return applyOp(-1, op)
	case got > want:
		return applyOp(1, op)
	}
	return applyOp(0, op)
}

func applyOp(cmp int, op string) (bool, error) {
	switch op {
	case "==":
		return cmp == 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("unsupported filter op %q", op)
}
