package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUndeclaredKey is returned when a key is not part of the schema.
	ErrUndeclaredKey = errors.New("undeclared context key")
	// ErrKindMismatch is returned when a value does not match the declared kind.
	ErrKindMismatch = errors.New("context value kind mismatch")
)

// Kind is the declared type of a context variable.
type Kind string

const (
	KindBool   Kind = "bool"
	KindString Kind = "string"
	KindMap    Kind = "map"
)

// Decl declares one context variable with its kind and initial value.
type Decl struct {
	Key     string
	Kind    Kind
	Default any
}

// Bool declares a boolean variable.
func Bool(key string, def bool) Decl { return Decl{Key: key, Kind: KindBool, Default: def} }

// String declares a string variable.
func String(key, def string) Decl { return Decl{Key: key, Kind: KindString, Default: def} }

// Map declares a nested mapping that starts empty.
func Map(key string) Decl { return Decl{Key: key, Kind: KindMap, Default: map[string]any{}} }

// Accepts reports whether v is a valid value for the declaration.
func (d Decl) Accepts(v any) bool {
	_, err := coerce(d.Kind, v)
	return err == nil
}

// Schema is the fixed, ordered set of context variables of a workflow.
type Schema struct {
	decls []Decl
	index map[string]int
}

// NewSchema builds a schema. Duplicate keys and defaults that do not match
// the declared kind are rejected.
func NewSchema(decls ...Decl) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(decls))}
	for _, d := range decls {
		if d.Key == "" {
			return nil, fmt.Errorf("context key must not be empty")
		}
		if _, dup := s.index[d.Key]; dup {
			return nil, fmt.Errorf("duplicate context key %q", d.Key)
		}
		v, err := coerce(d.Kind, d.Default)
		if err != nil {
			return nil, fmt.Errorf("default for %q: %w", d.Key, err)
		}
		d.Default = v
		s.index[d.Key] = len(s.decls)
		s.decls = append(s.decls, d)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Intended for package
// level workflow declarations.
func MustSchema(decls ...Decl) *Schema {
	s, err := NewSchema(decls...)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns the declaration of key.
func (s *Schema) Lookup(key string) (Decl, bool) {
	i, ok := s.index[key]
	if !ok {
		return Decl{}, false
	}
	return s.decls[i], true
}

// Keys returns the declared keys in declaration order.
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.decls))
	for i, d := range s.decls {
		keys[i] = d.Key
	}
	return keys
}

// ContextVariables is the shared, mutable context record of one session.
// It is safe for concurrent access.
type ContextVariables struct {
	schema *Schema
	mu     sync.RWMutex
	values map[string]any
}

// NewContextVariables initialises every declared key with its default.
func NewContextVariables(schema *Schema) *ContextVariables {
	cv := &ContextVariables{schema: schema, values: make(map[string]any, len(schema.decls))}
	for _, d := range schema.decls {
		cv.values[d.Key] = deepCopy(d.Default)
	}
	return cv
}

// Schema returns the schema the variables were created from.
func (cv *ContextVariables) Schema() *Schema { return cv.schema }

// Get returns the value of key.
func (cv *ContextVariables) Get(key string) (any, error) {
	if _, ok := cv.schema.Lookup(key); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndeclaredKey, key)
	}
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	return deepCopy(cv.values[key]), nil
}

// GetBool returns a boolean variable.
func (cv *ContextVariables) GetBool(key string) (bool, error) {
	v, err := cv.typed(key, KindBool)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// GetString returns a string variable.
func (cv *ContextVariables) GetString(key string) (string, error) {
	v, err := cv.typed(key, KindString)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GetMap returns a copy of a map variable.
func (cv *ContextVariables) GetMap(key string) (map[string]any, error) {
	v, err := cv.typed(key, KindMap)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func (cv *ContextVariables) typed(key string, kind Kind) (any, error) {
	d, ok := cv.schema.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndeclaredKey, key)
	}
	if d.Kind != kind {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrKindMismatch, key, d.Kind, kind)
	}
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	return deepCopy(cv.values[key]), nil
}

// Set writes a declared variable. The value must match the declared kind.
func (cv *ContextVariables) Set(key string, value any) error {
	d, ok := cv.schema.Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUndeclaredKey, key)
	}
	v, err := coerce(d.Kind, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	cv.mu.Lock()
	cv.values[key] = v
	cv.mu.Unlock()
	return nil
}

// SetMapEntry writes one entry of a map variable.
func (cv *ContextVariables) SetMapEntry(key, entry string, value any) error {
	d, ok := cv.schema.Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUndeclaredKey, key)
	}
	if d.Kind != KindMap {
		return fmt.Errorf("%w: %s is %s, not %s", ErrKindMismatch, key, d.Kind, KindMap)
	}
	cv.mu.Lock()
	defer cv.mu.Unlock()
	m, _ := cv.values[key].(map[string]any)
	if m == nil {
		m = map[string]any{}
		cv.values[key] = m
	}
	m[entry] = deepCopy(value)
	return nil
}

// Apply writes every entry of delta, stopping at the first error.
func (cv *ContextVariables) Apply(delta map[string]any) error {
	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := cv.Set(k, delta[k]); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a deep copy of all variables.
func (cv *ContextVariables) Snapshot() map[string]any {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	out := make(map[string]any, len(cv.values))
	for k, v := range cv.values {
		out[k] = deepCopy(v)
	}
	return out
}

// Validate checks that every declared key is present with its declared kind
// and that no undeclared key has been introduced.
func (cv *ContextVariables) Validate() error {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	for _, d := range cv.schema.decls {
		v, ok := cv.values[d.Key]
		if !ok {
			return fmt.Errorf("context key %q missing", d.Key)
		}
		if _, err := coerce(d.Kind, v); err != nil {
			return fmt.Errorf("context key %q: %w", d.Key, err)
		}
	}
	for k := range cv.values {
		if _, ok := cv.schema.Lookup(k); !ok {
			return fmt.Errorf("%w: %s", ErrUndeclaredKey, k)
		}
	}
	return nil
}

func coerce(kind Kind, v any) (any, error) {
	switch kind {
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindMap:
		switch m := v.(type) {
		case nil:
			return map[string]any{}, nil
		case map[string]any:
			return deepCopy(m), nil
		case map[string]string:
			out := make(map[string]any, len(m))
			for k, s := range m {
				out[k] = s
			}
			return out, nil
		}
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return nil, fmt.Errorf("%w: want %s, got %T", ErrKindMismatch, kind, v)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
