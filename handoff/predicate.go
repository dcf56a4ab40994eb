package handoff

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/hupe1980/groupchat/core"
)

// Expr is a boolean expression over context variables. The set of
// expressions is closed: KeyTrue, KeyEquals, All and Not.
type Expr interface {
	// Eval evaluates the expression. Referencing an undeclared key is an error.
	Eval(vars *core.ContextVariables) (bool, error)
	String() string

	collectKeys(dst []string) []string
	validate(schema *core.Schema) error
}

type keyTrue struct{ key string }

// KeyTrue is true when the boolean variable key is true.
func KeyTrue(key string) Expr { return keyTrue{key: key} }

func (e keyTrue) Eval(vars *core.ContextVariables) (bool, error) {
	return vars.GetBool(e.key)
}

func (e keyTrue) String() string { return e.key }

func (e keyTrue) collectKeys(dst []string) []string { return append(dst, e.key) }

func (e keyTrue) validate(schema *core.Schema) error {
	d, ok := schema.Lookup(e.key)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUndeclaredKey, e.key)
	}
	if d.Kind != core.KindBool {
		return fmt.Errorf("%w: %s is %s, not bool", core.ErrKindMismatch, e.key, d.Kind)
	}
	return nil
}

type keyEquals struct {
	key   string
	value any
}

// KeyEquals is true when variable key equals value.
func KeyEquals(key string, value any) Expr { return keyEquals{key: key, value: value} }

func (e keyEquals) Eval(vars *core.ContextVariables) (bool, error) {
	v, err := vars.Get(e.key)
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(v, e.value), nil
}

func (e keyEquals) String() string { return fmt.Sprintf("%s == %v", e.key, e.value) }

func (e keyEquals) collectKeys(dst []string) []string { return append(dst, e.key) }

func (e keyEquals) validate(schema *core.Schema) error {
	d, ok := schema.Lookup(e.key)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUndeclaredKey, e.key)
	}
	if !d.Accepts(e.value) {
		return fmt.Errorf("%w: %s is %s, compared with %T", core.ErrKindMismatch, e.key, d.Kind, e.value)
	}
	return nil
}

type all struct{ exprs []Expr }

// All is the conjunction of exprs. An empty conjunction is true.
func All(exprs ...Expr) Expr { return all{exprs: append([]Expr(nil), exprs...)} }

func (e all) Eval(vars *core.ContextVariables) (bool, error) {
	for _, x := range e.exprs {
		ok, err := x.Eval(vars)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (e all) String() string {
	parts := make([]string, len(e.exprs))
	for i, x := range e.exprs {
		parts[i] = x.String()
	}
	return "(" + strings.Join(parts, " and ") + ")"
}

func (e all) collectKeys(dst []string) []string {
	for _, x := range e.exprs {
		dst = x.collectKeys(dst)
	}
	return dst
}

func (e all) validate(schema *core.Schema) error {
	for _, x := range e.exprs {
		if x == nil {
			return fmt.Errorf("nil expression in conjunction")
		}
		if err := x.validate(schema); err != nil {
			return err
		}
	}
	return nil
}

type not struct{ expr Expr }

// Not negates expr.
func Not(expr Expr) Expr { return not{expr: expr} }

func (e not) Eval(vars *core.ContextVariables) (bool, error) {
	ok, err := e.expr.Eval(vars)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (e not) String() string { return "not " + e.expr.String() }

func (e not) collectKeys(dst []string) []string { return e.expr.collectKeys(dst) }

func (e not) validate(schema *core.Schema) error {
	if e.expr == nil {
		return fmt.Errorf("nil expression in negation")
	}
	return e.expr.validate(schema)
}

// Keys returns the context keys referenced by expr, in order of appearance.
func Keys(expr Expr) []string {
	if expr == nil {
		return nil
	}
	return expr.collectKeys(nil)
}

// Validate checks that every key referenced by expr is declared in schema
// with a compatible kind.
func Validate(expr Expr, schema *core.Schema) error {
	if expr == nil {
		return nil
	}
	return expr.validate(schema)
}
