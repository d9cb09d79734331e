// Package template renders tool routing configuration against a call-time
// argument context: plain variable substitution, environment lookups,
// inline ternaries, and #each iteration over list-valued variables, plus a
// full Go-template escape hatch for anything the mini-language can't express.
package template

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

var (
	varPattern     = regexp.MustCompile(`\{\{\s*\.?([a-zA-Z_][a-zA-Z0-9_.-]*)\s*\}\}`)
	ternaryPattern = regexp.MustCompile(`\{\{\s*([^{}?]+?)\s*\?\s*([^{}:]+?)\s*:\s*([^{}]+?)\s*\}\}`)
	eachPattern    = regexp.MustCompile(`(?s)\{\{#each\s+([a-zA-Z_][a-zA-Z0-9_.-]*)\}\}(.*?)\{\{/each\}\}`)
	thisPattern    = regexp.MustCompile(`\{\{\s*this(?:\.([a-zA-Z_][a-zA-Z0-9_.-]*))?\s*\}\}`)
	indexPattern   = regexp.MustCompile(`\{\{\s*@index\s*\}\}`)
)

// Engine renders routing configuration values against an argument context.
type Engine struct {
	bestEffort bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithBestEffort makes unresolved variables pass through as the literal
// placeholder text instead of failing the render. Used for tools whose
// routing config mixes call-time args with values only known downstream.
func WithBestEffort(enabled bool) Option {
	return func(e *Engine) { e.bestEffort = enabled }
}

// New creates a template engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render walks value (string, map, or slice) and substitutes every
// template expression found in string leaves against context. Non-string
// scalar leaves are returned unchanged.
func (e *Engine) Render(value any, context map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return e.renderString(v, context)
	case map[string]any:
		return e.renderMap(v, context)
	case []any:
		return e.renderSlice(v, context)
	default:
		return value, nil
	}
}

func (e *Engine) renderMap(m map[string]any, context map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(m))
	for key, value := range m {
		rendered, err := e.Render(value, context)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		result[key] = rendered
	}
	return result, nil
}

func (e *Engine) renderSlice(s []any, context map[string]any) ([]any, error) {
	result := make([]any, len(s))
	for i, value := range s {
		rendered, err := e.Render(value, context)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		result[i] = rendered
	}
	return result, nil
}

func (e *Engine) renderString(s string, context map[string]any) (string, error) {
	s, err := e.expandEach(s, context)
	if err != nil {
		return "", err
	}
	s, err = e.expandTernaries(s, context)
	if err != nil {
		return "", err
	}
	return e.expandVars(s, context)
}

func (e *Engine) expandEach(s string, context map[string]any) (string, error) {
	var outerErr error
	result := eachPattern.ReplaceAllStringFunc(s, func(block string) string {
		m := eachPattern.FindStringSubmatch(block)
		listPath, body := m[1], m[2]

		items, err := e.resolvePath(listPath, context)
		if err != nil {
			outerErr = fmt.Errorf("each %q: %w", listPath, err)
			return block
		}
		list, ok := items.([]any)
		if !ok {
			outerErr = fmt.Errorf("each %q: not a list", listPath)
			return block
		}

		var buf strings.Builder
		for i, item := range list {
			rendered := indexPattern.ReplaceAllString(body, strconv.Itoa(i))
			rendered = thisPattern.ReplaceAllStringFunc(rendered, func(tok string) string {
				sub := thisPattern.FindStringSubmatch(tok)
				field := sub[1]
				if field == "" {
					return stringify(item)
				}
				if asMap, ok := item.(map[string]any); ok {
					if v, ok := asMap[field]; ok {
						return stringify(v)
					}
				}
				return ""
			})
			buf.WriteString(rendered)
		}
		return buf.String()
	})
	return result, outerErr
}

func (e *Engine) expandTernaries(s string, context map[string]any) (string, error) {
	var outerErr error
	result := ternaryPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := ternaryPattern.FindStringSubmatch(match)
		condExpr, whenTrue, whenFalse := strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3])

		cond, err := e.evalCondition(condExpr, context)
		if err != nil {
			outerErr = err
			return match
		}

		chosen := whenFalse
		if cond {
			chosen = whenTrue
		}
		value, err := e.literalOrPath(chosen, context)
		if err != nil {
			outerErr = err
			return match
		}
		return stringify(value)
	})
	return result, outerErr
}

// evalCondition resolves a bare variable path to its truthiness. It does
// not support comparison operators; use RenderGoTemplate for those.
func (e *Engine) evalCondition(expr string, context map[string]any) (bool, error) {
	value, err := e.resolvePath(expr, context)
	if err != nil {
		if e.bestEffort {
			return false, nil
		}
		return false, err
	}
	return truthy(value), nil
}

func (e *Engine) literalOrPath(expr string, context map[string]any) (any, error) {
	if unquoted, ok := unquote(expr); ok {
		return unquoted, nil
	}
	value, err := e.resolvePath(expr, context)
	if err != nil {
		if e.bestEffort {
			return "", nil
		}
		return nil, err
	}
	return value, nil
}

func (e *Engine) expandVars(s string, context map[string]any) (string, error) {
	var missing []string
	result := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := varPattern.FindStringSubmatch(match)
		path := m[1]

		value, err := e.resolvePath(path, context)
		if err != nil {
			missing = append(missing, path)
			if e.bestEffort {
				return match
			}
			return ""
		}
		return stringify(value)
	})

	if len(missing) > 0 && !e.bestEffort {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// resolvePath resolves a dot-notation path against context. The reserved
// root "env" reads from the process environment instead of context.
func (e *Engine) resolvePath(path string, context map[string]any) (any, error) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("empty template path")
	}

	if parts[0] == "env" {
		name := strings.Join(parts[1:], ".")
		if name == "" {
			return nil, fmt.Errorf("env reference missing variable name")
		}
		value, ok := os.LookupEnv(name)
		if !ok {
			return nil, fmt.Errorf("environment variable %q not set", name)
		}
		return value, nil
	}

	current, ok := context[parts[0]]
	if !ok {
		return nil, fmt.Errorf("variable %q not found in context", parts[0])
	}

	for i, part := range parts[1:] {
		var err error
		current, err = getProperty(current, part)
		if err != nil {
			return nil, fmt.Errorf("accessing %q at position %d of %q: %w", part, i+1, path, err)
		}
	}
	return current, nil
}

func getProperty(obj any, property string) (any, error) {
	m, ok := obj.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot access property %q on %T", property, obj)
	}
	value, ok := m[property]
	if !ok {
		return nil, fmt.Errorf("property %q not found", property)
	}
	return value, nil
}

// ExtractVariables returns every distinct context variable path referenced
// by value's string leaves, excluding env. references.
func (e *Engine) ExtractVariables(value any) []string {
	seen := map[string]struct{}{}
	e.extractVariables(value, seen)
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	return out
}

func (e *Engine) extractVariables(value any, seen map[string]struct{}) {
	switch v := value.(type) {
	case string:
		for _, match := range varPattern.FindAllStringSubmatch(v, -1) {
			if len(match) >= 2 && !strings.HasPrefix(match[1], "env.") {
				seen[match[1]] = struct{}{}
			}
		}
	case map[string]any:
		for _, item := range v {
			e.extractVariables(item, seen)
		}
	case []any:
		for _, item := range v {
			e.extractVariables(item, seen)
		}
	}
}

// ValidateContext reports the subset of ExtractVariables not present in context.
func (e *Engine) ValidateContext(value any, context map[string]any) error {
	var missing []string
	for _, name := range e.ExtractVariables(value) {
		root := strings.SplitN(name, ".", 2)[0]
		if _, ok := context[root]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RenderGoTemplate renders templateStr as a full Go text/template with Sprig
// functions, for expressions the mini-language can't express (comparisons,
// loops with computation, string transforms).
func (e *Engine) RenderGoTemplate(templateStr string, context map[string]any) (any, error) {
	tmpl, err := template.New("routing").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return nil, fmt.Errorf("template execution failed: %w", err)
	}

	switch buf.String() {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return buf.String(), nil
	}
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return "", false
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int, int32, int64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return strconv.FormatFloat(toFloat64(v), 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
