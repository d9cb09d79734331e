package template

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSimpleVariable(t *testing.T) {
	e := New()
	result, err := e.Render("hello {{name}}", map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", result)
}

func TestRenderDotPath(t *testing.T) {
	e := New()
	ctx := map[string]any{"user": map[string]any{"name": "ada"}}
	result, err := e.Render("{{user.name}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada", result)
}

func TestRenderMissingVariableErrors(t *testing.T) {
	e := New()
	_, err := e.Render("{{missing}}", map[string]any{})
	assert.Error(t, err)
}

func TestRenderBestEffortLeavesPlaceholder(t *testing.T) {
	e := New(WithBestEffort(true))
	result, err := e.Render("{{missing}}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "{{missing}}", result)
}

func TestRenderEnvVariable(t *testing.T) {
	t.Setenv("MAGICTUNNEL_TEST_VAR", "secret-value")
	e := New()
	result, err := e.Render("token={{env.MAGICTUNNEL_TEST_VAR}}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "token=secret-value", result)
}

func TestRenderEnvVariableMissingErrors(t *testing.T) {
	os.Unsetenv("MAGICTUNNEL_DOES_NOT_EXIST")
	e := New()
	_, err := e.Render("{{env.MAGICTUNNEL_DOES_NOT_EXIST}}", map[string]any{})
	assert.Error(t, err)
}

func TestRenderTernaryTrueBranch(t *testing.T) {
	e := New()
	ctx := map[string]any{"verbose": true}
	result, err := e.Render("{{verbose ? \"-v\" : \"\"}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "-v", result)
}

func TestRenderTernaryFalseBranch(t *testing.T) {
	e := New()
	ctx := map[string]any{"verbose": false}
	result, err := e.Render("{{verbose ? \"-v\" : \"-q\"}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "-q", result)
}

func TestRenderTernaryWithVariableBranches(t *testing.T) {
	e := New()
	ctx := map[string]any{"useProd": true, "prodHost": "prod.example.com", "devHost": "dev.example.com"}
	result, err := e.Render("{{useProd ? prodHost : devHost}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "prod.example.com", result)
}

func TestRenderEachIteratesScalarList(t *testing.T) {
	e := New()
	ctx := map[string]any{"hosts": []any{"a.example.com", "b.example.com"}}
	result, err := e.Render("{{#each hosts}}{{this}},{{/each}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.example.com,b.example.com,", result)
}

func TestRenderEachIteratesObjectListWithFieldAccess(t *testing.T) {
	e := New()
	ctx := map[string]any{
		"servers": []any{
			map[string]any{"name": "alpha", "port": 8080},
			map[string]any{"name": "beta", "port": 8081},
		},
	}
	result, err := e.Render("{{#each servers}}{{this.name}}:{{this.port}} {{/each}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "alpha:8080 beta:8081 ", result)
}

func TestRenderEachExposesIndex(t *testing.T) {
	e := New()
	ctx := map[string]any{"items": []any{"x", "y"}}
	result, err := e.Render("{{#each items}}[{{@index}}]={{this}} {{/each}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "[0]=x [1]=y ", result)
}

func TestRenderMapRecursesIntoValues(t *testing.T) {
	e := New()
	ctx := map[string]any{"host": "example.com", "port": "443"}
	value := map[string]any{
		"url":     "https://{{host}}:{{port}}/path",
		"nested":  map[string]any{"inner": "{{host}}"},
		"literal": 42,
	}
	result, err := e.Render(value, ctx)
	require.NoError(t, err)
	rendered, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://example.com:443/path", rendered["url"])
	assert.Equal(t, map[string]any{"inner": "example.com"}, rendered["nested"])
	assert.Equal(t, 42, rendered["literal"])
}

func TestRenderSliceRecursesIntoElements(t *testing.T) {
	e := New()
	ctx := map[string]any{"name": "widget"}
	value := []any{"--name={{name}}", "--verbose"}
	result, err := e.Render(value, ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"--name=widget", "--verbose"}, result)
}

func TestExtractVariablesFindsAllPathsExcludingEnv(t *testing.T) {
	e := New()
	value := map[string]any{
		"a": "{{foo}}",
		"b": []any{"{{bar.baz}}", "{{env.SECRET}}"},
	}
	vars := e.ExtractVariables(value)
	assert.ElementsMatch(t, []string{"foo", "bar.baz"}, vars)
}

func TestValidateContextReportsMissingRoots(t *testing.T) {
	e := New()
	value := "{{foo}} {{bar.baz}}"
	err := e.ValidateContext(value, map[string]any{"foo": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bar.baz")
}

func TestRenderGoTemplateSupportsComparisons(t *testing.T) {
	e := New()
	ctx := map[string]any{"env": "production"}
	result, err := e.RenderGoTemplate(`{{ eq .env "production" }}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestRenderGoTemplateSupportsSprigFunctions(t *testing.T) {
	e := New()
	ctx := map[string]any{"name": "widget"}
	result, err := e.RenderGoTemplate(`{{ .name | upper }}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "WIDGET", result)
}

func TestRenderIsPureForSameInputs(t *testing.T) {
	e := New()
	ctx := map[string]any{"host": "example.com", "hosts": []any{"a", "b"}}
	value := map[string]any{"url": "https://{{host}}", "list": "{{#each hosts}}{{this}}-{{/each}}"}

	first, err := e.Render(value, ctx)
	require.NoError(t, err)
	second, err := e.Render(value, ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
