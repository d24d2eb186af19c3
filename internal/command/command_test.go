// ABOUTME: Tests for command validation, the catalog, and markdown doc loading
// ABOUTME: Covers JSON-shape checks, catalog lookups, rendering, and goldmark parsing

package command

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"simple", New("get_actors_in_level", nil), nil},
		{"nested", New("create_actor", map[string]any{
			"name":     "X",
			"location": []any{0.0, 0.0, 100.0},
			"extra":    map[string]any{"tags": []string{"a", "b"}, "n": nil},
		}), nil},
		{"typed slice", New("create_actor", map[string]any{"location": []int{1, 2, 3}}), nil},
		{"empty name", New("", nil), ErrEmptyName},
		{"blank name", New("   ", nil), ErrEmptyName},
		{"func value", New("x", map[string]any{"f": func() {}}), ErrInvalidValue},
		{"struct value", New("x", map[string]any{"s": struct{ A int }{1}}), ErrInvalidValue},
		{"nan", New("x", map[string]any{"v": math.NaN()}), ErrInvalidValue},
		{"int keyed map", New("x", map[string]any{"m": map[int]string{1: "a"}}), ErrInvalidValue},
		{"deep invalid", New("x", map[string]any{"a": []any{map[string]any{"c": make(chan int)}}}), ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_NilParams(t *testing.T) {
	cmd := New("get_actors_in_level", nil)
	assert.NotNil(t, cmd.Parameters)
	assert.Empty(t, cmd.Parameters)
}

func TestCatalog_Check(t *testing.T) {
	cat := Builtin()

	assert.NoError(t, cat.Check(New("create_actor", map[string]any{"name": "S", "type": "SPHERE"})))
	assert.ErrorIs(t, cat.Check(New("explode_level", nil)), ErrUnknownCommand)
	assert.ErrorIs(t, cat.Check(New("create_actor", map[string]any{"colour": "red"})), ErrUnknownParameter)
	assert.ErrorIs(t, cat.Check(New("", nil)), ErrEmptyName)
}

func TestCatalog_RenderDeterministic(t *testing.T) {
	a := Builtin().Render()
	b := Builtin().Render()
	assert.Equal(t, a, b)
	assert.Contains(t, a, "`create_actor(name, type, location, rotation, scale)`")
	assert.Contains(t, a, "## Actor Management")
}

func TestCatalog_Names_Sorted(t *testing.T) {
	names := Builtin().Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestParseDocs_Headings(t *testing.T) {
	src := []byte(`<!-- filepath: Docs/Tools/actor_tools.md -->
# Unreal MCP Actor Tools

## Actor Management

### spawn_actor

Create a new actor in the current level.

**Parameters:**
- ` + "`name`" + ` (string) - The name to give the new actor
- ` + "`type`" + ` (string) - The type of actor to create

**Returns:**
- Actor details

### get_actors_in_level

Get a list of all actors in the current level.

**Parameters:**
- None
`)

	specs := ParseDocs(src, "Actor Tools")
	require.Len(t, specs, 2)

	assert.Equal(t, "spawn_actor", specs[0].Name)
	assert.Equal(t, "Actor Management", specs[0].Category)
	assert.Equal(t, "Create a new actor in the current level.", specs[0].Description)
	require.Len(t, specs[0].Params, 2)
	assert.Equal(t, "name", specs[0].Params[0].Name)
	assert.Equal(t, "The name to give the new actor", specs[0].Params[0].Description)
	assert.Equal(t, "type", specs[0].Params[1].Name)

	assert.Equal(t, "get_actors_in_level", specs[1].Name)
	assert.Empty(t, specs[1].Params)
}

func TestParseDocs_SignatureList(t *testing.T) {
	src := []byte("## Actor Management\n" +
		"- `get_actors_in_level()` - Get all actors in the current level\n" +
		"- `create_actor(name, type, location, rotation, scale)` - Create actors\n")

	specs := ParseDocs(src, "x")
	require.Len(t, specs, 2)
	assert.Equal(t, "create_actor", specs[1].Name)
	assert.Equal(t, "Create actors", specs[1].Description)
	assert.Equal(t, "create_actor(name, type, location, rotation, scale)", specs[1].Signature())
	assert.Equal(t, "Actor Management", specs[1].Category)
}

func TestLoad(t *testing.T) {
	t.Run("empty dir path uses builtin", func(t *testing.T) {
		cat, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Builtin().Len(), cat.Len())
	})

	t.Run("missing dir", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("no docs", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.ErrorIs(t, err, ErrNoDocs)
	})

	t.Run("docs extend builtin", func(t *testing.T) {
		dir := t.TempDir()
		doc := "### launch_fireworks\n\nLaunch fireworks.\n\n**Parameters:**\n- `count` (int) - how many\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "fx_tools.md"), []byte(doc), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

		cat, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, Builtin().Len()+1, cat.Len())

		spec, ok := cat.Lookup("launch_fireworks")
		require.True(t, ok)
		assert.Equal(t, "Fx Tools", spec.Category)
		assert.NoError(t, cat.Check(New("launch_fireworks", map[string]any{"count": 3})))
	})
}
