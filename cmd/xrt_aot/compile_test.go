package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/xrt/backends/hostgo"
	"github.com/gomlx/xrt/targets"
	"github.com/gomlx/xrt/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProgramFile(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func TestParseProgramFile(t *testing.T) {
	path := writeProgramFile(t, "double.xsp", `
# Doubles its input.
input Float32 4
output Float32 4

arg 0
arg 0
add
`)
	prog, err := parseProgramFile(path)
	require.NoError(t, err)
	assert.Equal(t, hostgo.ProgramType, prog.Type)
	assert.Equal(t, "double", prog.Name)
	require.Len(t, prog.InputSpecs, 1)
	assert.True(t, shapes.Make(dtypes.Float32, 4).Equal(prog.InputSpecs[0].Shape))
	require.Len(t, prog.OutputSpecs, 1)
	assert.True(t, shapes.Make(dtypes.Float32, 4).Equal(prog.OutputSpecs[0].Shape))

	// Directive lines are blanked in place: the program text keeps the
	// file's line numbers.
	lines := strings.Split(string(prog.Text), "\n")
	assert.Equal(t, "# Doubles its input.", lines[1])
	assert.Equal(t, "", lines[2])
	assert.Equal(t, "", lines[3])
	assert.Equal(t, "arg 0", lines[5])
	assert.Equal(t, "add", lines[7])
}

func TestParseProgramFileDirectives(t *testing.T) {
	path := writeProgramFile(t, "prog.xsp", "name scale\ntype mhlo\ninput Int32\noutput Int32\nneg\n")
	prog, err := parseProgramFile(path)
	require.NoError(t, err)
	assert.Equal(t, "scale", prog.Name)
	assert.Equal(t, "mhlo", prog.Type)
	require.Len(t, prog.InputSpecs, 1)
	assert.True(t, prog.InputSpecs[0].Shape.IsScalar())
}

func TestParseProgramFileRejects(t *testing.T) {
	for name, text := range map[string]string{
		"unknown dtype":      "input Floaty 2\nadd\n",
		"bad dimension":      "input Float32 two\nadd\n",
		"zero dimension":     "input Float32 0\nadd\n",
		"missing spec":       "input\nadd\n",
		"name without value": "name\nadd\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := writeProgramFile(t, "bad.xsp", text)
			_, err := parseProgramFile(path)
			require.Error(t, err)
			assert.ErrorContains(t, err, "line 1")
		})
	}

	_, err := parseProgramFile(filepath.Join(t.TempDir(), "missing.xsp"))
	require.Error(t, err)
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, filepath.Join("programs", "scale.xrte"),
		artifactPath(filepath.Join("programs", "scale.xsp")))

	oldDir := *flagOutputDir
	defer func() { *flagOutputDir = oldDir }()
	*flagOutputDir = "out"
	assert.Equal(t, filepath.Join("out", "scale.xrte"),
		artifactPath(filepath.Join("programs", "scale.xsp")))
}

func TestSupportedLists(t *testing.T) {
	caps := targets.Capabilities{
		Operations: map[string]bool{"add": true, "neg": true, "div": false},
		DTypes:     map[dtypes.DType]bool{dtypes.Float32: true, dtypes.Int32: true},
	}
	assert.Equal(t, []string{"add", "neg"}, supportedOps(caps))
	assert.Equal(t, []string{"Int32", "Float32"}, supportedDTypes(caps))
}
