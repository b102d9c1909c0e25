package readfiles

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadVertices(t *testing.T) {
	{ // 2D with comments and blank lines, no trailing newline
		txt := "3   # number of vertices\n0.1 0.2\n\n0.3 0.4 # second\n0.5 0.6"
		X, err := ReadVertices(bufio.NewReader(strings.NewReader(txt)), 2)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, X)
	}
	{ // Truncated file
		_, err := ReadVertices(bufio.NewReader(strings.NewReader("2\n1 2 3\n")), 3)
		assert.Error(t, err)
	}
	{ // Too few coordinates
		_, err := ReadVertices(bufio.NewReader(strings.NewReader("1\n1 2\n")), 3)
		assert.Error(t, err)
	}
	{ // From a file
		fileName := filepath.Join(t.TempDir(), "markers.vertex")
		require.NoError(t, os.WriteFile(fileName, []byte("2\n0 0 0\n1 1 1\n"), 0644))
		X, err := ReadVertexFile(fileName, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0, 0, 1, 1, 1}, X)
		_, err = ReadVertexFile(filepath.Join(t.TempDir(), "missing.vertex"), 3)
		assert.Error(t, err)
	}
}
