package readfiles

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadVertexFile reads a marker file: the vertex count N on the first line,
// then N lines of dim coordinates. Text after '#' is a comment. The result
// holds dim coordinates per vertex.
func ReadVertexFile(fileName string, dim int) (X []float64, err error) {
	var (
		file *os.File
	)
	if file, err = os.Open(fileName); err != nil {
		return nil, fmt.Errorf("unable to open vertex file %s: %w", fileName, err)
	}
	defer file.Close()
	return ReadVertices(bufio.NewReader(file), dim)
}

// ReadVertices parses the vertex format from reader.
func ReadVertices(reader *bufio.Reader, dim int) (X []float64, err error) {
	var (
		line string
		nv   int
		n    int
	)
	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("unsupported dimension %d", dim)
	}
	if line, err = getLineNoComments(reader); err != nil {
		return nil, fmt.Errorf("reading vertex count: %w", err)
	}
	if _, err = fmt.Sscanf(line, "%d", &nv); err != nil {
		return nil, fmt.Errorf("unable to read vertex count from [%s]: %w", line, err)
	}
	if nv < 0 {
		return nil, fmt.Errorf("negative vertex count %d", nv)
	}
	X = make([]float64, nv*dim)
	for i := 0; i < nv; i++ {
		if line, err = getLineNoComments(reader); err != nil {
			return nil, fmt.Errorf("reading vertex %d of %d: %w", i, nv, err)
		}
		x := X[i*dim : (i+1)*dim]
		switch dim {
		case 1:
			n, err = fmt.Sscanf(line, "%f", &x[0])
		case 2:
			n, err = fmt.Sscanf(line, "%f %f", &x[0], &x[1])
		case 3:
			n, err = fmt.Sscanf(line, "%f %f %f", &x[0], &x[1], &x[2])
		}
		if err != nil || n != dim {
			return nil, fmt.Errorf("unable to read %d coordinates of vertex %d from [%s]: %v", dim, i, line, err)
		}
	}
	return
}

// getLineNoComments returns the next line with comments stripped, skipping
// blank lines.
func getLineNoComments(reader *bufio.Reader) (line string, err error) {
	for {
		line, err = reader.ReadString('\n')
		if err != nil && !(err == io.EOF && len(line) != 0) {
			if err == io.EOF {
				err = fmt.Errorf("early end of file")
			}
			return
		}
		err = nil
		if ind := strings.Index(line, "#"); ind >= 0 {
			line = line[:ind]
		}
		if line = strings.TrimSpace(line); len(line) != 0 {
			return
		}
	}
}
