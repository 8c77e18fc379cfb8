package field

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadNodalCountsFile reads a nodal count table, see ReadNodalCounts
func ReadNodalCountsFile(path string, numNodes, detectors int) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	counts, err := ReadNodalCounts(f, numNodes, detectors)
	if err != nil {
		return nil, fmt.Errorf("nodal counts %s: %w", path, err)
	}
	return counts, nil
}

// ReadNodalCounts reads one row per node, in node order, with one count
// column per detector. Columns are separated by commas or whitespace. Blank
// lines, lines starting with '#' and a leading header row (see IsHeader) are
// skipped. The result is indexed [detector][node].
func ReadNodalCounts(r io.Reader, numNodes, detectors int) ([][]float64, error) {
	if detectors < 1 {
		return nil, ErrNoDetectors
	}
	counts := make([][]float64, detectors)
	for d := range counts {
		counts[d] = make([]float64, 0, numNodes)
	}
	sc := bufio.NewScanner(r)
	var line, node int
	first := true
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		fields := SplitRow(s)
		if first {
			first = false
			if IsHeader(fields) {
				continue
			}
		}
		if len(fields) != detectors {
			return nil, fmt.Errorf("line %d: %d columns, expected %d detectors", line, len(fields), detectors)
		}
		for d, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad count %q", line, f)
			}
			counts[d] = append(counts[d], v)
		}
		node++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if node != numNodes {
		return nil, fmt.Errorf("%d node rows, mesh has %d nodes", node, numNodes)
	}
	return counts, nil
}

// SplitRow splits a table row on commas, semicolons and whitespace
func SplitRow(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
}

// IsHeader reports whether a row holds column names: no column parses as a
// number. A row mixing names and numbers is a malformed data row.
func IsHeader(cols []string) bool {
	for _, c := range cols {
		if _, err := strconv.ParseFloat(c, 64); err == nil {
			return false
		}
	}
	return true
}

// WriteRaw writes every node position followed by its per-detector counts,
// space separated, with a header row naming the columns
func WriteRaw(w io.Writer, s *Store) error {
	bw := bufio.NewWriter(w)
	axes := []string{"vertex_positions_x", "vertex_position_y", "vertex_position_z"}
	dim := int(s.Mesh.Dim)
	cols := make([]string, 0, dim+len(s.Counts))
	cols = append(cols, axes[:dim]...)
	for d := range s.Counts {
		cols = append(cols, fmt.Sprintf("detector_%02d", d))
	}
	bw.WriteString(strings.Join(cols, " ") + "\n")

	pos, _ := s.Mesh.NodePositions()
	for n, p := range pos {
		xyz := []float64{p.X, p.Y, p.Z}
		cols = cols[:0]
		for _, x := range xyz[:dim] {
			cols = append(cols, strconv.FormatFloat(x, 'g', -1, 64))
		}
		for _, c := range s.Counts {
			cols = append(cols, strconv.FormatFloat(c[n], 'g', -1, 64))
		}
		bw.WriteString(strings.Join(cols, " ") + "\n")
	}
	return bw.Flush()
}
