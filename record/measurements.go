package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/notargets/RPTKernel/field"
)

// RowError reports a measurement row whose column count does not match the
// detector count. Line is 1-based.
type RowError struct {
	Line int
	Got  int
	Want int
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %d counts, expected %d detectors", e.Line, e.Got, e.Want)
}

// ReadMeasurementsFile reads a measurement record, see ReadMeasurements
func ReadMeasurementsFile(path string, detectors int) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	obs, err := ReadMeasurements(f, detectors)
	if err != nil {
		return nil, fmt.Errorf("measurements %s: %w", path, err)
	}
	return obs, nil
}

// ReadMeasurements reads one observed count vector per row, one column per
// detector. Columns are separated by commas or whitespace; blank lines, '#'
// comments and a leading header row, where no column is a number, are
// skipped. Any other unparsable row is an error.
func ReadMeasurements(r io.Reader, detectors int) ([][]float64, error) {
	if detectors < 1 {
		return nil, field.ErrNoDetectors
	}
	var (
		obs    [][]float64
		line   int
		header = true
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		cols := field.SplitRow(s)
		if header {
			header = false
			if field.IsHeader(cols) {
				continue
			}
		}
		if len(cols) != detectors {
			return nil, &RowError{Line: line, Got: len(cols), Want: detectors}
		}
		row := make([]float64, detectors)
		for d, c := range cols {
			v, err := strconv.ParseFloat(c, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad count %q: %w", line, c, err)
			}
			row[d] = v
		}
		obs = append(obs, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return obs, nil
}
