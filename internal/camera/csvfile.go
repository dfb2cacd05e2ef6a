package camera

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// readValues reads every comma-separated number from a comment-tolerant CSV.
// Lines starting with '#' and blank lines are skipped.
func readValues(r io.Reader) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var values []float64
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		line, _ := cr.FieldPos(0)
		for _, cell := range record {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %q is not a number", ErrFormat, line, cell)
			}
			values = append(values, v)
		}
	}
	return values, nil
}

// ParseIntrinsics reads K and D from a flat or headered intrinsics CSV:
// the first 9 values fill K row-major, the next 5 fill D.
func ParseIntrinsics(r io.Reader) (Intrinsics, Distortion, error) {
	var dist Distortion
	values, err := readValues(r)
	if err != nil {
		return Intrinsics{}, dist, err
	}
	if len(values) < 14 {
		return Intrinsics{}, dist, fmt.Errorf("%w: intrinsics file needs 14 values (9 camera matrix + 5 distortion), got %d", ErrFormat, len(values))
	}
	if len(values) > 14 {
		debugMsg("CAMERA", fmt.Sprintf("intrinsics file has %d values, ignoring the last %d", len(values), len(values)-14))
	}

	k, err := NewIntrinsics(values[:9])
	if err != nil {
		return Intrinsics{}, dist, err
	}
	copy(dist[:], values[9:14])
	return k, dist, nil
}

// ParseExtrinsics reads the 12 row-major values of E
func ParseExtrinsics(r io.Reader) (Extrinsics, error) {
	values, err := readValues(r)
	if err != nil {
		return Extrinsics{}, err
	}
	if len(values) < 12 {
		return Extrinsics{}, fmt.Errorf("%w: extrinsics file needs 12 values, got %d", ErrFormat, len(values))
	}
	if len(values) > 12 {
		debugMsg("CAMERA", fmt.Sprintf("extrinsics file has %d values, ignoring the last %d", len(values), len(values)-12))
	}
	return NewExtrinsics(values[:12])
}

// WriteIntrinsicsCSV writes K and D in the headered format:
//
//	# Camera Matrix
//	fx,0,cx
//	0,fy,cy
//	0,0,1
//
//	# Distortion Coefficients
//	k1,k2,p1,p2,k3
func WriteIntrinsicsCSV(w io.Writer, k Intrinsics, d Distortion) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# Camera Matrix")
	kv := k.Values()
	for r := 0; r < 3; r++ {
		fmt.Fprintln(bw, joinFloats(kv[r*3:r*3+3]))
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "# Distortion Coefficients")
	fmt.Fprintln(bw, joinFloats(d[:]))
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// SaveIntrinsics writes the headered intrinsics CSV to path
func SaveIntrinsics(path string, k Intrinsics, d Distortion) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := WriteIntrinsicsCSV(f, k, d); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
