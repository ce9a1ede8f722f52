package occurrence

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"nichemodeller/internal/geo"
)

var ErrLabelNotFound = errors.New("occurrence label not found")

// ReadDelimited parses "id label longitude latitude [abundance]" rows
// separated by tabs or commas. Rows are grouped by label in order of first
// appearance; a missing abundance counts as a single presence. Coordinates
// are converted from coordSystem to geo.DefaultCS.
func ReadDelimited(r io.Reader, coordSystem string) ([]*Set, error) {
	tr, err := geo.New(coordSystem, geo.DefaultCS)
	if err != nil {
		return nil, fmt.Errorf("occurrence coordinate system: %w", err)
	}
	br := bufio.NewReader(r)
	comma := ','
	if peek, _ := br.Peek(4096); bytes.ContainsRune(peek, '\t') {
		comma = '\t'
	}

	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var sets []*Set
	byLabel := make(map[string]*Set)
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read occurrence row %d: %w", row+1, err)
		}
		row++
		if blankRecord(record) {
			continue
		}
		if len(record) < 4 {
			return nil, fmt.Errorf("occurrence row %d: expected at least 4 columns, got %d", row, len(record))
		}

		lon, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			if row == 1 {
				continue
			}
			return nil, fmt.Errorf("occurrence row %d longitude: %w", row, err)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("occurrence row %d latitude: %w", row, err)
		}
		abundance := 1.0
		if len(record) > 4 && strings.TrimSpace(record[4]) != "" {
			abundance, err = strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
			if err != nil {
				return nil, fmt.Errorf("occurrence row %d abundance: %w", row, err)
			}
		}

		if lon, lat, err = tr.Out(lon, lat); err != nil {
			return nil, fmt.Errorf("occurrence row %d: %w", row, err)
		}

		label := strings.TrimSpace(record[1])
		set, ok := byLabel[label]
		if !ok {
			set = NewSet(label, coordSystem)
			byLabel[label] = set
			sets = append(sets, set)
		}
		set.Append(New(strings.TrimSpace(record[0]), lon, lat, 0, abundance))
	}
	return sets, nil
}

// LoadDelimited reads path and returns the presences and absences of label.
// An empty label selects the first label in the file.
func LoadDelimited(path, coordSystem, label string) (*Set, *Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sets, err := ReadDelimited(f, coordSystem)
	if err != nil {
		return nil, nil, fmt.Errorf("load occurrences %s: %w", path, err)
	}
	var chosen *Set
	for _, s := range sets {
		if label == "" || s.Label == label {
			chosen = s
			break
		}
	}
	if chosen == nil {
		return nil, nil, fmt.Errorf("%w: %q in %s", ErrLabelNotFound, label, path)
	}
	presences, absences := SplitByAbundance(chosen)
	return presences, absences, nil
}

// SplitByAbundance separates presences from absences.
func SplitByAbundance(s *Set) (*Set, *Set) {
	presences := NewSet(s.Label, s.CoordSystem)
	absences := NewSet(s.Label, s.CoordSystem)
	for _, o := range s.All() {
		if o.IsPresence() {
			presences.Append(o)
		} else {
			absences.Append(o)
		}
	}
	return presences, absences
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
