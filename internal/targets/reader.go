// Package targets reads the exercise's contact list from CSV.
package targets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bughra383/simulakra/internal/gophish"
	"github.com/bughra383/simulakra/internal/pkg/logger"
)

// Required header columns, in the order they appear in the template file.
var requiredColumns = []string{"FirstName", "LastName", "Email", "Position"}

// ReadFile loads and validates targets from a CSV file.
func ReadFile(path string, log *logger.Logger) ([]gophish.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening targets file: %w", err)
	}
	defer f.Close()

	targets, err := Read(f, log)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	log.Info("targets loaded", "path", path, "count", len(targets))
	return targets, nil
}

// Read parses CSV target rows. The header must contain FirstName,
// LastName, Email and Position. Rows without a usable email address are
// skipped with a warning rather than failing the whole file.
func Read(r io.Reader, log *logger.Logger) ([]gophish.Target, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx := map[string]int{}
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing required column %q (need %v)", col, requiredColumns)
		}
	}

	field := func(row []string, col string) string {
		i := idx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var targets []gophish.Target
	for rowNum := 2; ; rowNum++ { // header is row 1
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn("skipping malformed row", "row", rowNum, "error", err.Error())
			continue
		}

		email := field(row, "Email")
		if email == "" {
			log.Warn("skipping row: missing email address", "row", rowNum)
			continue
		}
		if !strings.Contains(email, "@") {
			log.Warn("skipping row: invalid email format", "row", rowNum, "email", email)
			continue
		}

		targets = append(targets, gophish.Target{
			FirstName: field(row, "FirstName"),
			LastName:  field(row, "LastName"),
			Email:     strings.ToLower(email),
			Position:  field(row, "Position"),
		})
	}

	return targets, nil
}
