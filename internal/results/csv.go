package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bughra383/simulakra/internal/extract"
)

var csvHeader = []string{"FirstName", "LastName", "Email", "EventTime", "EventType"}

// WriteCSV writes affected users to path, creating parent directories
// as needed. A file is written even when users is empty so a run always
// leaves a result artifact behind.
func WriteCSV(path string, users []extract.AffectedUser) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating results directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating results file: %w", err)
	}
	defer f.Close()

	if err := Write(f, users); err != nil {
		return err
	}
	return f.Close()
}

// Write writes affected users as CSV to w.
func Write(w io.Writer, users []extract.AffectedUser) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, u := range users {
		row := []string{u.FirstName, u.LastName, u.Email, u.EventTime, u.EventType}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row for %s: %w", u.Email, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
