package targets

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bughra383/simulakra/internal/pkg/logger"
)

func quietLogger() *logger.Logger {
	l := logger.New(logger.ERROR, false)
	l.SetOutput(io.Discard)
	return l
}

func TestReadValidFile(t *testing.T) {
	csv := `FirstName,LastName,Email,Position
Ada,Lovelace,Ada.Lovelace@Example.com,Engineer
Bob,Burns,bob@example.com,Accountant
`
	targets, err := Read(strings.NewReader(csv), quietLogger())
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, "ada.lovelace@example.com", targets[0].Email, "emails are lower-cased")
	assert.Equal(t, "Ada", targets[0].FirstName)
	assert.Equal(t, "Accountant", targets[1].Position)
}

func TestReadSkipsBadRows(t *testing.T) {
	csv := `FirstName,LastName,Email,Position
Ada,Lovelace,ada@example.com,Engineer
Missing,Email,,Clerk
Bad,Format,not-an-email,Clerk
Carol,Jones,carol@example.com,Manager
`
	targets, err := Read(strings.NewReader(csv), quietLogger())
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "ada@example.com", targets[0].Email)
	assert.Equal(t, "carol@example.com", targets[1].Email)
}

func TestReadMissingColumn(t *testing.T) {
	csv := `FirstName,LastName,Email
Ada,Lovelace,ada@example.com
`
	_, err := Read(strings.NewReader(csv), quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Position")
}

func TestReadReorderedColumns(t *testing.T) {
	csv := `Email,Position,FirstName,LastName
ada@example.com,Engineer,Ada,Lovelace
`
	targets, err := Read(strings.NewReader(csv), quietLogger())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "Ada", targets[0].FirstName)
	assert.Equal(t, "Engineer", targets[0].Position)
}

func TestReadEmptyFile(t *testing.T) {
	_, err := Read(strings.NewReader(""), quietLogger())
	assert.Error(t, err)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile("/nonexistent/targets.csv", quietLogger())
	assert.Error(t, err)
}
