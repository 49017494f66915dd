package results

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bughra383/simulakra/internal/extract"
)

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "clicked_2026-03.csv")

	users := []extract.AffectedUser{
		{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", EventTime: "2026-03-02T10:00:00", EventType: "Clicked Link"},
		{FirstName: "Bob", LastName: "Burns", Email: "bob@example.com", EventTime: "2026-03-02T10:05:00", EventType: "Submitted Data"},
	}
	require.NoError(t, WriteCSV(path, users))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"FirstName", "LastName", "Email", "EventTime", "EventType"}, rows[0])
	assert.Equal(t, "ada@example.com", rows[1][2])
	assert.Equal(t, "Submitted Data", rows[2][4])
}

func TestWriteCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, WriteCSV(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "FirstName,LastName,Email,EventTime,EventType\n", string(data))
}

type capturePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (c *capturePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.input = params
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(params.Body); err != nil {
		return nil, err
	}
	c.body = buf.Bytes()
	return &s3.PutObjectOutput{}, nil
}

func TestArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clicked_2026-03.csv")
	require.NoError(t, os.WriteFile(path, []byte("FirstName,LastName,Email,EventTime,EventType\n"), 0o644))

	putter := &capturePutter{}
	a := &Archiver{bucket: "awareness-results", prefix: "runs/2026"}
	a.SetClient(putter)

	loc, err := a.Archive(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "s3://awareness-results/runs/2026/clicked_2026-03.csv", loc)
	require.NotNil(t, putter.input)
	assert.Equal(t, "awareness-results", *putter.input.Bucket)
	assert.Equal(t, "runs/2026/clicked_2026-03.csv", *putter.input.Key)
	assert.Equal(t, "text/csv", *putter.input.ContentType)
	assert.Contains(t, string(putter.body), "EventType")
}

func TestArchiveMissingFile(t *testing.T) {
	a := &Archiver{bucket: "b"}
	a.SetClient(&capturePutter{})
	_, err := a.Archive(context.Background(), "/nonexistent/file.csv")
	assert.Error(t, err)
}
