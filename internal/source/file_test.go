package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFileLoadYAML(t *testing.T) {
	path := writeFile(t, "docs.yaml", `
documents:
  - title: Video annotation
    abstract: content based video annotation
    taskNumber: 3
    query: video annotation
    relevant: true
  - title: Unrelated
    abstract: unrelated text
    taskNumber: 3
`)
	docs, err := NewFile(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, document.Document{
		Title:      "Video annotation",
		Abstract:   "content based video annotation",
		TaskNumber: 3,
		Query:      "video annotation",
		Relevant:   true,
	}, docs[0])
	assert.False(t, docs[1].Relevant)
}

func TestFileLoadJSON(t *testing.T) {
	path := writeFile(t, "docs.json", `{"documents": [{"title": "a", "abstract": "b", "taskNumber": 2, "relevant": false}]}`)
	docs, err := NewFile(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 2, docs[0].TaskNumber)
}

func TestDecodeShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"bare list", "- title: a\n- title: b\n", 2, false},
		{"json list", `[{"title": "a"}]`, 1, false},
		{"empty file", "   \n", 0, false},
		{"empty documents", "documents: []\n", 0, false},
		{"missing documents key", "other: 1\n", 0, false},
		{"scalar", "just text\n", 0, true},
		{"bad task number", "- taskNumber: three\n", 0, true},
		{"broken yaml", "documents: [\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := Decode([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, docs)
			assert.Len(t, docs, tt.want)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	in := []document.Document{{Title: "a", Abstract: "b", TaskNumber: 3, Relevant: true}}
	data, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFileLoadMissing(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "nope.yaml")).Load(context.Background())
	assert.Error(t, err)
}

func TestFileLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFile("unused").Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	cfg.Source.Path = writeFile(t, "docs.yaml", "- title: a\n")
	src, closer, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer closer.Close()
	docs, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	cfg.Source.Path = ""
	_, _, err = Open(context.Background(), cfg)
	assert.Error(t, err)

	cfg.Source.Type = "s3"
	_, _, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}
