package parser

import (
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromLists(t *testing.T) {
	q := FromLists(
		[]string{"video"},
		[]string{"audio"},
		[]string{"content", "based"},
		nil,
		[]string{"1"},
	)
	assert.Equal(t, []Clause{
		{Field: "title", Occur: Must, Text: "video"},
		{Field: "title", Occur: MustNot, Text: "audio"},
		{Field: "abstract", Occur: Must, Text: "content"},
		{Field: "abstract", Occur: Must, Text: "based"},
		{Field: "relevance", Occur: Must, Text: "1"},
	}, q.Clauses)
	assert.Len(t, q.Must(), 4)
	assert.Len(t, q.MustNot(), 1)
	assert.Equal(t, []string{"content", "based"}, q.Values("abstract", Must))
	assert.NoError(t, q.Validate())
}

func TestFromListsEmpty(t *testing.T) {
	q := FromLists(nil, nil, nil, nil, nil)
	assert.True(t, q.IsEmpty())
	assert.NoError(t, q.Validate())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Clause
	}{
		{"bare words go to abstract", "content video", []Clause{
			{Field: "abstract", Occur: Must, Text: "content"},
			{Field: "abstract", Occur: Must, Text: "video"},
		}},
		{"field prefix", "title:video +abstract:annotation", []Clause{
			{Field: "title", Occur: Must, Text: "video"},
			{Field: "abstract", Occur: Must, Text: "annotation"},
		}},
		{"exclusions", "video -title:audio NOT abstract:music", []Clause{
			{Field: "abstract", Occur: Must, Text: "video"},
			{Field: "title", Occur: MustNot, Text: "audio"},
			{Field: "abstract", Occur: MustNot, Text: "music"},
		}},
		{"aliases and AND", "video AND relevant:1 task:3", []Clause{
			{Field: "abstract", Occur: Must, Text: "video"},
			{Field: "relevance", Occur: Must, Text: "1"},
			{Field: "taskNumber", Occur: Must, Text: "3"},
		}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Clauses)
			assert.Equal(t, tt.input, q.RawQuery)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown field", "author:smith"},
		{"or", "video OR audio"},
		{"dangling not", "video NOT"},
		{"empty term", "title:"},
		{"bad relevance", "relevance:yes"},
		{"bad task", "task:three"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)
		})
	}
}

func TestValidateRejectsUnknownOccur(t *testing.T) {
	q := Query{Clauses: []Clause{{Field: "title", Occur: "should", Text: "x"}}}
	assert.ErrorIs(t, q.Validate(), apperrors.ErrInvalidQuery)
}

func TestCanonicalIgnoresOrderAndCase(t *testing.T) {
	a := FromLists([]string{"Video"}, nil, []string{"content"}, nil, nil)
	b := Query{Clauses: []Clause{
		{Field: "abstract", Occur: Must, Text: "content"},
		{Field: "title", Occur: Must, Text: " video"},
	}}
	assert.Equal(t, a.Canonical(), b.Canonical())
	assert.Equal(t, "+abstract:content +title:video", a.Canonical())
	assert.Equal(t, a.Canonical(), a.String())

	raw, err := Parse("title:video")
	require.NoError(t, err)
	assert.Equal(t, "title:video", raw.String())
}
