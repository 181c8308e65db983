// Package document defines the record the engine indexes: one item of an
// RSS-derived search-task collection, as handed over by a document source.
package document

import (
	"slices"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/errors"
)

// Field names, as used in queries and in stored field maps.
const (
	FieldTitle      = "title"
	FieldAbstract   = "abstract"
	FieldTaskNumber = "taskNumber"
	FieldQuery      = "query"
	FieldRelevance  = "relevance"
)

// TextFields are analysed into terms; the remaining indexed fields are
// stored as one literal term each.
var TextFields = []string{FieldTitle, FieldAbstract, FieldQuery}

// LiteralFields hold a single untokenised term per document.
var LiteralFields = []string{FieldTaskNumber, FieldRelevance}

// Relevance flag encoding. The flag is a boolean stored as a one-term field,
// not a number.
const (
	RelevantTerm    = "1"
	NotRelevantTerm = "0"
)

// Document is an immutable item of the collection. ID is assigned by the
// index builder; sources leave it zero.
type Document struct {
	ID         uint32 `json:"id" yaml:"-"`
	Title      string `json:"title" yaml:"title"`
	Abstract   string `json:"abstract" yaml:"abstract"`
	TaskNumber int    `json:"taskNumber" yaml:"taskNumber"`
	Query      string `json:"query" yaml:"query"`
	Relevant   bool   `json:"relevant" yaml:"relevant"`
}

// IsField reports whether name is one of the indexed fields.
func IsField(name string) bool {
	switch name {
	case FieldTitle, FieldAbstract, FieldTaskNumber, FieldQuery, FieldRelevance:
		return true
	}
	return false
}

// IsLiteralField reports whether name is stored as a single literal term.
func IsLiteralField(name string) bool {
	return slices.Contains(LiteralFields, name)
}

// RelevanceTerm returns the literal term stored for the relevance flag.
func (d Document) RelevanceTerm() string {
	if d.Relevant {
		return RelevantTerm
	}
	return NotRelevantTerm
}

// Value returns the stored string value of a field.
func (d Document) Value(field string) (string, bool) {
	switch field {
	case FieldTitle:
		return d.Title, true
	case FieldAbstract:
		return d.Abstract, true
	case FieldTaskNumber:
		return strconv.Itoa(d.TaskNumber), true
	case FieldQuery:
		return d.Query, true
	case FieldRelevance:
		return d.RelevanceTerm(), true
	}
	return "", false
}

// Fields returns every stored field value keyed by field name.
func (d Document) Fields() map[string]string {
	return map[string]string{
		FieldTitle:      d.Title,
		FieldAbstract:   d.Abstract,
		FieldTaskNumber: strconv.Itoa(d.TaskNumber),
		FieldQuery:      d.Query,
		FieldRelevance:  d.RelevanceTerm(),
	}
}

// Validate reports why a document cannot be indexed. position is the
// document's offset in the batch and only feeds the error message.
func (d Document) Validate(position int) error {
	if strings.TrimSpace(d.Title) == "" && strings.TrimSpace(d.Abstract) == "" {
		return apperrors.NewMalformedDocumentError(position, FieldTitle, "title and abstract are both empty")
	}
	if d.TaskNumber < 0 {
		return apperrors.NewMalformedDocumentError(position, FieldTaskNumber, "task number must not be negative")
	}
	return nil
}

// Filter decides whether a document is admitted into an index.
type Filter func(Document) bool

// TaskFilter admits only documents belonging to the given search task.
func TaskFilter(task int) Filter {
	return func(d Document) bool {
		return d.TaskNumber == task
	}
}
