// ABOUTME: Book data model for the books collection
// ABOUTME: Defines Record and the collection field schema

package book

import (
	"fmt"

	"github.com/nainya/bookquery/pkg/query"
)

// Field names as stored in the collection.
const (
	FieldID            = "_id"
	FieldTitle         = "title"
	FieldAuthor        = "author"
	FieldGenre         = "genre"
	FieldPublishedYear = "published_year"
	FieldPrice         = "price"
	FieldInStock       = "in_stock"
)

// Record represents one book document
type Record struct {
	ID            string  `json:"_id,omitempty" yaml:"-"`               // Store-assigned key
	Title         string  `json:"title" yaml:"title"`                   // Unique by convention
	Author        string  `json:"author" yaml:"author"`                 // Author name
	Genre         string  `json:"genre" yaml:"genre"`                   // Genre label
	PublishedYear int     `json:"published_year" yaml:"published_year"` // Year of first publication
	Price         float64 `json:"price" yaml:"price"`                   // List price
	InStock       bool    `json:"in_stock" yaml:"in_stock"`             // Availability flag
}

// Schema returns the field kinds of the books collection.
func Schema() query.Schema {
	return query.Schema{
		FieldID:            query.KindString,
		FieldTitle:         query.KindString,
		FieldAuthor:        query.KindString,
		FieldGenre:         query.KindString,
		FieldPublishedYear: query.KindInt,
		FieldPrice:         query.KindNumber,
		FieldInStock:       query.KindBool,
	}
}

// Validate checks the fields a record must carry before it is stored.
func (r Record) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("book: title is required")
	}
	if r.Price < 0 {
		return fmt.Errorf("book %q: price must be non-negative", r.Title)
	}
	return nil
}
