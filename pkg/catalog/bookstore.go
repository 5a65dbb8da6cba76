// ABOUTME: Built-in catalog of bookstore queries
// ABOUTME: Covers CRUD, advanced finds, aggregation pipelines and indexing

package catalog

import (
	"github.com/nainya/bookquery/pkg/book"
	q "github.com/nainya/bookquery/pkg/query"
)

// Names of the built-in bookstore queries.
const (
	FictionBooks         = "fiction_books"
	PublishedAfter2010   = "published_after_2010"
	BooksByPauloCoelho   = "books_by_paulo_coelho"
	UpdateAlchemistPrice = "update_alchemist_price"
	Delete1984           = "delete_1984"
	InStockAfter2010     = "in_stock_after_2010"
	TitleAuthorPrice     = "title_author_price"
	SortPriceAsc         = "sort_price_asc"
	SortPriceDesc        = "sort_price_desc"
	Page1                = "page_1"
	Page2                = "page_2"
	AvgPriceByGenre      = "avg_price_by_genre"
	TopAuthor            = "top_author"
	BooksPerDecade       = "books_per_decade"
	IndexTitle           = "index_title"
	IndexAuthorYear      = "index_author_year"
	FindAlchemist        = "find_alchemist"
)

// PageSize is the page size used by the pagination queries.
const PageSize = 5

// Bookstore returns a catalog holding every built-in query for the books
// collection.
func Bookstore() *Catalog {
	c := New(book.Schema())

	// Basic CRUD
	c.MustRegister(FictionBooks, q.NewFind().
		Describe("Find all books in the Fiction genre").
		Where(book.FieldGenre, "Fiction").
		MustBuild())
	c.MustRegister(PublishedAfter2010, q.NewFind().
		Describe("Find books published after 2010").
		Where(book.FieldPublishedYear, q.Gt(2010)).
		MustBuild())
	c.MustRegister(BooksByPauloCoelho, q.NewFind().
		Describe("Find books by Paulo Coelho").
		Where(book.FieldAuthor, "Paulo Coelho").
		MustBuild())
	c.MustRegister(UpdateAlchemistPrice, q.NewUpdate().
		Describe("Set the price of The Alchemist to 160").
		Where(book.FieldTitle, "The Alchemist").
		Set(book.FieldPrice, 160).
		MustBuild())
	c.MustRegister(Delete1984, q.NewDelete().
		Describe("Delete the book titled 1984").
		Where(book.FieldTitle, "1984").
		MustBuild())

	// Advanced finds
	c.MustRegister(InStockAfter2010, q.NewFind().
		Describe("Find in-stock books published after 2010").
		Where(book.FieldInStock, true).
		Where(book.FieldPublishedYear, q.Gt(2010)).
		MustBuild())
	c.MustRegister(TitleAuthorPrice, q.NewFind().
		Describe("Show only title, author and price").
		Select(book.FieldTitle, book.FieldAuthor, book.FieldPrice).
		Omit(book.FieldID).
		MustBuild())
	c.MustRegister(SortPriceAsc, q.NewFind().
		Describe("Sort books by price, cheapest first").
		OrderBy(book.FieldPrice, q.Ascending).
		MustBuild())
	c.MustRegister(SortPriceDesc, q.NewFind().
		Describe("Sort books by price, most expensive first").
		OrderBy(book.FieldPrice, q.Descending).
		MustBuild())
	c.MustRegister(Page1, q.NewFind().
		Describe("First page of books, five per page").
		Page(1, PageSize).
		MustBuild())
	c.MustRegister(Page2, q.NewFind().
		Describe("Second page of books, five per page").
		Page(2, PageSize).
		MustBuild())

	// Aggregation pipelines
	c.MustRegister(AvgPriceByGenre, q.NewAggregate(
		q.Group(q.Field(book.FieldGenre), q.Avg("average_price", q.Field(book.FieldPrice))),
	).Describe("Average price of books by genre").MustBuild())

	c.MustRegister(TopAuthor, q.NewAggregate(
		q.Group(q.Field(book.FieldAuthor), q.Sum("total_books", q.Lit(1))),
		q.SortBy(q.Desc("total_books")),
		q.Limit(1),
	).Describe("Author with the most books").MustBuild())

	c.MustRegister(BooksPerDecade, q.NewAggregate(
		q.Group(
			q.Floor(q.Divide(q.Field(book.FieldPublishedYear), q.Lit(10))),
			q.Sum("count", q.Lit(1)),
		),
		q.Project(
			q.Compute("decade", q.Concat(q.ToString(q.Multiply(q.Field("_id"), q.Lit(10))), q.Lit("s"))),
			q.Include("count"),
			q.Exclude("_id"),
		),
	).Describe("Number of books per publication decade").MustBuild())

	// Indexing
	c.MustRegister(IndexTitle, q.NewCreateIndex().
		Describe("Index on title").
		Key(book.FieldTitle, q.Ascending).
		MustBuild())
	c.MustRegister(IndexAuthorYear, q.NewCreateIndex().
		Describe("Compound index on author and published year").
		Key(book.FieldAuthor, q.Ascending).
		Key(book.FieldPublishedYear, q.Descending).
		MustBuild())
	c.MustRegister(FindAlchemist, q.NewFind().
		Describe("Find The Alchemist by title; explain it before and after indexing").
		Where(book.FieldTitle, "The Alchemist").
		MustBuild())

	return c
}
