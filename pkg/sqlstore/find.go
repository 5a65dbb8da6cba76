// ABOUTME: Find, single-document writes, index creation and explain
// ABOUTME: Each operation compiles its request into one SQL statement

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nainya/bookquery/pkg/query"
	"github.com/nainya/bookquery/pkg/store"
)

// compileFind returns the SELECT statement for req.
func (s *Store) compileFind(req store.FindRequest) (string, []interface{}, error) {
	where, args, err := compileFilter(req.Filter, "doc")
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE %s", compileProjection(req.Projection, "doc"), s.quotedTable(), where)

	order := compileSort(req.Sort, "doc")
	if order != "" {
		order += ", "
	}
	fmt.Fprintf(&b, " ORDER BY %srowid", order)

	if req.Skip > 0 || req.Limit > 0 {
		limit := -1
		if req.Limit > 0 {
			limit = req.Limit
		}
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, req.Skip)
	}
	return b.String(), args, nil
}

// Find returns the documents matching req.
func (s *Store) Find(ctx context.Context, req store.FindRequest) (store.Cursor, error) {
	stmt, args, err := s.compileFind(req)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find: %w", err)
	}
	return newRowsCursor(rows), nil
}

// firstMatch selects the id of the first document, in insertion order,
// matching the filter.
func (s *Store) firstMatch(f query.Filter) (string, []interface{}, error) {
	where, args, err := compileFilter(f, "doc")
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT id FROM %s WHERE %s ORDER BY rowid LIMIT 1", s.quotedTable(), where), args, nil
}

// UpdateOne applies req.Update to the first matching document and returns
// the number of documents modified.
func (s *Store) UpdateOne(ctx context.Context, req store.UpdateRequest) (int64, error) {
	if req.Update.IsEmpty() {
		return 0, fmt.Errorf("sqlstore: update has no operators")
	}
	set, setArgs, err := compileUpdate(req.Update, "doc")
	if err != nil {
		return 0, err
	}
	match, matchArgs, err := s.firstMatch(req.Filter)
	if err != nil {
		return 0, err
	}

	// A document that already holds the new values is matched but not
	// modified, so it is left out of the count.
	stmt := fmt.Sprintf("UPDATE %s SET doc = %s WHERE id = (%s) AND json(doc) IS NOT %s",
		s.quotedTable(), set, match, set)
	args := append(append(append([]interface{}{}, setArgs...), matchArgs...), setArgs...)
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: update: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOne removes the first matching document and returns the number of
// documents deleted.
func (s *Store) DeleteOne(ctx context.Context, req store.DeleteRequest) (int64, error) {
	match, args, err := s.firstMatch(req.Filter)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = (%s)", s.quotedTable(), match), args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete: %w", err)
	}
	return res.RowsAffected()
}

// IndexName returns the name CreateIndex uses when none is given, e.g.
// books_author_1_published_year_-1.
func (s *Store) IndexName(keys []query.IndexKey) string {
	parts := []string{s.table}
	for _, k := range keys {
		parts = append(parts, k.Field, strconv.Itoa(int(k.Direction)))
	}
	return strings.Join(parts, "_")
}

// CreateIndex creates an expression index over the requested fields.
// Creating an index whose name already exists is acknowledged with
// Created false.
func (s *Store) CreateIndex(ctx context.Context, req store.IndexRequest) (store.IndexAck, error) {
	if len(req.Keys) == 0 {
		return store.IndexAck{}, fmt.Errorf("sqlstore: index requires at least one key")
	}
	name := req.Options.Name
	if name == "" {
		name = s.IndexName(req.Keys)
	}

	var existing int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, name).Scan(&existing)
	if err != nil {
		return store.IndexAck{}, fmt.Errorf("sqlstore: lookup index %s: %w", name, err)
	}
	if existing > 0 {
		return store.IndexAck{Name: name}, nil
	}

	cols := make([]string, len(req.Keys))
	for i, k := range req.Keys {
		dir := "ASC"
		if k.Direction == query.Descending {
			dir = "DESC"
		}
		cols[i] = fieldValue("doc", k.Field) + " " + dir
	}
	unique := ""
	if req.Options.Unique {
		unique = "UNIQUE "
	}
	ddl := fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS "%s" ON %s (%s)`,
		unique, name, s.quotedTable(), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return store.IndexAck{}, fmt.Errorf("sqlstore: create index %s: %w", name, err)
	}
	return store.IndexAck{Name: name, Created: true}, nil
}

// Explain reports the query plan SQLite picks for req, then runs the
// statement once to count the documents it returns.
func (s *Store) Explain(ctx context.Context, req store.FindRequest) (*store.ExplainReport, error) {
	stmt, args, err := s.compileFind(req)
	if err != nil {
		return nil, err
	}

	report := &store.ExplainReport{
		Collection: s.table,
		Statement:  stmt,
		Stage:      store.StageCollScan,
	}

	plan, err := s.db.QueryContext(ctx, "EXPLAIN QUERY PLAN "+stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: explain: %w", err)
	}
	err = scanPlan(plan, report)
	plan.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: explain: %w", err)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: explain execute: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		report.DocsReturned++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: explain execute: %w", err)
	}
	report.Duration = time.Since(start)
	return report, nil
}

func scanPlan(rows *sql.Rows, report *store.ExplainReport) error {
	for rows.Next() {
		var id, parent, notused int
		var detail string
		if err := rows.Scan(&id, &parent, &notused, &detail); err != nil {
			return err
		}
		report.Plan = append(report.Plan, detail)
		if name, ok := planIndex(detail); ok && report.Index == "" {
			report.Stage = store.StageIndexScan
			report.Index = name
		}
	}
	return rows.Err()
}

// planIndex extracts the index name from a plan step such as
// "SEARCH books USING INDEX books_title_1 (<expr>=?)".
func planIndex(detail string) (string, bool) {
	const marker = "USING INDEX "
	i := strings.Index(detail, marker)
	if i < 0 {
		const covering = "USING COVERING INDEX "
		i = strings.Index(detail, covering)
		if i < 0 {
			return "", false
		}
		i += len(covering)
	} else {
		i += len(marker)
	}
	name := detail[i:]
	if j := strings.IndexByte(name, ' '); j >= 0 {
		name = name[:j]
	}
	return name, name != ""
}
