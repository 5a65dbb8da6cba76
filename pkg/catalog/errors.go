// ABOUTME: Catalog error values
// ABOUTME: All are detected locally before any store call

package catalog

import (
	"errors"

	"github.com/nainya/bookquery/pkg/query"
)

var (
	// ErrDuplicateName indicates a registration under a name already in use
	ErrDuplicateName = errors.New("catalog: duplicate query name")

	// ErrNotFound indicates an execution of an unregistered name
	ErrNotFound = errors.New("catalog: query not found")

	// ErrNotExplainable indicates an explain request for a non-find query
	ErrNotExplainable = errors.New("catalog: only find queries can be explained")

	// ErrInvalidDefinition indicates a definition rejected at registration
	ErrInvalidDefinition = query.ErrInvalidDefinition
)
