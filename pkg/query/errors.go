// ABOUTME: Error values for query definition construction
// ABOUTME: Every shape or schema violation wraps ErrInvalidDefinition

package query

import (
	"errors"
	"fmt"
)

// ErrInvalidDefinition indicates a definition whose shape does not match its
// kind, or whose fields and values do not fit the collection schema.
var ErrInvalidDefinition = errors.New("query: invalid definition")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}
