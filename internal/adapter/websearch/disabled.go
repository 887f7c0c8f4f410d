// Package websearch provides the ports.WebSearch implementation used
// when no web-search provider is configured. No repo in the example
// pack imports a web-search client (grepping the corpus for
// "WebSearch" turns up nothing outside the query core's own port
// declaration), so there is no teacher code to adapt here; Disabled
// is a documented no-op rather than a fabricated dependency.
package websearch

import (
	"context"

	"github.com/hybridrag/queryengine/internal/query/model"
)

// Disabled always returns no results. The agentic path treats this
// the same as a provider that found nothing for the query.
type Disabled struct{}

// Search implements ports.WebSearch.
func (Disabled) Search(ctx context.Context, query string, n int) ([]model.Source, error) {
	return nil, nil
}
