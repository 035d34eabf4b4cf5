package driving

import (
	"context"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// ChangeCache decides which documents need uploading.
type ChangeCache interface {
	// ShouldUpload reports whether the document differs from its last
	// successful upload or needs re-validation.
	ShouldUpload(ctx context.Context, doc domain.Document) bool

	// RecordOutcome stores the upload result for the document.
	RecordOutcome(ctx context.Context, doc domain.Document, success bool) error

	// Stats summarises the cache.
	Stats(ctx context.Context) (domain.CacheStats, error)

	// Clear removes every entry and returns how many were removed.
	Clear(ctx context.Context) (int, error)

	// DocumentIDs lists every cached document id.
	DocumentIDs(ctx context.Context) ([]string, error)

	// Forget removes entries for the given documents.
	Forget(ctx context.Context, documentIDs ...string) error
}
