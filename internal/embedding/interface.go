package embedding

import "context"

// Mode selects the asymmetric embedding variant. Document and query vectors
// come from different task types, so the same text embeds differently
// depending on which side of the similarity search it is on.
type Mode string

const (
	// ModeDocument embeds text that will be stored and searched against.
	ModeDocument Mode = "document"
	// ModeQuery embeds text used to search the store.
	ModeQuery Mode = "query"
)

// Embedder produces fixed-length embedding vectors for text. The vector
// dimensionality must stay stable for the lifetime of the store the vectors
// are written to.
type Embedder interface {
	Embed(ctx context.Context, text string, mode Mode) ([]float32, error)
}
