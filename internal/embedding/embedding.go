package embedding

import (
	"fmt"

	"mnemo/internal/config"
	"mnemo/internal/keys"
)

// New creates an Embedder for the configured provider. The returned key
// manager is non-nil only for providers that rotate API keys.
func New(cfg *config.EmbeddingConfig) (Embedder, *keys.Manager, error) {
	switch cfg.Provider {
	case "gemini":
		km, err := keys.NewManager(cfg.Gemini.APIKeys, cfg.Gemini.KeyUsageLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini embedder: %w", err)
		}
		return NewGeminiEmbedder(km, cfg.Gemini.DocumentModel, cfg.Gemini.QueryModel), km, nil
	case "ollama":
		emb, err := NewOllamaEmbedder(cfg.Ollama.Model, cfg.Ollama.BaseURL)
		return emb, nil, err
	default:
		return nil, nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
