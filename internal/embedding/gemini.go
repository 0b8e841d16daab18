package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"mnemo/internal/keys"
)

// GeminiEmbedder is an Embedder backed by the Google GenAI embedding API.
// Document and query vectors use distinct retrieval task types so the two
// sides of a similarity search are embedded asymmetrically.
//
// API keys come from a rotating pool; one genai client and its model handles
// are created lazily per key and cached. The cache is bounded by the number
// of configured keys times the two modes.
type GeminiEmbedder struct {
	keyManager *keys.Manager
	docModel   string
	queryModel string

	mu      sync.Mutex
	clients map[string]*genai.Client
	models  map[string]*genai.EmbeddingModel
}

// NewGeminiEmbedder creates a GeminiEmbedder using the given key pool and
// model names for the document and query modes.
func NewGeminiEmbedder(keyManager *keys.Manager, docModel, queryModel string) *GeminiEmbedder {
	return &GeminiEmbedder{
		keyManager: keyManager,
		docModel:   docModel,
		queryModel: queryModel,
		clients:    make(map[string]*genai.Client),
		models:     make(map[string]*genai.EmbeddingModel),
	}
}

// Embed generates an embedding vector for the text in the given mode.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	trimmed := strings.Join(strings.Fields(text), " ")
	if trimmed == "" {
		return nil, fmt.Errorf("gemini embed: empty text")
	}

	apiKey, err := e.keyManager.Acquire()
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}

	model, err := e.modelFor(ctx, apiKey, mode)
	if err != nil {
		return nil, err
	}

	res, err := model.EmbedContent(ctx, genai.Text(trimmed))
	if err != nil {
		return nil, fmt.Errorf("gemini embed (%s): %w", mode, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed (%s): empty embedding returned", mode)
	}
	return res.Embedding.Values, nil
}

// modelFor returns the cached embedding model handle for a key and mode,
// creating the client and handle on first use.
func (e *GeminiEmbedder) modelFor(ctx context.Context, apiKey string, mode Mode) (*genai.EmbeddingModel, error) {
	modelName := e.docModel
	taskType := genai.TaskTypeRetrievalDocument
	if mode == ModeQuery {
		modelName = e.queryModel
		taskType = genai.TaskTypeRetrievalQuery
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cacheKey := apiKey + "|" + modelName + "|" + string(mode)
	if model, ok := e.models[cacheKey]; ok {
		return model, nil
	}

	client, ok := e.clients[apiKey]
	if !ok {
		var err error
		client, err = genai.NewClient(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("gemini embed: create client: %w", err)
		}
		e.clients[apiKey] = client
	}

	model := client.EmbeddingModel(modelName)
	model.TaskType = taskType
	e.models[cacheKey] = model
	return model, nil
}

// Close releases all cached clients.
func (e *GeminiEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, client := range e.clients {
		client.Close()
	}
	e.clients = make(map[string]*genai.Client)
	e.models = make(map[string]*genai.EmbeddingModel)
	return nil
}
