package vector

import (
	"fmt"

	"github.com/vedicpedia/ragserver/pkg/config"
)

// NewProvider builds the configured vector store backend.
func NewProvider(cfg config.VectorConfig) (Provider, error) {
	switch cfg.Provider {
	case "pinecone":
		return NewPineconeProvider(cfg.Pinecone)
	case "qdrant":
		return NewQdrantProvider(cfg.Qdrant)
	case "chromem":
		return NewChromemProvider(cfg.Chromem)
	default:
		return nil, fmt.Errorf("unknown vector provider: %q", cfg.Provider)
	}
}
