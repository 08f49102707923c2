package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vedicpedia/ragserver/pkg/blob"
	"github.com/vedicpedia/ragserver/pkg/config"
	"github.com/vedicpedia/ragserver/pkg/embedder"
	"github.com/vedicpedia/ragserver/pkg/llms"
	"github.com/vedicpedia/ragserver/pkg/metrics"
	"github.com/vedicpedia/ragserver/pkg/utils"
	"github.com/vedicpedia/ragserver/pkg/vector"
)

// Source is one cited document in a query answer.
type Source struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	BlobURL    string `json:"s3_url,omitempty"`
}

// QueryResult is the answer to one question. Sources list the documents the
// answer drew on, deduplicated and in retrieval order.
type QueryResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Success bool     `json:"success"`
}

// Query answers questions over the indexed corpus. Answer never returns an
// error: failures become canned answers with Success=false. Citations come
// entirely from denormalized chunk metadata; the metadata store is never
// consulted on the query path.
type Query struct {
	vectors  vector.Provider
	embedder embedder.Embedder
	llm      llms.Provider
	blobs    blob.Store
	tokens   *utils.TokenCounter
	cfg      config.QueryConfig
}

// NewQuery wires the query pipeline. The token counter is optional; without
// it the context budget falls back to a character estimate.
func NewQuery(
	vectors vector.Provider,
	emb embedder.Embedder,
	llm llms.Provider,
	blobs blob.Store,
	tokens *utils.TokenCounter,
	cfg config.QueryConfig,
) *Query {
	return &Query{
		vectors:  vectors,
		embedder: emb,
		llm:      llm,
		blobs:    blobs,
		tokens:   tokens,
		cfg:      cfg,
	}
}

// Answer retrieves the TopK nearest chunks, reranks them down to RerankKeep,
// and asks the model for an answer grounded in that context.
func (q *Query) Answer(ctx context.Context, question string) QueryResult {
	start := time.Now()
	log := slog.With("question_len", len(question))

	queryVec, err := q.embedder.Embed(ctx, question)
	if err != nil {
		log.Error("failed to embed question", "error", err)
		metrics.QueriesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return errorResult(err)
	}

	matches, err := q.vectors.Search(ctx, queryVec, q.cfg.TopK)
	if err != nil {
		log.Error("retrieval failed", "error", err)
		metrics.QueriesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return errorResult(err)
	}
	if len(matches) == 0 {
		log.Warn("no documents retrieved for query")
		metrics.QueriesTotal.WithLabelValues(metrics.OutcomeNoResults).Inc()
		return QueryResult{Answer: noResultsAnswer, Sources: []Source{}, Success: false}
	}

	matches = rerank(matches, q.cfg.RerankKeep)
	matches = q.fitContextBudget(matches)

	prompt := renderPrompt(q.cfg.PromptTemplate, formatDocuments(matches), question)

	resp := q.llm.Generate(ctx, prompt)
	if resp.Err != nil {
		log.Error("generation failed", "provider", q.llm.Name(), "error", resp.Err)
		metrics.QueriesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return errorResult(resp.Err)
	}

	metrics.QueriesTotal.WithLabelValues(metrics.OutcomeAnswered).Inc()
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	log.Info("query answered", "matches", len(matches), "elapsed", time.Since(start))

	return QueryResult{
		Answer:  resp.Text,
		Sources: q.sources(matches),
		Success: true,
	}
}

// rerank orders matches by descending score and keeps the best keep entries.
func rerank(matches []vector.Match, keep int) []vector.Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if keep > 0 && len(matches) > keep {
		matches = matches[:keep]
	}
	return matches
}

// fitContextBudget drops trailing matches once the assembled context would
// exceed the token budget. At least one match always survives.
func (q *Query) fitContextBudget(matches []vector.Match) []vector.Match {
	budget := q.cfg.MaxContextTokens
	if budget <= 0 {
		return matches
	}

	total := 0
	for i, m := range matches {
		text := m.Metadata[vector.MetaText]
		var cost int
		if q.tokens != nil {
			cost = q.tokens.Count(text)
		} else {
			cost = utils.EstimateTokens(text)
		}
		total += cost
		if total > budget && i > 0 {
			return matches[:i]
		}
	}
	return matches
}

// sources builds the citation list: one entry per distinct document, in
// retrieval order. The public URL is reconstructed from the blob key carried
// in the chunk metadata, with no store round trip.
func (q *Query) sources(matches []vector.Match) []Source {
	seen := make(map[string]bool)
	sources := make([]Source, 0, len(matches))

	for _, m := range matches {
		docID := m.Metadata[vector.MetaDocumentID]
		if docID == "" || seen[docID] {
			continue
		}
		seen[docID] = true

		src := Source{
			DocumentID: docID,
			Filename:   m.Metadata[vector.MetaFilename],
		}
		if key := m.Metadata[vector.MetaBlobKey]; key != "" {
			src.BlobURL = q.blobs.PublicURL(key)
		} else {
			slog.Warn("match missing blob key metadata", "document_id", docID)
		}
		sources = append(sources, src)
	}
	return sources
}

func errorResult(err error) QueryResult {
	return QueryResult{
		Answer:  fmt.Sprintf(errorAnswerFmt, err.Error()),
		Sources: []Source{},
		Success: false,
	}
}
