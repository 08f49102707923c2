package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/vedicpedia/ragserver/pkg/config"
	"github.com/vedicpedia/ragserver/pkg/llms"
	"github.com/vedicpedia/ragserver/pkg/vector"
)

func newTestQuery(vectors *fakeVectorProvider, blobs *fakeBlobStore, llm *fakeLLM) *Query {
	cfg := config.QueryConfig{}
	cfg.SetDefaults()
	return NewQuery(vectors, &fakeEmbedder{dim: 4}, llm, blobs, nil, cfg)
}

func match(docID string, score float32, text string) vector.Match {
	return vector.Match{
		ID:    docID + "_0",
		Score: score,
		Metadata: map[string]string{
			vector.MetaText:       text,
			vector.MetaDocumentID: docID,
			vector.MetaFilename:   docID + ".pdf",
			vector.MetaBlobKey:    "uploads/" + docID + "/" + docID + ".pdf",
		},
	}
}

func TestAnswerNoResults(t *testing.T) {
	q := newTestQuery(newFakeVectorProvider(), newFakeBlobStore(), &fakeLLM{})

	result := q.Answer(context.Background(), "anything")
	if result.Success {
		t.Error("expected success=false for empty retrieval")
	}
	if result.Answer != "I couldn't find any relevant information to answer your question." {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected empty sources, got %v", result.Sources)
	}
}

func TestAnswerLLMError(t *testing.T) {
	vectors := newFakeVectorProvider()
	vectors.searchResult = []vector.Match{match("doc1", 0.9, "relevant text")}
	llm := &fakeLLM{resp: llms.Response{Err: fmt.Errorf("model unavailable")}}
	q := newTestQuery(vectors, newFakeBlobStore(), llm)

	result := q.Answer(context.Background(), "question")
	if result.Success {
		t.Error("expected success=false when generation fails")
	}
	want := "I encountered an error while processing your question: model unavailable"
	if result.Answer != want {
		t.Errorf("answer = %q, want %q", result.Answer, want)
	}
}

func TestAnswerSuccess(t *testing.T) {
	blobs := newFakeBlobStore()
	vectors := newFakeVectorProvider()

	vectors.searchResult = []vector.Match{
		match("doc1", 0.92, "the speed of light is constant"),
		match("doc1", 0.88, "relativity reshaped physics"),
	}

	llm := &fakeLLM{resp: llms.Response{Text: "a grounded answer"}}
	q := newTestQuery(vectors, blobs, llm)

	result := q.Answer(context.Background(), "what did relativity change?")
	if !result.Success {
		t.Fatalf("expected success, got answer %q", result.Answer)
	}
	if result.Answer != "a grounded answer" {
		t.Errorf("unexpected answer: %q", result.Answer)
	}

	// Both matches come from the same document; sources are deduplicated.
	if len(result.Sources) != 1 {
		t.Fatalf("expected 1 deduplicated source, got %d", len(result.Sources))
	}
	src := result.Sources[0]
	if src.DocumentID != "doc1" {
		t.Errorf("unexpected source document id %q", src.DocumentID)
	}
	if src.BlobURL != "https://docs.example.com/uploads/doc1/doc1.pdf" {
		t.Errorf("unexpected source url %q", src.BlobURL)
	}

	// The prompt carries the retrieved context and the question.
	if !strings.Contains(llm.lastPrompt, "[Document 1]") {
		t.Error("prompt missing numbered context block")
	}
	if !strings.Contains(llm.lastPrompt, "what did relativity change?") {
		t.Error("prompt missing the question")
	}
}

func TestSourcesFromChunkMetadataOnly(t *testing.T) {
	// Citation URLs must come from the blob key denormalized into the chunk
	// metadata at ingest time; no document record exists anywhere here.
	blobs := newFakeBlobStore()
	q := newTestQuery(newFakeVectorProvider(), blobs, &fakeLLM{})

	sources := q.sources([]vector.Match{
		match("docA", 0.9, "text a"),
		match("docB", 0.8, "text b"),
	})
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].BlobURL != "https://docs.example.com/uploads/docA/docA.pdf" {
		t.Errorf("unexpected url for first source: %q", sources[0].BlobURL)
	}
	if sources[1].Filename != "docB.pdf" {
		t.Errorf("unexpected filename for second source: %q", sources[1].Filename)
	}

	// A match without a blob key still yields a source, just without a URL.
	bare := vector.Match{ID: "docC_0", Metadata: map[string]string{
		vector.MetaDocumentID: "docC",
		vector.MetaFilename:   "docC.pdf",
	}}
	sources = q.sources([]vector.Match{bare})
	if len(sources) != 1 || sources[0].BlobURL != "" {
		t.Errorf("expected URL-less source for missing blob key, got %+v", sources)
	}
}

func TestRerankOrdersAndTruncates(t *testing.T) {
	matches := []vector.Match{
		match("a", 0.5, "a"),
		match("b", 0.9, "b"),
		match("c", 0.7, "c"),
	}

	kept := rerank(matches, 2)
	if len(kept) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(kept))
	}
	if kept[0].Score != 0.9 || kept[1].Score != 0.7 {
		t.Errorf("unexpected order: %v, %v", kept[0].Score, kept[1].Score)
	}
}

func TestFitContextBudgetKeepsFirstMatch(t *testing.T) {
	cfg := config.QueryConfig{TopK: 10, RerankKeep: 5, MaxContextTokens: 10}
	q := NewQuery(newFakeVectorProvider(), &fakeEmbedder{dim: 4}, &fakeLLM{}, newFakeBlobStore(), nil, cfg)

	big := strings.Repeat("long text ", 50)
	matches := []vector.Match{match("a", 0.9, big), match("b", 0.8, big)}

	kept := q.fitContextBudget(matches)
	if len(kept) != 1 {
		t.Errorf("expected budget to keep exactly the first match, got %d", len(kept))
	}
}

func TestFormatDocuments(t *testing.T) {
	got := formatDocuments([]vector.Match{match("a", 0.9, "first"), match("b", 0.8, "second")})
	if !strings.Contains(got, "[Document 1]\n\nContent:\nfirst\n") {
		t.Errorf("missing first document block: %q", got)
	}
	if !strings.Contains(got, "[Document 2]\n\nContent:\nsecond\n") {
		t.Errorf("missing second document block: %q", got)
	}

	if formatDocuments(nil) != "No relevant documents found." {
		t.Error("unexpected empty-context text")
	}
}

func TestRenderPromptPlaceholders(t *testing.T) {
	prompt := renderPrompt("", "CTX", "QST")
	if !strings.Contains(prompt, "CTX") || !strings.Contains(prompt, "QST") {
		t.Error("default template placeholders not filled")
	}
	custom := renderPrompt("Q: {question} C: {context}", "ctx", "why?")
	if custom != "Q: why? C: ctx" {
		t.Errorf("unexpected rendered prompt: %q", custom)
	}
}
