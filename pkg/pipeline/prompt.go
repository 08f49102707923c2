package pipeline

import (
	"fmt"
	"strings"

	"github.com/vedicpedia/ragserver/pkg/vector"
)

// defaultPromptTemplate frames the model as a research scholar and carries
// the retrieved context plus the user question.
const defaultPromptTemplate = `
You are an experienced research scholar and academic expert with deep knowledge in various fields. Your role is to provide well-researched, analytical, and evidence-based responses to academic and research-related queries.

Guidelines for your response:
1. Analyze the provided context thoroughly and draw meaningful insights
2. Support your answers with specific evidence from the context
3. Maintain academic rigor while ensuring clarity
4. If the context is insufficient, acknowledge limitations and suggest potential research directions
5. Structure your response with:
   - Key findings/insights
   - Supporting evidence
   - Critical analysis
   - Implications or applications
   - Areas for further research (if applicable)

Context information:
{context}



User Question: {question}

Answer like Chatbot dont use any other text
`

// Canned answers returned instead of errors.
const (
	noResultsAnswer = "I couldn't find any relevant information to answer your question."
	errorAnswerFmt  = "I encountered an error while processing your question: %s"
)

// renderPrompt fills the {context} and {question} placeholders.
func renderPrompt(template, context, question string) string {
	if template == "" {
		template = defaultPromptTemplate
	}
	s := strings.ReplaceAll(template, "{context}", context)
	return strings.ReplaceAll(s, "{question}", question)
}

// formatDocuments assembles retrieved matches into the numbered context
// block handed to the model.
func formatDocuments(matches []vector.Match) string {
	if len(matches) == 0 {
		return "No relevant documents found."
	}

	formatted := make([]string, 0, len(matches))
	for i, m := range matches {
		formatted = append(formatted, fmt.Sprintf("[Document %d]\n\nContent:\n%s\n", i+1, m.Metadata[vector.MetaText]))
	}
	return strings.Join(formatted, "\n")
}
