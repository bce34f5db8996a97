// Package rag retrieves persona knowledge snippets for grounding answers.
// The primary backend is a Qdrant vector store; a keyword fallback serves
// when the store is unreachable or disabled.
package rag

import "context"

// Document is one retrieved knowledge snippet
type Document struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    float64                `json:"score"`
}

// Retriever finds the snippets most relevant to a query for one persona
type Retriever interface {
	Search(ctx context.Context, persona, query string, topK int) ([]Document, error)
}
