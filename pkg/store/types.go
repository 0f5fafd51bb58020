package store

// Chunk represents a retrievable unit of document text for the RAG system.
// IDs are stable and globally unique, formed as "<document_name>::chunk<index>".
type Chunk struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}
