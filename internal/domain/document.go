package domain

// Source identifies where a document originated.
type Source string

const (
	// SourceEmail marks documents extracted from email.
	SourceEmail Source = "email"
	// SourceFile marks documents extracted from uploaded files.
	SourceFile Source = "file"
	// SourceChat marks documents extracted from chat transcripts.
	SourceChat Source = "chat"
)

// DocumentMetadata describes a document supplied by the caller.
type DocumentMetadata struct {
	Source    Source `json:"source,omitempty"`
	SourceID  string `json:"source_id,omitempty"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	Author    string `json:"author,omitempty"`
}

// Document is a unit of content to upsert. ID is optional; the ingest
// pipeline assigns one when absent.
type Document struct {
	ID       string            `json:"id,omitempty"`
	Text     string            `json:"text"`
	Metadata *DocumentMetadata `json:"metadata,omitempty"`
}

// ChunkMetadata is the document metadata plus the owning document ID,
// denormalized onto every stored chunk.
type ChunkMetadata struct {
	DocumentMetadata
	DocumentID string `json:"document_id,omitempty"`
}

// Chunk is the stored unit: a slice of a document's text with its
// embedding vector. Chunk IDs are "<documentID>_<n>".
type Chunk struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"embedding,omitempty"`
}
