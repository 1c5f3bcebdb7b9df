package schema

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/minio/highwayhash"
)

// hashKey is the fixed highwayhash key, so ids stay stable across runs.
var hashKey = []byte("go-query-pipeline/schema/hashkey")

// Hash returns the hex highwayhash of text.
func Hash(text string) string {
	sum := highwayhash.Sum64([]byte(text), hashKey)

	return hex.EncodeToString(binary.BigEndian.AppendUint64(nil, sum))
}

// Document is raw ingested content.
type Document struct {
	ID       string         `json:"id" yaml:"id"`
	Text     string         `json:"text" yaml:"text"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewDocument creates a document whose id is the hash of text.
func NewDocument(text string, metadata map[string]any) *Document {
	if metadata == nil {
		metadata = map[string]any{}
	}

	return &Document{
		ID:       Hash(text),
		Text:     text,
		Metadata: metadata,
	}
}

// Hash returns the hash of the document text.
func (d *Document) Hash() string {
	return Hash(d.Text)
}

// EnsureID sets the id from the text hash when it is empty.
func (d *Document) EnsureID() {
	if d.ID == "" {
		d.ID = d.Hash()
	}
}
