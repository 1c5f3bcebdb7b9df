// Package sqlite is the SQLite vector store integration. Nodes live in a single table with
// their metadata as JSON and their embedding as a little-endian float32 blob; queries rank
// every matching row by cosine similarity.
package sqlite
