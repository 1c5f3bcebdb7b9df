// Package schema holds the content units flowing through ingestion and query pipelines:
// documents, the nodes parsed from them and scored retrieval results.
package schema
