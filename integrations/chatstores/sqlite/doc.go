// Package sqlite is the SQLite chat store integration. Every message is a row holding the
// message as JSON; the row sequence gives the order of a conversation.
package sqlite
