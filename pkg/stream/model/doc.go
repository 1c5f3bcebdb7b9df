// Package model holds the data structures shared by the stream pipeline and its options:
// step descriptions, typed step outputs and the hooks a pipeline option can implement.
package model
