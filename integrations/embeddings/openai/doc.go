// Package openai is the OpenAI-compatible embeddings integration.
package openai
