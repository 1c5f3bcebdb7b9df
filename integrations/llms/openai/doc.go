// Package openai is the OpenAI-compatible chat completions LLM integration.
//
// Any server exposing POST {base}/chat/completions with the OpenAI request and response
// bodies can be used by setting the base URL.
package openai
