// Package llm provides the language model clients used by the agent loop and
// by delegated reasoning calls.
//
// A Client sends a message history and returns exactly one decoded JSON
// object. Failures are reported as *Error with one of three kinds: provider
// (transport, auth or HTTP status), malformed response (content is not a
// single JSON object) and empty response (no content). Callers match them
// with errors.Is against ErrProvider, ErrMalformedResponse and ErrEmptyResponse.
//
// Two providers are implemented:
//
//   - OpenAIClient for OpenAI-compatible endpoints (OpenRouter by default),
//     requesting the json_object response format.
//   - AnthropicClient for Claude, which extracts the object from the text reply.
package llm
