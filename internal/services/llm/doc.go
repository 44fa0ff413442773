// Package llm is the OpenRouter-compatible chat client used by the
// refine-notes stage to summarize and polish generated notes.
//
// Client.Complete sends one prompt and returns the reply as Markdown, with a
// wrapping code fence removed. Requests that fail with 408, 429 or 5xx, return
// no content, or time out are retried with exponential backoff (1s doubling to
// 10s, five attempts). A Retry-After header overrides the backoff. Context
// cancellation stops retries at once.
package llm
