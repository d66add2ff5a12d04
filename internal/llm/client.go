package llm

import "context"

type Message struct {
	Role    string
	Content string
	// ImageURL optionally attaches an embedded image (a data URL) to a
	// user message. Only the final message of a vision request carries it;
	// stored history stays text-only.
	ImageURL string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}
