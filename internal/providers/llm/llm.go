package llm

import (
	"context"
	"strings"
)

// Attachment is a binary part sent alongside the prompt (resume PDF, image).
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Request describes one generation call. Kind/RefID/UserID are audit
// metadata only and never reach the model.
type Request struct {
	Prompt      string
	Attachments []Attachment
	Temperature float32
	JSON        bool

	Kind   string
	RefID  string
	UserID string
}

type Provider interface {
	// StreamAnswer returns a stream of text chunks (incremental). errs yields
	// at most one error and is closed once the stream ends.
	StreamAnswer(ctx context.Context, req Request) (chunks <-chan string, errs <-chan error)
	Model() string
	Close() error
}

// Collect drains a stream, calling onChunk for every piece, and returns the
// full text.
func Collect(chunks <-chan string, errs <-chan error, onChunk func(string)) (string, error) {
	var full strings.Builder
	for chunk := range chunks {
		full.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	if err := <-errs; err != nil {
		return full.String(), err
	}
	return full.String(), nil
}

// Generate runs a request to completion without streaming callbacks.
func Generate(ctx context.Context, p Provider, req Request) (string, error) {
	chunks, errs := p.StreamAnswer(ctx, req)
	return Collect(chunks, errs, nil)
}
