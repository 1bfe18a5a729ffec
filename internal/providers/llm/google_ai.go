package llm

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// GoogleAI talks to the Gemini API with an API key instead of a GCP
// service account.
type GoogleAI struct {
	client    *googleai.GoogleAI
	modelName string
}

func NewGoogleAI(ctx context.Context, apiKey, modelName string) (*GoogleAI, error) {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	c, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(modelName),
	)
	if err != nil {
		return nil, err
	}
	return &GoogleAI{client: c, modelName: modelName}, nil
}

func (g *GoogleAI) Close() error { return nil }

func (g *GoogleAI) Model() string { return g.modelName }

func (g *GoogleAI) StreamAnswer(ctx context.Context, req Request) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	parts := make([]llms.ContentPart, 0, len(req.Attachments)+1)
	for _, a := range req.Attachments {
		parts = append(parts, llms.BinaryPart(a.MIMEType, a.Data))
	}
	parts = append(parts, llms.TextPart(req.Prompt))

	opts := []llms.CallOption{
		llms.WithTemperature(float64(req.Temperature)),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			select {
			case out <- string(chunk):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}),
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	go func() {
		defer close(out)
		defer close(errs)

		_, err := g.client.GenerateContent(ctx, []llms.MessageContent{
			{Role: llms.ChatMessageTypeHuman, Parts: parts},
		}, opts...)
		if err != nil {
			errs <- err
		}
	}()

	return out, errs
}
