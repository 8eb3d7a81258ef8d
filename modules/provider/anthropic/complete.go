package anthropic

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flemzord/mnemo/internal/provider"
)

var tracer = otel.Tracer("github.com/flemzord/mnemo/modules/provider/anthropic")

// Complete sends a synchronous completion request to the Anthropic Messages
// API. Summaries, fact extraction and conversation titles all go through it.
func (a *Anthropic) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "anthropic.complete")
	defer span.End()
	span.SetAttributes(attribute.String("gen_ai.request.model", a.config.Model))

	params := convertRequest(req, &a.config, a.logger)
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		err = mapError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, provider.Reason(err))
		return provider.CompletionResponse{}, err
	}

	resp := convertResponse(msg)
	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
	)
	return resp, nil
}
