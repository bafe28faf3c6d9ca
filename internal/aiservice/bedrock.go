package aiservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/types"
)

// BedrockAPI is the subset of the bedrockruntime client this provider uses.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider calls a Bedrock text model, gated live by
// BEDROCK_SUMMARY_ENABLED (SPEC_FULL.md §4.8).
type BedrockProvider struct {
	client  BedrockAPI
	modelID string
}

func NewBedrockProvider(client BedrockAPI, modelID string) *BedrockProvider {
	return &BedrockProvider{client: client, modelID: modelID}
}

type bedrockRequest struct {
	Prompt string `json:"prompt"`
}

type bedrockResponse struct {
	Completion string `json:"completion"`
}

func (p *BedrockProvider) Summarize(ctx context.Context, scope types.DerivedSignal) (string, string, string, error) {
	prompt := fmt.Sprintf(
		"Summarize local produce supply and demand: %d listings, %d requests over %d days, scarcity score %.2f, abundance score %.2f.",
		scope.ListingCount, scope.RequestCount, int(scope.WindowDays), scope.ScarcityScore, scope.AbundanceScore)

	body, err := json.Marshal(bedrockRequest{Prompt: prompt})
	if err != nil {
		return "", "", "", apperrors.Wrap(err, apperrors.Internal, "marshal bedrock request")
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &p.modelID,
		Body:        body,
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		return "", "", "", apperrors.Wrap(err, apperrors.DependencyUnavailable, "bedrock invoke model")
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", "", "", apperrors.Wrap(err, apperrors.DependencyUnavailable, "decode bedrock response")
	}
	return resp.Completion, p.modelID, "bedrock-runtime", nil
}

func strPtr(s string) *string { return &s }
