package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/roastcraft/enrich-cli/internal/resilience"
)

const inferSystemPrompt = `You extract a single product attribute from coffee listing text.
Respond with only a JSON object: {"value": <extracted value or null>, "confidence": <0.0-1.0>}.
Use null for value when the text does not state the attribute. Do not guess.`

// AnthropicService implements Service against the Anthropic Messages API.
type AnthropicService struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewAnthropicService creates a service using the given API key and model.
func NewAnthropicService(apiKey, model string, maxTokens int64) *AnthropicService {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicService{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Infer asks the model for one field value and parses its JSON reply.
func (s *AnthropicService) Infer(ctx context.Context, req InferRequest) (*InferResponse, error) {
	prompt := fmt.Sprintf("Attribute: %s\n\nListing text:\n%s", req.Field, req.Excerpt)

	msg, err := s.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(s.model),
		MaxTokens: s.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: inferSystemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, classifyAPIError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	resp := &InferResponse{
		Model:        string(msg.Model),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	if err := parseInference(text.String(), resp); err != nil {
		return nil, resilience.NewServiceError(resilience.KindPermanent,
			eris.Wrap(err, "fallback: parse inference"), 0)
	}
	return resp, nil
}

// classifyAPIError maps an SDK error onto the retry taxonomy using its
// HTTP status when one is available.
func classifyAPIError(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		kind := resilience.ClassifyStatus(apierr.StatusCode)
		return resilience.NewServiceError(kind,
			eris.Wrap(err, "fallback: create message"), apierr.StatusCode)
	}
	return eris.Wrap(err, "fallback: create message")
}

type inferencePayload struct {
	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence"`
}

func parseInference(raw string, resp *InferResponse) error {
	raw = strings.TrimSpace(raw)

	// Models occasionally wrap JSON in a fenced block.
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}

	var payload inferencePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return eris.Wrapf(err, "unmarshal response %q", truncate(raw, 120))
	}

	resp.Value = payload.Value
	if payload.Confidence != nil {
		resp.Confidence = *payload.Confidence
		resp.HasConfidence = true
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
