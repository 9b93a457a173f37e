package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/attachehq/attache/agent/contract"
	promptx "github.com/attachehq/attache/agent/prompt"
	llmx "github.com/attachehq/attache/pkg/llm"
)

const clarifyOneRequest = "Happy to help, but one thing at a time. Which should I start with?"

// OpenAI resolves intents with a single chat completion against an
// OpenAI-compatible endpoint, declaring every registered action as a tool.
type OpenAI struct {
	client *openaisdk.Client
	cfg    llmx.Config
	system string
}

var _ contractx.Resolver = (*OpenAI)(nil)

func New(client *openaisdk.Client, cfg llmx.Config) (*OpenAI, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: llm client is nil", contractx.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: llm model is empty", contractx.ErrInvalidConfig)
	}
	return &OpenAI{client: client, cfg: cfg, system: promptx.Resolver()}, nil
}

func (r *OpenAI) Resolve(ctx context.Context, text string, actions []contractx.Action) (contractx.Resolution, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(strings.TrimSpace(r.cfg.Model)),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(r.system),
			openaisdk.UserMessage(text),
		},
		Temperature: openaisdk.Float(r.cfg.Temperature),
	}
	if len(actions) > 0 {
		params.Tools = toolsFor(actions)
	}
	if r.cfg.MaxCompletionToken != nil {
		params.MaxCompletionTokens = openaisdk.Int(int64(*r.cfg.MaxCompletionToken))
	}

	completion, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return contractx.Resolution{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return contractx.Resolution{}, fmt.Errorf("chat completion returned no choices")
	}

	msg := completion.Choices[0].Message
	switch len(msg.ToolCalls) {
	case 0:
		return contractx.Resolution{Reply: strings.TrimSpace(msg.Content)}, nil
	case 1:
		call := msg.ToolCalls[0]
		set := contractx.ParameterSet{}
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			if err := json.Unmarshal([]byte(args), &set); err != nil {
				return contractx.Resolution{}, fmt.Errorf("parse arguments for %s: %w", call.Function.Name, err)
			}
		}
		return contractx.Resolution{Action: call.Function.Name, Params: set}, nil
	default:
		// More than one tool call is an ambiguous multi-action request.
		log.Debug().Int("tool_calls", len(msg.ToolCalls)).Msg("model proposed multiple actions")
		return contractx.Resolution{Reply: clarifyOneRequest}, nil
	}
}

func toolsFor(actions []contractx.Action) []openaisdk.ChatCompletionToolUnionParam {
	tools := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(actions))
	for _, a := range actions {
		tools = append(tools, openaisdk.ChatCompletionFunctionTool(openaisdk.FunctionDefinitionParam{
			Name:        a.Name,
			Description: openaisdk.String(a.Description),
			Parameters:  openaisdk.FunctionParameters(a.JSONSchema()),
		}))
	}
	return tools
}
