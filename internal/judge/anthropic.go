package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tracewatch/tracewatch/internal/models"
)

const (
	verdictToolName   = "record_verdict"
	listStepsToolName = "list_trace_steps"
	getStepToolName   = "get_trace_step"

	// maxExplorationTurns bounds how many tool-call rounds an exploring
	// judge may take before we give up on it. The per-pair timeout is the
	// real bound; this guards against a judge that loops without ever
	// recording a verdict.
	maxExplorationTurns = 16
)

// AnthropicCapability is the production judgment backend, driving a
// Claude model through a forced verdict tool. Trace-exploring requests
// additionally expose step-query tools the model may call any number of
// times before recording its verdict.
type AnthropicCapability struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicCapability wraps an anthropic client. The client carries
// its own credentials and endpoint configuration.
func NewAnthropicCapability(client anthropic.Client) *AnthropicCapability {
	return &AnthropicCapability{
		client:    client,
		maxTokens: 2048,
	}
}

// Judge implements [Capability].
func (c *AnthropicCapability) Judge(ctx context.Context, req *Request) (*Judgment, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, &Fault{Retryable: false, Err: err}
	}

	var recorded *Judgment

	tools := []anthropic.ToolUnionParam{{OfTool: c.verdictTool(req, &recorded)}}
	if req.Trace != nil {
		tools = append(tools, c.traceTools(ctx, req.Trace)...)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: c.maxTokens,
		Tools:     tools,
		System: []anthropic.TextBlockParam{{
			Text: "You are an evaluation judge. Follow the instructions exactly and record your final answer by calling " + verdictToolName + ". Do not answer in plain text.",
		}},
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)},
		}},
	}

	for turn := 0; turn < maxExplorationTurns; turn++ {
		message, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, classifyFault(err)
		}

		var toolResults []anthropic.ContentBlockParamUnion
		for _, content := range message.Content {
			if content.Type != "tool_use" {
				continue
			}

			result := c.dispatchTool(ctx, req, content.Name, content.Input, &recorded)
			resultBytes, err := json.Marshal(result)
			if err != nil {
				return nil, &Fault{Retryable: false, Err: fmt.Errorf("marshaling tool result: %w", err)}
			}

			toolResults = append(toolResults, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: content.ID,
					Content: []anthropic.ToolResultBlockParamContentUnion{{
						OfText: &anthropic.TextBlockParam{Text: string(resultBytes)},
					}},
				},
			})
		}

		if recorded != nil {
			return recorded, nil
		}

		if len(toolResults) == 0 {
			return nil, &Fault{Retryable: false, Err: errors.New("judge answered without recording a verdict")}
		}

		params.Messages = append(params.Messages, message.ToParam())
		params.Messages = append(params.Messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: toolResults,
		})
	}

	return nil, &Fault{Retryable: false, Err: fmt.Errorf("judge did not record a verdict within %d turns", maxExplorationTurns)}
}

func (c *AnthropicCapability) verdictTool(req *Request, recorded **Judgment) *anthropic.ToolParam {
	valueSchema := map[string]any{}
	switch req.ValueType {
	case models.ValueTypeBoolean:
		valueSchema = map[string]any{"type": "boolean", "description": "The verdict: true or false."}
	case models.ValueTypeNumeric:
		valueSchema = map[string]any{"type": "number", "description": "The numeric verdict score."}
	case models.ValueTypeCategorical:
		valueSchema = map[string]any{
			"type":        "string",
			"enum":        req.Labels,
			"description": "The verdict label.",
		}
	}

	return &anthropic.ToolParam{
		Name:        verdictToolName,
		Description: anthropic.String("Record the final verdict. Call exactly once, after you have finished evaluating."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type: "object",
			Properties: map[string]any{
				"value": valueSchema,
				"rationale": map[string]any{
					"type":        "string",
					"description": "Brief explanation of the verdict.",
				},
			},
			Required: []string{"value", "rationale"},
		},
	}
}

func (c *AnthropicCapability) traceTools(ctx context.Context, querier TraceQuerier) []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{OfTool: &anthropic.ToolParam{
			Name:        listStepsToolName,
			Description: anthropic.String("List the ordered execution steps of the trace under evaluation (name, kind, timing, error)."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: map[string]any{},
			},
		}},
		{OfTool: &anthropic.ToolParam{
			Name:        getStepToolName,
			Description: anthropic.String("Fetch one execution step by index, including its full inputs and outputs."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type: "object",
				Properties: map[string]any{
					"index": map[string]any{
						"type":        "integer",
						"description": "Zero-based step index.",
					},
				},
				Required: []string{"index"},
			},
		}},
	}
}

func (c *AnthropicCapability) dispatchTool(ctx context.Context, req *Request, name string, input json.RawMessage, recorded **Judgment) map[string]any {
	switch name {
	case verdictToolName:
		var args struct {
			Value     any    `json:"value"`
			Rationale string `json:"rationale"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return map[string]any{"error": fmt.Sprintf("invalid verdict arguments: %v", err)}
		}

		value, err := Coerce(args.Value, req.ValueType, req.Labels)
		if err != nil {
			// Give the judge one shot at correcting its own type error
			// instead of failing the pair outright.
			return map[string]any{"error": fmt.Sprintf("verdict rejected: %v", err)}
		}

		*recorded = &Judgment{Value: value, Rationale: args.Rationale}
		return map[string]any{"status": "recorded"}

	case listStepsToolName:
		if req.Trace == nil {
			return map[string]any{"error": "trace exploration is not enabled for this scorer"}
		}
		steps, err := req.Trace.Steps(ctx)
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		summaries := make([]map[string]any, 0, len(steps))
		for _, s := range steps {
			summaries = append(summaries, map[string]any{
				"index":       s.Index,
				"name":        s.Name,
				"kind":        s.Kind,
				"duration_ms": s.DurationMs(),
				"error":       s.ErrorMsg,
			})
		}
		return map[string]any{"steps": summaries}

	case getStepToolName:
		if req.Trace == nil {
			return map[string]any{"error": "trace exploration is not enabled for this scorer"}
		}
		var args struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return map[string]any{"error": fmt.Sprintf("invalid step arguments: %v", err)}
		}
		step, err := req.Trace.Step(ctx, args.Index)
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		return map[string]any{"step": step}

	default:
		slog.Warn("judge requested unknown tool", "tool", name)
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", name)}
	}
}

// buildPrompt renders the request into the judge's user message: the
// instructions followed by the declared context payloads as JSON blocks.
func buildPrompt(req *Request) (string, error) {
	prompt := req.Instructions + "\n"

	for _, v := range models.AllTemplateVars {
		payload, ok := req.Context[v]
		if !ok {
			continue
		}
		if v == models.VarTrace && req.Trace != nil {
			// Exploring judges pull steps through the query tools instead
			// of an inline dump.
			prompt += fmt.Sprintf("\nThe execution trace is available through the %s and %s tools.\n", listStepsToolName, getStepToolName)
			continue
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling %s payload: %w", v, err)
		}
		prompt += fmt.Sprintf("\n## %s\n```json\n%s\n```\n", v, data)
	}

	return prompt, nil
}

// classifyFault maps anthropic API errors onto the retryable/terminal
// fault split. Rate limit, overloaded, and transient gateway errors are
// worth one retry; everything else is terminal for the pair.
func classifyFault(err error) *Fault {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 503, 504, 529:
			return &Fault{Retryable: true, Err: err}
		}
	}
	return &Fault{Retryable: false, Err: err}
}
