package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"apptchat/internal/models"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements Provider on the Google Generative AI API
// with native function calling.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (g *GeminiProvider) Name() string {
	return "gemini"
}

func (g *GeminiProvider) Close() error {
	return g.client.Close()
}

func (g *GeminiProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	if len(req.Turns) == 0 {
		return nil, &ProviderError{Provider: "gemini", Err: fmt.Errorf("empty conversation")}
	}

	model := g.client.GenerativeModel(g.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if len(req.Functions) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(req.Functions)}}
	}

	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, turn := range req.Turns {
		content, err := turnToContent(turn)
		if err != nil {
			return nil, &ProviderError{Provider: "gemini", Err: err}
		}
		contents = append(contents, content)
	}

	session := model.StartChat()
	session.History = contents[:len(contents)-1]

	resp, err := session.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &ProviderError{Provider: "gemini", Err: fmt.Errorf("empty response")}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			return &Completion{Call: &FunctionCall{Name: p.Name, Args: p.Args}}, nil
		case genai.Text:
			sb.WriteString(string(p))
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, &ProviderError{Provider: "gemini", Err: fmt.Errorf("response had neither text nor function call")}
	}
	return &Completion{Text: text}, nil
}

func turnToContent(turn models.Turn) (*genai.Content, error) {
	switch turn.Role {
	case models.RoleUser:
		return &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(turn.Content)}}, nil

	case models.RoleAssistant:
		if turn.Function != "" {
			args := map[string]any{}
			if len(turn.Args) > 0 {
				if err := json.Unmarshal(turn.Args, &args); err != nil {
					return nil, fmt.Errorf("malformed stored function args: %w", err)
				}
			}
			return &genai.Content{Role: "model", Parts: []genai.Part{genai.FunctionCall{Name: turn.Function, Args: args}}}, nil
		}
		return &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(turn.Content)}}, nil

	case models.RoleFunction:
		response := map[string]any{}
		if err := json.Unmarshal([]byte(turn.Content), &response); err != nil {
			// Non-object results still need to reach the model.
			response = map[string]any{"result": turn.Content}
		}
		return &genai.Content{Role: "function", Parts: []genai.Part{genai.FunctionResponse{Name: turn.Function, Response: response}}}, nil

	default:
		return nil, fmt.Errorf("unknown turn role %q", turn.Role)
	}
}

func toDeclarations(functions []Function) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(functions))
	for _, fn := range functions {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  toGenaiSchema(fn.Parameters),
		})
	}
	return decls
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func genaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "number":
		return genai.TypeNumber
	default:
		return genai.TypeString
	}
}
