package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agent-api/core/agent"
)

// FrameAnalysis is the structured output of one vision-model call.
type FrameAnalysis struct {
	SceneDescription string   `json:"scene_description"`
	VisualElements   []string `json:"visual_elements"`
	OnScreenText     string   `json:"on_screen_text"`
	ContentType      string   `json:"content_type"`
	Raw              string   `json:"-"`
}

// VisionClient is the external vision-model collaborator: one frame
// image in, one structured analysis out.
type VisionClient interface {
	Analyze(ctx context.Context, imagePath string) (*FrameAnalysis, error)
}

const visionPrompt = `Analyze this video frame. Respond with a JSON object with exactly these keys:
"scene_description": one or two sentences describing what is shown,
"visual_elements": an array of short labels for visible objects and UI elements,
"on_screen_text": any readable text in the frame, or "" if none,
"content_type": one of "code", "diagram", "chart", "table", "presentation", "terminal", "screenshot", "talking_head", "demo", "other".`

// AgentClient drives the Ollama vision agent.
type AgentClient struct {
	agent *agent.Agent
}

// NewAgentClient wraps a configured vision agent.
func NewAgentClient(a *agent.Agent) *AgentClient {
	return &AgentClient{agent: a}
}

// Analyze sends one frame to the vision model and parses its response.
func (c *AgentClient) Analyze(ctx context.Context, imagePath string) (*FrameAnalysis, error) {
	response, err := c.agent.Run(
		ctx,
		agent.WithInput(visionPrompt),
		agent.WithImagePath(imagePath),
	)
	if err != nil {
		return nil, err
	}
	if len(response.Messages) == 0 {
		return nil, fmt.Errorf("no response messages received from model")
	}

	content := response.Messages[len(response.Messages)-1].Content
	return parseAnalysis(content), nil
}

// parseAnalysis decodes the model's JSON reply, tolerating code fences
// and surrounding prose. A reply that cannot be decoded still yields a
// usable analysis: the whole text becomes the scene description, and
// the raw payload marks the frame as analyzed either way.
func parseAnalysis(content string) *FrameAnalysis {
	analysis := &FrameAnalysis{Raw: content}

	candidate := strings.TrimSpace(content)
	if start := strings.Index(candidate, "{"); start >= 0 {
		if end := strings.LastIndex(candidate, "}"); end > start {
			candidate = candidate[start : end+1]
		}
	}

	var parsed FrameAnalysis
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		analysis.SceneDescription = strings.TrimSpace(content)
		return analysis
	}

	analysis.SceneDescription = strings.TrimSpace(parsed.SceneDescription)
	analysis.OnScreenText = strings.TrimSpace(parsed.OnScreenText)
	analysis.ContentType = strings.ToLower(strings.TrimSpace(parsed.ContentType))
	for _, element := range parsed.VisualElements {
		if element = strings.TrimSpace(element); element != "" {
			analysis.VisualElements = append(analysis.VisualElements, element)
		}
	}
	return analysis
}
