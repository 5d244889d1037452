package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ShayCichocki/appforge/pkg/models"
)

// ErrGenerationFailed is returned when the model call fails or yields no app.
var ErrGenerationFailed = errors.New("generation failed")

// Generator produces the files for one task request.
type Generator struct {
	llm Completer
	now func() time.Time
}

// NewGenerator creates a Generator backed by the given completer.
func NewGenerator(llm Completer) *Generator {
	return &Generator{llm: llm, now: time.Now}
}

// Generate asks the model for the app and synthesizes README and LICENSE locally.
func (g *Generator) Generate(ctx context.Context, req models.TaskRequest) (models.GeneratedArtifact, error) {
	prompt := BuildPrompt(req.Brief)

	start := g.now()
	out, err := g.llm.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		return models.GeneratedArtifact{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	content := unwrapFence(out)
	if strings.TrimSpace(content) == "" {
		return models.GeneratedArtifact{}, fmt.Errorf("%w: model returned no content", ErrGenerationFailed)
	}
	log.Printf("[generate] task %q: %d bytes in %s", req.Task, len(content), g.now().Sub(start).Round(time.Millisecond))

	return models.GeneratedArtifact{
		Content: content,
		Readme:  Readme(req),
		License: License(g.now().Year(), licenseHolder(req)),
	}, nil
}

// unwrapFence strips a markdown code fence that wraps the entire response.
// Responses with prose around the fence, or several fences, are left as is.
func unwrapFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return s
	}

	body := strings.TrimSuffix(trimmed, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return s
	}
	body = body[nl+1:]
	if strings.Contains(body, "```") {
		return s
	}
	return strings.TrimRight(body, "\n") + "\n"
}

func licenseHolder(req models.TaskRequest) string {
	if req.Email != "" {
		return req.Email
	}
	return "the project authors"
}
