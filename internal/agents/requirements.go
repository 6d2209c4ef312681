package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"repogator/internal/knowledge"
)

// Requirements analyzes a newly opened issue, pulling related context from
// the knowledge base to anchor its summary.
type Requirements struct {
	kb *knowledge.Base
}

// NewRequirements constructs the requirements agent.
func NewRequirements(kb *knowledge.Base) *Requirements {
	return &Requirements{kb: kb}
}

func (a *Requirements) Name() string { return "requirements_agent" }

func (a *Requirements) Process(ctx context.Context, in Input) (*Result, error) {
	query := in.Title
	if in.Body != "" {
		query += "\n" + in.Body
	}
	snippets, err := a.kb.Retrieve(ctx, "requirements", in.TenantID, query, 3)
	if err != nil {
		return nil, fmt.Errorf("retrieve requirements context: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("## Requirements Analysis\n\n")
	fmt.Fprintf(&sb, "**Issue:** %s\n\n", in.Title)
	if len(snippets) > 0 {
		sb.WriteString("Related context:\n")
		for _, s := range snippets {
			fmt.Fprintf(&sb, "- %s\n", firstLine(s.Text))
		}
	} else {
		sb.WriteString("No related context found in the knowledge base.\n")
	}

	raw, _ := json.Marshal(map[string]any{"context_snippets": len(snippets)})
	return &Result{
		FormattedComment: sb.String(),
		SuggestedLabels:  suggestLabels(in.Title, in.Body),
		Raw:              raw,
	}, nil
}

// suggestLabels derives labels from obvious keywords. Anything smarter
// belongs in the external collaborator, not the pipeline.
func suggestLabels(title, body string) []string {
	text := strings.ToLower(title + " " + body)
	var labels []string
	if strings.Contains(text, "bug") || strings.Contains(text, "crash") {
		labels = append(labels, "bug")
	}
	if strings.Contains(text, "feature") || strings.Contains(text, "request") {
		labels = append(labels, "enhancement")
	}
	if strings.Contains(text, "doc") {
		labels = append(labels, "documentation")
	}
	return labels
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
