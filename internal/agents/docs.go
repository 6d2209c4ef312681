package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"repogator/internal/knowledge"
)

// Docs proposes documentation updates for a merged pull request, anchored by
// existing documentation retrieved from the knowledge base.
type Docs struct {
	kb *knowledge.Base
}

// NewDocs constructs the docs agent.
func NewDocs(kb *knowledge.Base) *Docs {
	return &Docs{kb: kb}
}

func (a *Docs) Name() string { return "docs_agent" }

func (a *Docs) Process(ctx context.Context, in Input) (*Result, error) {
	query := in.Title
	if in.Body != "" {
		query += "\n" + in.Body
	}
	snippets, err := a.kb.Retrieve(ctx, "docs", in.TenantID, query, 3)
	if err != nil {
		return nil, fmt.Errorf("retrieve docs context: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("## Documentation Update\n\n")
	fmt.Fprintf(&sb, "**Merged PR:** %s\n\n", in.Title)
	if len(snippets) > 0 {
		sb.WriteString("Existing docs that may need updates:\n")
		for _, s := range snippets {
			fmt.Fprintf(&sb, "- %s\n", firstLine(s.Text))
		}
	} else {
		sb.WriteString("No existing documentation matched this change.\n")
	}

	raw, _ := json.Marshal(map[string]any{"context_snippets": len(snippets)})
	return &Result{FormattedComment: sb.String(), Raw: raw}, nil
}
