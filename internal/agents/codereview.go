package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"repogator/internal/github"
)

// CodeReview summarizes an opened pull request from its diff.
type CodeReview struct {
	gh *github.Client
}

// NewCodeReview constructs the code review agent.
func NewCodeReview(gh *github.Client) *CodeReview {
	return &CodeReview{gh: gh}
}

func (a *CodeReview) Name() string { return "code_review_agent" }

func (a *CodeReview) Process(ctx context.Context, in Input) (*Result, error) {
	diff := in.Diff
	if diff == "" {
		fetched, err := a.gh.GetPRDiff(ctx, in.Repo, in.Number)
		if err != nil {
			return nil, fmt.Errorf("fetch pr diff: %w", err)
		}
		diff = fetched
	}

	files, additions, deletions := diffStats(diff)

	var sb strings.Builder
	sb.WriteString("## Code Review\n\n")
	fmt.Fprintf(&sb, "**PR:** %s\n\n", in.Title)
	fmt.Fprintf(&sb, "Touches %d file(s): +%d / -%d lines.\n", files, additions, deletions)

	raw, _ := json.Marshal(map[string]any{
		"files":     files,
		"additions": additions,
		"deletions": deletions,
	})
	return &Result{FormattedComment: sb.String(), Raw: raw}, nil
}

func diffStats(diff string) (files, additions, deletions int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git"):
			files++
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			additions++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			deletions++
		}
	}
	return files, additions, deletions
}
