package participant

import (
	"context"
	"slices"
	"strings"

	"github.com/hpungsan/testsmith/internal/locate"
)

// AutoAsker answers every question from fixed values, for non-interactive
// runs.
type AutoAsker struct {
	locate.StaticPrompter

	// Project is "current" to write into the workspace, "new" to set up a
	// project, or empty to only display the test.
	Project     string
	ProjectName string
	ParentDir   string
}

func (a AutoAsker) Choose(ctx context.Context, title string, options []string) (string, bool, error) {
	if slices.Contains(options, choiceNew) {
		if a.Project == "current" {
			if slices.Contains(options, choiceCurrent) {
				return choiceCurrent, true, nil
			}
			return "", false, nil
		}
		// For display only, Input declines the project name and setup is skipped.
		return choiceNew, true, nil
	}
	return a.StaticPrompter.Choose(ctx, title, options)
}

func (a AutoAsker) Input(_ context.Context, prompt, placeholder string) (string, bool, error) {
	switch {
	case strings.Contains(prompt, "project name"):
		if a.Project != "new" {
			return "", false, nil
		}
		if a.ProjectName == "" {
			return placeholder, true, nil
		}
		return a.ProjectName, true, nil
	case strings.Contains(prompt, "location"):
		if a.ParentDir == "" {
			return placeholder, true, nil
		}
		return a.ParentDir, true, nil
	}
	return placeholder, true, nil
}
