package participant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/testsmith/internal/locate"
)

func TestAutoAsker(t *testing.T) {
	ctx := context.Background()
	both := []string{choiceNew, choiceCurrent}

	tests := []struct {
		name       string
		asker      AutoAsker
		options    []string
		wantChoice string
		wantOK     bool
	}{
		{"current", AutoAsker{Project: "current"}, both, choiceCurrent, true},
		{"current without roots", AutoAsker{Project: "current"}, []string{choiceNew}, "", false},
		{"new", AutoAsker{Project: "new"}, both, choiceNew, true},
		{"display", AutoAsker{}, both, choiceNew, true},
		{"directory picker", AutoAsker{StaticPrompter: locate.StaticPrompter{Directory: "e2e"}}, []string{"/r/tests", "/r/e2e"}, "/r/e2e", true},
		{"directory picker unmatched", AutoAsker{StaticPrompter: locate.StaticPrompter{Directory: "nope"}}, []string{"/r/tests"}, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := tc.asker.Choose(ctx, "q", tc.options)
			require.NoError(t, err)
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.wantChoice, got)
		})
	}

	_, ok, _ := AutoAsker{}.Input(ctx, "Enter project name", "api-test-automation")
	require.False(t, ok)

	name, ok, _ := AutoAsker{Project: "new"}.Input(ctx, "Enter project name", "api-test-automation")
	require.True(t, ok)
	require.Equal(t, "api-test-automation", name)

	dir, _, _ := AutoAsker{Project: "new", ParentDir: "/tmp/p"}.Input(ctx, "Select location for test project", "/wd")
	require.Equal(t, "/tmp/p", dir)

	yes, _ := AutoAsker{StaticPrompter: locate.StaticPrompter{CreateDir: true}}.Confirm(ctx, "create?")
	require.True(t, yes)
}
