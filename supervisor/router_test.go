package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

func allWorkerNames() []string {
	names := make([]string, 0, len(types.Collections()))
	for _, c := range types.Collections() {
		names = append(names, workerNameFor(c))
	}
	return names
}

func TestKeywordRouterPicksTopicWorker(t *testing.T) {
	t.Parallel()

	router := NewKeywordRouter(nil)
	cases := map[string]string{
		"How is the salary and bonus at Acme?":      "salary_benefits_expert",
		"Do people work a lot of overtime?":         "work_life_balance_expert",
		"What do reviews say about the management?": "management_expert",
		"Are there promotion opportunities?":        "career_growth_expert",
		"这家公司的文化氛围怎么样？":                            "company_culture_expert",
	}
	for question, want := range cases {
		got, err := router.Route(context.Background(), question, allWorkerNames())
		require.NoError(t, err)
		assert.Equal(t, want, got, "question: %s", question)
	}
}

func TestKeywordRouterDefaultsToCulture(t *testing.T) {
	t.Parallel()

	router := NewKeywordRouter(nil)
	got, err := router.Route(context.Background(), "Tell me about this place.", allWorkerNames())
	require.NoError(t, err)
	assert.Equal(t, "company_culture_expert", got)
}

func TestLLMRouterAcceptsExactCandidate(t *testing.T) {
	t.Parallel()

	router := NewLLMRouter(stubGenerator{output: " management_expert \n"}, nil)
	got, err := router.Route(context.Background(), "How is leadership?", allWorkerNames())
	require.NoError(t, err)
	assert.Equal(t, "management_expert", got)
}

func TestLLMRouterFallsBackOnBadOutput(t *testing.T) {
	t.Parallel()

	router := NewLLMRouter(stubGenerator{output: "I think the salary expert fits best"}, nil)
	got, err := router.Route(context.Background(), "How is the salary?", allWorkerNames())
	require.NoError(t, err)
	assert.Equal(t, "salary_benefits_expert", got)
}

func TestLLMRouterFallsBackOnError(t *testing.T) {
	t.Parallel()

	router := NewLLMRouter(stubGenerator{err: errors.New("llm down")}, nil)
	got, err := router.Route(context.Background(), "overtime and work life balance?", allWorkerNames())
	require.NoError(t, err)
	assert.Equal(t, "work_life_balance_expert", got)
}
