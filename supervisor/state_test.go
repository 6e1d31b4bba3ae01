package supervisor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

func TestSanitizeTaskDescriptionStripsMarkdownAndNewlines(t *testing.T) {
	t.Parallel()

	in := "**Add** more\ndetail from `reviews`.\n# And cite sources."
	out := sanitizeTaskDescription(in)

	assert.NotContains(t, out, "\n")
	assert.NotContains(t, out, "**")
	assert.NotContains(t, out, "`")
	assert.NotContains(t, out, "#")
	assert.Contains(t, out, "Add more detail")
}

func TestSanitizeTaskDescriptionLimitsSentences(t *testing.T) {
	t.Parallel()

	in := "First sentence. Second sentence. Third sentence. Fourth sentence."
	out := sanitizeTaskDescription(in)

	assert.Equal(t, "First sentence. Second sentence.", out)
}

func TestSanitizeTaskDescriptionLimitsLength(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("verylongword ", 40)
	out := sanitizeTaskDescription(in)

	assert.LessOrEqual(t, len([]rune(out)), 160)
}

func TestSanitizeTaskDescriptionHandlesCJKSentences(t *testing.T) {
	t.Parallel()

	in := "补充具体数据。引用更多评论。再加一句就超了。"
	out := sanitizeTaskDescription(in)

	assert.Equal(t, "补充具体数据。引用更多评论。", out)
}

func TestBuildRetryDescriptionUsesFirstUsableSuggestion(t *testing.T) {
	t.Parallel()

	verdict := types.Verdict{
		ImprovementSuggestions: []string{"   ", "Cite concrete reviews.", "Ignore me."},
	}
	out := BuildRetryDescription("original question?", verdict)

	assert.Contains(t, out, "original question?")
	assert.Contains(t, out, "Cite concrete reviews.")
	assert.NotContains(t, out, "Ignore me")
}

// 首轮任务描述同样走净化：原问题再长、再花哨，下发给 worker
// 的版本必须无换行且不超长；消息序列里保留原问题.
func TestNewStateSanitizesTaskDescription(t *testing.T) {
	t.Parallel()

	question := "**How** is the culture?\nI heard\nmixed things about it. " +
		strings.Repeat("Extra background that should be dropped. ", 10)
	state := NewState("s1", question)

	assert.NotContains(t, state.TaskDescription, "\n")
	assert.NotContains(t, state.TaskDescription, "**")
	assert.LessOrEqual(t, len([]rune(state.TaskDescription)), 160)
	assert.Contains(t, state.TaskDescription, "How is the culture?")
	assert.Equal(t, question, state.Messages[0].Content)
}

// 长度与句数上限对重试提示整体生效，不是只对建议部分.
func TestBuildRetryDescriptionClipsWholePrompt(t *testing.T) {
	t.Parallel()

	question := strings.Repeat("longquestionword ", 20) + "right?"
	verdict := types.Verdict{ImprovementSuggestions: []string{"Add concrete numbers."}}
	out := BuildRetryDescription(question, verdict)

	assert.NotContains(t, out, "\n")
	assert.LessOrEqual(t, len([]rune(out)), 160)
}

func TestBuildRetryDescriptionFallsBackToQuestion(t *testing.T) {
	t.Parallel()

	out := BuildRetryDescription("original question?", types.Verdict{})
	assert.Equal(t, "original question?", out)
}

func TestScrubEvaluatorMessages(t *testing.T) {
	t.Parallel()

	state := NewState("s1", "question?")
	state.Append(types.NewAssistantMessage("worker", "the answer"))
	state.Append(types.NewToolMessage("quality_evaluator", types.NeutralVerdict().Marshal()))
	state.Append(types.NewAssistantMessage("worker", "refined answer"))

	state.ScrubEvaluatorMessages()

	require.Len(t, state.Messages, 3)
	for _, msg := range state.Messages {
		assert.False(t, types.IsVerdictPayload(msg.Content))
	}
}

func TestScrubKeepsJSONLookingWorkerAnswers(t *testing.T) {
	t.Parallel()

	state := NewState("s1", "question?")
	// worker 回答恰好是 JSON，但不是质量判定
	state.Append(types.NewAssistantMessage("worker", `{"summary": "pay is fine"}`))

	state.ScrubEvaluatorMessages()
	assert.Len(t, state.Messages, 2)
}

func TestStateCloneIsDeep(t *testing.T) {
	t.Parallel()

	state := NewState("s1", "question?")
	verdict := types.NeutralVerdict()
	state.LastVerdict = &verdict

	clone := state.Clone()
	clone.Append(types.NewAssistantMessage("worker", "extra"))
	clone.LastVerdict.OverallScore = 0.99

	assert.Len(t, state.Messages, 1)
	assert.Zero(t, state.LastVerdict.OverallScore)
}
