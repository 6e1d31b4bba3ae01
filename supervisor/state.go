package supervisor

import (
	"strings"
	"time"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// Phase 状态机所处阶段.
type Phase string

const (
	PhaseSupervisor Phase = "supervisor"
	PhaseWorker     Phase = "worker"
	PhaseEvaluator  Phase = "evaluator"
	PhaseDone       Phase = "done"
)

// 任务描述净化上限.
const (
	maxTaskDescriptionRunes     = 160
	maxTaskDescriptionSentences = 2
)

// State 一次问答会话的完整状态。每步流转后整体快照入检查点.
type State struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`

	// TaskDescription 当前下发给 worker 的任务描述，始终是净化
	// 过的形式：无换行、无 markdown、两句以内、160 字符以内。
	// 首轮是净化后的原问题，重试轮带上改进建议。
	TaskDescription string `json:"task_description"`

	Phase      Phase           `json:"phase"`
	Worker     string          `json:"worker,omitempty"`
	Messages   []types.Message `json:"messages"`
	RetryCount int             `json:"retry_count"`

	LastAnswer  string         `json:"last_answer,omitempty"`
	LastVerdict *types.Verdict `json:"last_verdict,omitempty"`
	WorkerErr   string         `json:"worker_error,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState 初始化会话状态。原问题原样进消息序列，
// 下发给 worker 的任务描述走净化.
func NewState(sessionID, question string) *State {
	now := time.Now()
	return &State{
		SessionID:       sessionID,
		Question:        question,
		TaskDescription: sanitizeTaskDescription(question),
		Phase:           PhaseSupervisor,
		Messages:        []types.Message{types.NewUserMessage(question)},
		StartedAt:       now,
		UpdatedAt:       now,
	}
}

// Append 追加消息并刷新更新时间.
func (s *State) Append(msg types.Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// ScrubEvaluatorMessages 删除消息序列中的评估器判定消息。
// 终止前调用，最终对话只保留用户与专家的发言.
func (s *State) ScrubEvaluatorMessages() {
	kept := s.Messages[:0]
	for _, msg := range s.Messages {
		if types.IsVerdictPayload(msg.Content) {
			continue
		}
		kept = append(kept, msg)
	}
	s.Messages = kept
}

// Clone 深拷贝状态，检查点存储用.
func (s *State) Clone() *State {
	dup := *s
	dup.Messages = make([]types.Message, len(s.Messages))
	copy(dup.Messages, s.Messages)
	if s.LastVerdict != nil {
		v := *s.LastVerdict
		v.ImprovementSuggestions = append([]string(nil), s.LastVerdict.ImprovementSuggestions...)
		dup.LastVerdict = &v
	}
	return &dup
}

// BuildRetryDescription 构造重试轮的任务描述：原问题 + 第一条
// 改进建议，拼接后整体净化，保证长度与句数上限对完整提示生效。
// 没有可用建议时退回净化后的原问题.
func BuildRetryDescription(question string, verdict types.Verdict) string {
	for _, suggestion := range verdict.ImprovementSuggestions {
		cleaned := sanitizeTaskDescription(suggestion)
		if cleaned == "" {
			continue
		}
		return sanitizeTaskDescription(question + " (개선요구: " + cleaned + ")")
	}
	return sanitizeTaskDescription(question)
}

// sanitizeTaskDescription 净化评估器给出的建议：去掉 markdown
// 标记与换行，截到两句以内、160 字符以内.
func sanitizeTaskDescription(text string) string {
	cleaned := strings.NewReplacer(
		"\n", " ", "\r", " ", "\t", " ",
		"**", "", "__", "", "`", "", "#", "", ">", "",
		"* ", "", "- ", "",
	).Replace(text)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = truncateSentences(cleaned, maxTaskDescriptionSentences)

	runes := []rune(cleaned)
	if len(runes) > maxTaskDescriptionRunes {
		cleaned = string(runes[:maxTaskDescriptionRunes])
	}
	return strings.TrimSpace(cleaned)
}

// truncateSentences 截取前 n 句；中英文句号、问叹号都算句界.
func truncateSentences(text string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i, r := range text {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			count++
			if count == n {
				return text[:i+len(string(r))]
			}
		}
	}
	return text
}
