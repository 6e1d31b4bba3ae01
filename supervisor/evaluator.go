package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/llm"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// Evaluator 回答质量评估器.
type Evaluator interface {
	// Evaluate 对回答打分并给出是否重试的结构化判定。
	// 实现不返回错误：任何失败都折算为中性判定。
	Evaluate(ctx context.Context, question, answer string) types.Verdict
}

// LLMEvaluator 用语言模型产出质量判定.
type LLMEvaluator struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewLLMEvaluator 创建 LLM 评估器.
func NewLLMEvaluator(generator llm.Generator, logger *zap.Logger) *LLMEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMEvaluator{
		generator: generator,
		logger:    logger.With(zap.String("component", "quality_evaluator")),
	}
}

const evaluatorPrompt = `You are a strict quality evaluator for company-review answers.
Score the answer below for relevance, completeness and grounding.
Respond with ONLY a JSON object in this exact shape:
{"evaluation_type":"quality_assessment","should_retry":false,"overall_score":0.0,"quality_level":"poor|fair|good|excellent","improvement_suggestions":[]}

Question: %s
Answer: %s`

// Evaluate 评估回答；模型失败或输出不可解析时返回中性判定.
func (e *LLMEvaluator) Evaluate(ctx context.Context, question, answer string) types.Verdict {
	prompt := fmt.Sprintf(evaluatorPrompt, question, answer)

	raw, err := e.generator.Generate(ctx, prompt, nil, llm.GenerateOptions{Temperature: 0.0, MaxTokens: 512})
	if err != nil {
		e.logger.Warn("evaluation call failed, using neutral verdict", zap.Error(err))
		return types.NeutralVerdict()
	}
	return ParseVerdict(raw, e.logger)
}

// ParseVerdict 严格解析评估器输出。内容不是合法的质量判定 JSON
// 时返回中性判定（不重试、零分）.
func ParseVerdict(raw string, logger *zap.Logger) types.Verdict {
	trimmed := strings.TrimSpace(raw)

	// 容忍 markdown 代码块包裹
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var v types.Verdict
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil || v.EvaluationType != types.EvaluationType {
		if logger != nil {
			logger.Warn("unparseable verdict, using neutral default")
		}
		return types.NeutralVerdict()
	}
	if v.ImprovementSuggestions == nil {
		v.ImprovementSuggestions = []string{}
	}
	return v
}
