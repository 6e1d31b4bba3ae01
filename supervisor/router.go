package supervisor

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/llm"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// Router 把问题映射到恰好一个 worker 名.
type Router interface {
	Route(ctx context.Context, question string, candidates []string) (string, error)
}

// KeywordRouter 关键词路由：确定性、零外部依赖，也是 LLM 路由
// 失败时的降级路径.
type KeywordRouter struct {
	logger *zap.Logger
}

// NewKeywordRouter 创建关键词路由器.
func NewKeywordRouter(logger *zap.Logger) *KeywordRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordRouter{logger: logger.With(zap.String("component", "keyword_router"))}
}

// topicKeywords 主题触发词，中英双语.
var topicKeywords = map[string][]string{
	types.CollectionSalaryBenefits:  {"salary", "pay", "compensation", "bonus", "benefit", "stock", "연봉", "薪资", "工资", "待遇", "福利", "年薪"},
	types.CollectionWorkLifeBalance: {"work-life", "work life", "overtime", "hours", "balance", "remote", "야근", "加班", "工时", "弹性", "远程"},
	types.CollectionManagement:      {"manager", "management", "leadership", "boss", "executive", "经理", "管理", "领导", "上司"},
	types.CollectionCareerGrowth:    {"career", "growth", "promotion", "learning", "development", "晋升", "成长", "发展", "培训"},
	types.CollectionCompanyCulture:  {"culture", "environment", "atmosphere", "values", "team", "文化", "氛围", "环境", "价值观"},
}

// Route 统计各主题触发词命中数，最高者胜；无命中退回公司文化专家.
func (r *KeywordRouter) Route(ctx context.Context, question string, candidates []string) (string, error) {
	lower := strings.ToLower(question)

	bestName := ""
	bestHits := 0
	for _, collection := range types.Collections() {
		hits := 0
		for _, kw := range topicKeywords[collection] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		name := workerNameFor(collection)
		if hits > bestHits && contains(candidates, name) {
			bestName = name
			bestHits = hits
		}
	}
	if bestName == "" {
		// 泛问题默认走公司文化专家
		bestName = workerNameFor(types.CollectionCompanyCulture)
	}
	r.logger.Debug("routed by keywords",
		zap.String("worker", bestName), zap.Int("hits", bestHits))
	return bestName, nil
}

// LLMRouter 让语言模型在候选 worker 里选一个；
// 输出解析失败时降级为关键词路由.
type LLMRouter struct {
	generator llm.Generator
	fallback  *KeywordRouter
	logger    *zap.Logger
}

// NewLLMRouter 创建 LLM 路由器.
func NewLLMRouter(generator llm.Generator, logger *zap.Logger) *LLMRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMRouter{
		generator: generator,
		fallback:  NewKeywordRouter(logger),
		logger:    logger.With(zap.String("component", "llm_router")),
	}
}

// Route 询问模型应由哪个专家处理；答案必须精确命中候选之一.
func (r *LLMRouter) Route(ctx context.Context, question string, candidates []string) (string, error) {
	prompt := "You are a routing supervisor for a company-review analysis team.\n" +
		"Pick exactly one specialist to answer the question below.\n" +
		"Respond with only the specialist name, nothing else.\n\n" +
		"Specialists: " + strings.Join(candidates, ", ") + "\n" +
		"Question: " + question

	answer, err := r.generator.Generate(ctx, prompt, nil, llm.GenerateOptions{Temperature: 0.1, MaxTokens: 32})
	if err == nil {
		name := strings.TrimSpace(strings.Trim(answer, "\"'` "))
		if contains(candidates, name) {
			return name, nil
		}
	}

	r.logger.Warn("llm routing failed, falling back to keywords", zap.Error(err))
	return r.fallback.Route(ctx, question, candidates)
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
