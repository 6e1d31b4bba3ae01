package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// maxContextDocuments caps how many retrieved documents are folded into a
// generation prompt.
const maxContextDocuments = 5

// GenerateOptions 控制单次生成调用.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Generator 定义统一的文本生成接口.
type Generator interface {
	// Generate 基于提示词与可选的上下文文档生成回答.
	// 空字符串表示没有可用答案；调用方按降级处理.
	Generate(ctx context.Context, prompt string, contextDocs []types.Document, opts GenerateOptions) (string, error)

	// Name 返回提供者名称.
	Name() string
}

// BuildPrompt folds up to five context documents into the prompt, each
// labeled "Document N:" before concatenation.
func BuildPrompt(prompt string, contextDocs []types.Document) string {
	if len(contextDocs) == 0 {
		return prompt
	}
	if len(contextDocs) > maxContextDocuments {
		contextDocs = contextDocs[:maxContextDocuments]
	}

	var b strings.Builder
	b.WriteString("Context information:\n\n")
	for i, doc := range contextDocs {
		fmt.Fprintf(&b, "Document %d:\n%s\n\n", i+1, doc.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(prompt)
	return b.String()
}
