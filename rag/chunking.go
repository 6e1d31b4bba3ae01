package rag

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// 分块默认参数：按 token 计数，重叠取块大小的 20%.
const (
	defaultChunkSize    = 512
	defaultChunkOverlap = defaultChunkSize / 5
)

// chunkSeparators 递归切分的分隔符，从粗到细。
// 中文标点在列表里，评论多是中英混排.
var chunkSeparators = []string{"\n\n", "\n", "。", "！", "？", ". ", "! ", "? ", "；", "; ", "，", ", ", " ", ""}

// TokenCounter 文本 token 计数接口.
type TokenCounter interface {
	Count(text string) int
}

// tiktokenCounter 基于 tiktoken 的计数器；初始化失败退化为估算.
type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter 创建 token 计数器。tiktoken 编码表加载失败时
// 返回估算计数器（len/4），不报错.
func NewTokenCounter(logger *zap.Logger) TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		if logger != nil {
			logger.Warn("tiktoken encoding unavailable, falling back to estimation", zap.Error(err))
		}
		return estimateCounter{}
	}
	return &tiktokenCounter{encoding: enc}
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// estimateCounter 粗略估算：平均每 4 字节一个 token.
type estimateCounter struct{}

func (estimateCounter) Count(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// Chunker 递归文本分块器.
//
// 按分隔符从粗到细递归切分，使每块 token 数不超过 chunkSize，
// 相邻块之间保留 overlap 个 token 的重叠以保护语义连续性。
type Chunker struct {
	chunkSize int
	overlap   int
	counter   TokenCounter
	logger    *zap.Logger
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize 设置块大小（token 数）.
func WithChunkSize(n int) ChunkerOption {
	return func(c *Chunker) {
		if n > 0 {
			c.chunkSize = n
			c.overlap = n / 5
		}
	}
}

// WithChunkOverlap 设置块间重叠（token 数）.
func WithChunkOverlap(n int) ChunkerOption {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// NewChunker 创建分块器.
func NewChunker(logger *zap.Logger, opts ...ChunkerOption) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chunker{
		chunkSize: defaultChunkSize,
		overlap:   defaultChunkOverlap,
		counter:   NewTokenCounter(logger),
		logger:    logger.With(zap.String("component", "chunker")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split 把文档切成多个块，每块继承原文档的元数据并追加
// chunk_index / chunk_total.
func (c *Chunker) Split(doc types.Document) []types.Document {
	text := strings.TrimSpace(doc.Content)
	if text == "" {
		return nil
	}

	pieces := c.split(text, 0)
	merged := c.mergeWithOverlap(pieces)

	out := make([]types.Document, 0, len(merged))
	for i, content := range merged {
		md := types.CloneMetadata(doc.Metadata)
		if md == nil {
			md = make(map[string]any, 2)
		}
		md["chunk_index"] = i
		md["chunk_total"] = len(merged)
		out = append(out, types.Document{Content: content, Metadata: md})
	}
	return out
}

// split 递归切分：当前层分隔符切出的段仍超限时下钻到更细的分隔符.
func (c *Chunker) split(text string, level int) []string {
	if c.counter.Count(text) <= c.chunkSize {
		return []string{text}
	}
	if level >= len(chunkSeparators) {
		return []string{text}
	}

	sep := chunkSeparators[level]
	var parts []string
	if sep == "" {
		// 最细粒度：按字符硬切
		parts = hardSplit(text, c.chunkSize*4)
	} else {
		parts = splitKeepSeparator(text, sep)
	}
	if len(parts) == 1 {
		return c.split(text, level+1)
	}

	var out []string
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if c.counter.Count(part) > c.chunkSize {
			out = append(out, c.split(part, level+1)...)
		} else {
			out = append(out, part)
		}
	}
	return out
}

// mergeWithOverlap 把细碎片段合并成接近 chunkSize 的块，
// 并在块边界保留 overlap 个 token 的回看窗口.
func (c *Chunker) mergeWithOverlap(pieces []string) []string {
	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(strings.Join(current, "")))

		// 从尾部回收 overlap 窗口作为下一块的开头
		var kept []string
		keptTokens := 0
		for i := len(current) - 1; i >= 0 && keptTokens < c.overlap; i-- {
			kept = append([]string{current[i]}, kept...)
			keptTokens += c.counter.Count(current[i])
		}
		current = kept
		currentTokens = keptTokens
	}

	for _, piece := range pieces {
		n := c.counter.Count(piece)
		if currentTokens+n > c.chunkSize && currentTokens > 0 {
			flush()
		}
		current = append(current, piece)
		currentTokens += n
	}
	if len(current) > 0 {
		chunk := strings.TrimSpace(strings.Join(current, ""))
		if chunk != "" && (len(chunks) == 0 || chunk != chunks[len(chunks)-1]) {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// splitKeepSeparator 按分隔符切分并把分隔符保留在前段末尾.
func splitKeepSeparator(text, sep string) []string {
	raw := strings.Split(text, sep)
	out := make([]string, 0, len(raw))
	for i, part := range raw {
		if i < len(raw)-1 {
			part += sep
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// hardSplit 按字节上限硬切，注意不破坏 UTF-8 边界.
func hardSplit(text string, maxBytes int) []string {
	if maxBytes <= 0 {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	var sb strings.Builder
	for _, r := range runes {
		if sb.Len()+len(string(r)) > maxBytes && sb.Len() > 0 {
			out = append(out, sb.String())
			sb.Reset()
		}
		sb.WriteRune(r)
	}
	if sb.Len() > 0 {
		out = append(out, sb.String())
	}
	return out
}
