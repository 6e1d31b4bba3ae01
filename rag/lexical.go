package rag

import (
	"math"
	"sort"
	"strings"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// BM25 参数，沿用信息检索文献中的常用取值.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// LexicalIndex 基于 BM25 的词法索引.
//
// 索引在构建时冻结文档集合，之后只读，可安全并发查询。
// 构建成本与文档数成正比，由 LexicalCache 负责复用。
type LexicalIndex struct {
	docs      []types.Document
	docTokens [][]string
	docLen    []int
	avgDocLen float64
	idf       map[string]float64
}

// NewLexicalIndex 在给定文档集上构建 BM25 索引.
func NewLexicalIndex(docs []types.Document) *LexicalIndex {
	idx := &LexicalIndex{
		docs:      docs,
		docTokens: make([][]string, len(docs)),
		docLen:    make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	df := make(map[string]int)
	totalLen := 0
	for i, doc := range docs {
		tokens := tokenize(doc.Content)
		idx.docTokens[i] = tokens
		idx.docLen[i] = len(tokens)
		totalLen += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}

	n := float64(len(docs))
	for term, freq := range df {
		idx.idf[term] = math.Log((n-float64(freq)+0.5)/(float64(freq)+0.5) + 1)
	}
	return idx
}

// Len 返回索引内文档数.
func (idx *LexicalIndex) Len() int { return len(idx.docs) }

// Search 按 BM25 分数降序返回至多 k 个文档。
// 等分时保持文档的原始顺序，保证排序确定性。
// 零分文档不返回。RelevanceScore 是未归一的原始 BM25 分，
// 融合只消费排名；直接对外输出前需由检索器归一.
func (idx *LexicalIndex) Search(query string, k int) []types.SearchResult {
	if k <= 0 || len(idx.docs) == 0 {
		return nil
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}
	candidates := make([]scored, 0, len(idx.docs))
	for i := range idx.docs {
		s := idx.score(queryTokens, i)
		if s <= 0 {
			continue
		}
		candidates = append(candidates, scored{pos: i, score: s})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]types.SearchResult, 0, len(candidates))
	for rank, c := range candidates {
		results = append(results, types.SearchResult{
			Document:        idx.docs[c.pos],
			RelevanceScore:  c.score,
			Rank:            rank + 1,
			RetrievalMethod: types.RetrievalLexical,
		})
	}
	return results
}

// score 计算单文档的 BM25 得分.
func (idx *LexicalIndex) score(queryTokens []string, docPos int) float64 {
	tf := make(map[string]int, len(idx.docTokens[docPos]))
	for _, t := range idx.docTokens[docPos] {
		tf[t]++
	}

	dl := float64(idx.docLen[docPos])
	var total float64
	for _, term := range queryTokens {
		freq := float64(tf[term])
		if freq == 0 {
			continue
		}
		idf := idx.idf[term]
		norm := freq * (bm25K1 + 1) / (freq + bm25K1*(1-bm25B+bm25B*dl/idx.avgDocLen))
		total += idf * norm
	}
	return total
}

// tokenize 小写化后按空白切分；中英文混排文本按空白分段处理.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
