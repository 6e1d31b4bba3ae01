package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Document is the immutable unit of retrievable content. Metadata keys are
// not fixed; filters match them by exact equality.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IndexedEntry is a Document plus its embedding vector and a stable
// identifier. DocumentID is unique within a collection; re-ingesting the
// same id overwrites the previous entry.
type IndexedEntry struct {
	DocumentID string    `json:"document_id"`
	Document   Document  `json:"document"`
	Embedding  []float64 `json:"embedding,omitempty"`
}

// RetrievalMethod tags a SearchResult with the pipeline stage that produced
// its score.
type RetrievalMethod string

const (
	RetrievalSemantic RetrievalMethod = "semantic"
	RetrievalLexical  RetrievalMethod = "lexical"
	RetrievalEnsemble RetrievalMethod = "ensemble"
)

// Reranked returns the method tag with the reranked suffix applied.
// Applying it twice does not stack suffixes.
func (m RetrievalMethod) Reranked() RetrievalMethod {
	if strings.HasSuffix(string(m), "_reranked") {
		return m
	}
	return m + "_reranked"
}

// SearchResult is the output of a single retrieval operation. Lists returned
// from the retriever are sorted descending by RelevanceScore with Rank
// contiguous from 1.
type SearchResult struct {
	Document        Document        `json:"document"`
	RelevanceScore  float64         `json:"relevance_score"`
	Rank            int             `json:"rank"`
	RetrievalMethod RetrievalMethod `json:"retrieval_method"`
}

// 固定的五个评论主题集合。
const (
	CollectionCompanyCulture  = "company_culture"
	CollectionWorkLifeBalance = "work_life_balance"
	CollectionManagement      = "management"
	CollectionSalaryBenefits  = "salary_benefits"
	CollectionCareerGrowth    = "career_growth"
)

// Collections returns the five fixed topical collections in stable order.
func Collections() []string {
	return []string{
		CollectionCompanyCulture,
		CollectionWorkLifeBalance,
		CollectionManagement,
		CollectionSalaryBenefits,
		CollectionCareerGrowth,
	}
}

// IsValidCollection reports whether name is one of the fixed collections.
func IsValidCollection(name string) bool {
	for _, c := range Collections() {
		if c == name {
			return true
		}
	}
	return false
}

// DocumentKey returns a stable identity hash for fusion and deduplication:
// the first 100 characters of content plus the sorted metadata pairs.
// Two results referring to the same underlying chunk hash identically even
// when they arrive through different retrieval paths.
func DocumentKey(doc Document) string {
	content := doc.Content
	if runes := []rune(content); len(runes) > 100 {
		content = string(runes[:100])
	}

	keys := make([]string, 0, len(doc.Metadata))
	for k := range doc.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(content)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, doc.Metadata[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// CloneMetadata returns a shallow copy of a metadata map. Documents are
// immutable after ingestion; callers that need to annotate must copy.
func CloneMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
