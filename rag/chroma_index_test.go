package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 纯转换辅助的测试；网络路径的降级语义由接口层测试覆盖.

func TestToChromaWhereBuildsClauses(t *testing.T) {
	t.Parallel()

	assert.Nil(t, toChromaWhere(nil))
	assert.Nil(t, toChromaWhere(map[string]any{}))

	single := toChromaWhere(map[string]any{"company": "acme"})
	require.NotNil(t, single)

	mixed := toChromaWhere(map[string]any{
		"company":  "acme",
		"year":     2024,
		"verified": true,
		"score":    4.5,
	})
	require.NotNil(t, mixed)
}

func TestChromaMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"company":  "acme",
		"position": "engineer",
		"verified": true,
		"score":    4.5,
	}
	out := fromChromaMetadata(toChromaMetadata(in))
	require.NotNil(t, out)

	assert.Equal(t, "acme", out["company"])
	assert.Equal(t, "engineer", out["position"])
	assert.Equal(t, true, out["verified"])
	assert.InDelta(t, 4.5, out["score"].(float64), 1e-9)
}

func TestToFloat32(t *testing.T) {
	t.Parallel()

	out := toFloat32([]float64{0.5, 1.25, -2})
	assert.Equal(t, []float32{0.5, 1.25, -2}, out)
}
