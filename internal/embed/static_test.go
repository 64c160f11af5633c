package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestStaticEmbedder_Embed_ReturnsCorrectDimensions(t *testing.T) {
	embedder := NewStaticEmbedder(768)
	defer func() { _ = embedder.Close() }()

	embedding, err := embedder.Embed(context.Background(), "func main() {}")

	require.NoError(t, err)
	assert.Len(t, embedding, 768)
}

func TestStaticEmbedder_Embed_DefaultsDimensions(t *testing.T) {
	embedder := NewStaticEmbedder(0)
	assert.Equal(t, DefaultDimensions, embedder.Dimensions())
}

func TestStaticEmbedder_Embed_VectorIsNormalized(t *testing.T) {
	embedder := NewStaticEmbedder(768)
	defer func() { _ = embedder.Close() }()

	embedding, err := embedder.Embed(context.Background(), "func main() {}")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, vectorMagnitude(embedding), 0.001)
}

func TestStaticEmbedder_Embed_IsDeterministic(t *testing.T) {
	embedder := NewStaticEmbedder(768)
	defer func() { _ = embedder.Close() }()

	text := "func add(a, b int) int { return a + b }"

	emb1, err1 := embedder.Embed(context.Background(), text)
	emb2, err2 := embedder.Embed(context.Background(), text)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, emb1, emb2)
}

func TestStaticEmbedder_Embed_BlankTextReturnsZeroVector(t *testing.T) {
	embedder := NewStaticEmbedder(768)
	defer func() { _ = embedder.Close() }()

	embedding, err := embedder.Embed(context.Background(), "   ")
	require.NoError(t, err)

	for _, x := range embedding {
		assert.Zero(t, x)
	}
}

func TestStaticEmbedder_EmbedBatch_EmptyBatchSkipsWork(t *testing.T) {
	embedder := NewStaticEmbedder(768)
	defer func() { _ = embedder.Close() }()

	out, err := embedder.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStaticEmbedder_CloseThenEmbedFails(t *testing.T) {
	embedder := NewStaticEmbedder(768)
	require.NoError(t, embedder.Close())

	_, err := embedder.Embed(context.Background(), "anything")
	assert.Error(t, err)
}

func TestStaticEmbedder_ModelNameAndAvailability(t *testing.T) {
	embedder := NewStaticEmbedder(768)
	assert.Equal(t, "static", embedder.ModelName())
	assert.True(t, embedder.Available(context.Background()))
	require.NoError(t, embedder.Close())
	assert.False(t, embedder.Available(context.Background()))
}
