package contextpack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

func TestPack_BudgetAndCapRespected(t *testing.T) {
	var notes []*models.Note
	importances := []int{5, 4, 3, 2, 1}
	for i := 0; i < 40; i++ {
		notes = append(notes, &models.Note{
			ID:         int64(i),
			Importance: importances[i%len(importances)],
			TokenCount: 500,
			Content:    "evidence",
		})
	}

	packed := Pack(notes, 3000, 8)
	require.LessOrEqual(t, len(packed), 8)

	total := 0
	for _, n := range packed {
		total += n.TokenCount
	}
	assert.LessOrEqual(t, total, 3000)

	// Scenario S5: budget 3000 / 500 each / cap 8 -> exactly 6 selected, all
	// drawn from the two highest importance tiers present.
	assert.Equal(t, 6, len(packed))
	for _, n := range packed {
		assert.GreaterOrEqual(t, n.Importance, 4)
	}
}

func TestPack_SkipsOverflowingNoteButContinues(t *testing.T) {
	notes := []*models.Note{
		{ID: 1, Importance: 5, TokenCount: 900},
		{ID: 2, Importance: 4, TokenCount: 900},
		{ID: 3, Importance: 3, TokenCount: 100},
	}
	packed := Pack(notes, 1000, 10)
	require.Len(t, packed, 2)
	assert.Equal(t, int64(1), packed[0].ID)
	assert.Equal(t, int64(3), packed[1].ID)
}

func TestFilterByRole(t *testing.T) {
	notes := []*models.Note{
		{ID: 1, Role: models.NoteRolePageSummary},
		{ID: 2, Role: models.NoteRoleCriticNote},
		{ID: 3, Role: models.NoteRolePageSummary},
	}
	filtered := FilterByRole(notes, []models.NoteRole{models.NoteRolePageSummary})
	require.Len(t, filtered, 2)
}

func TestEstimateTokens_WordCountHeuristic(t *testing.T) {
	text := "one two three four five"
	assert.Equal(t, int(5*TokensPerWord)+1, EstimateTokens(text))
	assert.Equal(t, 0, EstimateTokens(""))
}

func TestClampForEmbedding_ShrinksUntilUnderCeiling(t *testing.T) {
	words := make([]string, 400)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")
	clamped := ClampForEmbedding(text, 50)
	assert.LessOrEqual(t, EstimateTokens(clamped), 50+1) // allow the trailing ellipsis token
	assert.True(t, strings.HasSuffix(clamped, "…"))
}

func TestClampForEmbedding_NoopWhenUnderCeiling(t *testing.T) {
	text := "short text"
	assert.Equal(t, text, ClampForEmbedding(text, 512))
}

func TestSynthesisBudget(t *testing.T) {
	assert.Equal(t, 28000, SynthesisBudget(32000, 2000))
	assert.Equal(t, 0, SynthesisBudget(100, 5000))
}
