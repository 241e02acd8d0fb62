// Package contextpack selects and orders notes under a token budget for
// language-model synthesis calls (spec §4.3 Context Packer).
package contextpack

import (
	"sort"
	"strings"

	"github.com/oremus-labs/research-orchestrator/internal/models"
)

// TokensPerWord is the word-count heuristic multiplier used in lieu of a real
// tokenizer (spec §4.3: "word-count × 1.3 heuristic").
const TokensPerWord = 1.3

// EstimateTokens approximates the token count of text using the word-count
// heuristic. Callers that need a precise count (e.g. embedding ceilings)
// should still treat the result as a soft estimate (spec §9).
func EstimateTokens(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	return int(float64(len(words))*TokensPerWord) + 1
}

// Pack selects an ordered subset of notes whose total token_count does not
// exceed budget, capped at maxNotes entries. Notes are considered in
// (importance desc, token_count desc) order; a note that would overflow the
// budget is skipped (not a packing stop) so later, smaller notes still get a
// chance (spec §4.3, §8 Testable Property 7).
func Pack(notes []*models.Note, budget, maxNotes int) []*models.Note {
	ordered := make([]*models.Note, len(notes))
	copy(ordered, notes)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Importance != ordered[j].Importance {
			return ordered[i].Importance > ordered[j].Importance
		}
		return ordered[i].TokenCount > ordered[j].TokenCount
	})

	var out []*models.Note
	used := 0
	for _, n := range ordered {
		if maxNotes > 0 && len(out) >= maxNotes {
			break
		}
		if used+n.TokenCount > budget {
			continue
		}
		out = append(out, n)
		used += n.TokenCount
	}
	return out
}

// FilterByRole returns the subset of notes whose role is in allowed.
func FilterByRole(notes []*models.Note, allowed []models.NoteRole) []*models.Note {
	set := make(map[models.NoteRole]bool, len(allowed))
	for _, r := range allowed {
		set[r] = true
	}
	var out []*models.Note
	for _, n := range notes {
		if set[n.Role] {
			out = append(out, n)
		}
	}
	return out
}

// SynthesisBudget computes the note token budget for a single synthesis
// call, reserving headroom for the prompt scaffolding and the model's own
// output (spec §4.1 Synthesize phase: "llm_max_context − 2000 − llm_max_tokens").
func SynthesisBudget(maxContext, maxLLMTokens int) int {
	budget := maxContext - 2000 - maxLLMTokens
	if budget < 0 {
		return 0
	}
	return budget
}

// ClampForEmbedding shrinks text until its estimated token count fits under
// ceiling, marking truncation with a trailing ellipsis (spec §4.3: embedding
// payloads are pre-clamped, shrinking by 10% per attempt).
func ClampForEmbedding(text string, ceiling int) string {
	if ceiling <= 0 || EstimateTokens(text) <= ceiling {
		return text
	}

	candidate := text
	for EstimateTokens(candidate) > ceiling {
		words := strings.Fields(candidate)
		if len(words) <= 1 {
			break
		}
		keep := int(float64(len(words)) * 0.9)
		if keep >= len(words) {
			keep = len(words) - 1
		}
		if keep < 1 {
			keep = 1
		}
		candidate = strings.Join(words[:keep], " ")
	}
	if candidate != text {
		candidate += " …"
	}
	return candidate
}

// EmbeddingTokenCeiling is the default safety ceiling applied to text bound
// for the embedding collaborator (spec §4.3: "512 × 0.8 safety").
const EmbeddingTokenCeiling = int(512 * 0.8)
