package training

import (
	"math"
	"slices"

	"github.com/artioladoli/security-awareness-training/internal/catalog"
)

// normalizeSelection deduplicates and sorts the submitted option ids into
// the canonical ascending order used for set comparison.
func normalizeSelection(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// questionCorrect reports whether the submitted selection matches the
// question's correct option set exactly. No partial credit: a subset,
// superset, or any wrong option scores zero for the question.
func questionCorrect(q catalog.Question, selected []int64) bool {
	return slices.Equal(q.CorrectOptionIDs(), normalizeSelection(selected))
}

// gradeTopic computes the percentage score for one topic. Questions absent
// from the sheet count as an empty selection. A topic with no questions
// scores zero.
func gradeTopic(questions []catalog.Question, sheet AnswerSheet) int {
	total := len(questions)
	if total == 0 {
		return 0
	}
	correct := 0
	for _, q := range questions {
		if questionCorrect(q, sheet[q.ID]) {
			correct++
		}
	}
	// Round half up: 5 of 8 is 62.5 and grades as 63.
	return int(math.Round(float64(correct) / float64(total) * 100))
}
