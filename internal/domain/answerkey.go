package domain

// AnswerKey is the scoring view of a quiz: the correct option index per
// question, in question order. It is what the cache layer keeps hot so the
// scoring rule never round-trips to the document store.
type AnswerKey struct {
	QuizID  string
	Correct []int
}

// BuildAnswerKey derives the answer key from authored quiz content.
func BuildAnswerKey(quiz Quiz) AnswerKey {
	correct := make([]int, len(quiz.Questions))
	for i, q := range quiz.Questions {
		correct[i] = q.CorrectOption
	}
	return AnswerKey{QuizID: quiz.ID, Correct: correct}
}

// CorrectOption returns the correct option for a question index, or -1 when
// the index is out of bounds.
func (k AnswerKey) CorrectOption(questionIndex int) int {
	if questionIndex < 0 || questionIndex >= len(k.Correct) {
		return -1
	}
	return k.Correct[questionIndex]
}
