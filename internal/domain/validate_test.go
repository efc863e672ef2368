package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"live-quiz-service/internal/domain"
)

func TestNormalizeNickname(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "trimmed", raw: "  Alice ", want: "Alice"},
		{name: "two chars", raw: "Al", want: "Al"},
		{name: "fifteen chars", raw: "abcdefghijklmno", want: "abcdefghijklmno"},
		{name: "multibyte counts runes", raw: "Zoë", want: "Zoë"},
		{name: "one char", raw: " A ", wantErr: true},
		{name: "sixteen chars", raw: "abcdefghijklmnop", wantErr: true},
		{name: "blank", raw: "   ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := domain.NormalizeNickname(tc.raw)
			if tc.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidNickname)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	code, err := domain.NormalizeCode(" ab3k9z ")
	require.NoError(t, err)
	require.Equal(t, "AB3K9Z", code)

	_, err = domain.NormalizeCode("ab ")
	require.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestQuizValidate(t *testing.T) {
	valid := func() domain.Quiz {
		return domain.Quiz{
			ID:    "quiz-1",
			Title: "Capitals",
			Questions: []domain.Question{
				{
					ID: "q1", Kind: domain.QuestionMultipleChoice, Prompt: "Capital of France?",
					TimeLimit: 20, Points: 1000,
					Answers: []domain.Answer{{ID: "a1", Text: "Paris", Correct: true}, {ID: "a2", Text: "Rome"}},
				},
				{
					ID: "q2", Kind: domain.QuestionOrdering, Prompt: "Order by size",
					TimeLimit: 30, Points: 500,
					Answers: []domain.Answer{{ID: "b1", Text: "Ant", Position: 0}, {ID: "b2", Text: "Dog", Position: 1}},
				},
			},
		}
	}

	require.NoError(t, valid().Validate())

	cases := []struct {
		name   string
		mutate func(q *domain.Quiz)
		target error
	}{
		{"no title", func(q *domain.Quiz) { q.Title = " " }, domain.ErrInvalidQuiz},
		{"no questions", func(q *domain.Quiz) { q.Questions = nil }, domain.ErrEmptyQuiz},
		{"no correct answer", func(q *domain.Quiz) { q.Questions[0].Answers[0].Correct = false }, domain.ErrInvalidQuestion},
		{"one answer", func(q *domain.Quiz) { q.Questions[0].Answers = q.Questions[0].Answers[:1] }, domain.ErrInvalidQuestion},
		{"five answers", func(q *domain.Quiz) {
			for i := 0; i < 3; i++ {
				q.Questions[0].Answers = append(q.Questions[0].Answers, domain.Answer{ID: string(rune('x' + i)), Text: "extra"})
			}
		}, domain.ErrInvalidQuestion},
		{"duplicate position", func(q *domain.Quiz) { q.Questions[1].Answers[1].Position = 0 }, domain.ErrInvalidQuestion},
		{"position gap", func(q *domain.Quiz) { q.Questions[1].Answers[1].Position = 7 }, domain.ErrInvalidQuestion},
		{"negative position", func(q *domain.Quiz) { q.Questions[1].Answers[0].Position = -1 }, domain.ErrInvalidQuestion},
		{"zero time limit", func(q *domain.Quiz) { q.Questions[0].TimeLimit = 0 }, domain.ErrInvalidQuestion},
		{"zero points", func(q *domain.Quiz) { q.Questions[1].Points = 0 }, domain.ErrInvalidQuestion},
		{"empty prompt", func(q *domain.Quiz) { q.Questions[0].Prompt = "" }, domain.ErrInvalidQuestion},
		{"unknown kind", func(q *domain.Quiz) { q.Questions[0].Kind = "essay" }, domain.ErrInvalidQuestion},
		{"duplicate question id", func(q *domain.Quiz) { q.Questions[1].ID = "q1" }, domain.ErrInvalidQuestion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quiz := valid()
			tc.mutate(&quiz)
			err := quiz.Validate()
			require.ErrorIs(t, err, tc.target)
			require.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestKindOf(t *testing.T) {
	require.Equal(t, domain.KindStale, domain.KindOf(domain.ErrSessionStarted))
	require.Equal(t, domain.KindNotFound, domain.KindOf(domain.ErrSessionNotFound))
	require.Equal(t, domain.KindForbidden, domain.KindOf(domain.ErrNotHost))
	require.Equal(t, domain.KindInternal, domain.KindOf(errors.New("redis down")))
}

func TestPublicQuestionHidesSolution(t *testing.T) {
	q := domain.Question{
		ID: "q2", Kind: domain.QuestionOrdering, Prompt: "Order", TimeLimit: 10, Points: 100,
		Answers: []domain.Answer{
			{ID: "c", Text: "C", Position: 2},
			{ID: "a", Text: "A", Position: 0},
			{ID: "b", Text: "B", Position: 1},
		},
	}
	pub := q.Public()
	require.Len(t, pub.Answers, 3)
	require.Equal(t, pub, q.Public(), "shuffle must be stable per question")
	require.Equal(t, []string{"a", "b", "c"}, q.CanonicalOrder())
	require.Equal(t, []string{"a", "b", "c"}, q.Reveal().CorrectOrder)
}
