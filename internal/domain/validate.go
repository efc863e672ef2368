package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinNicknameLength = 2
	MaxNicknameLength = 15
	MinCodeLength     = 4
	MinAnswers        = 2
	MaxAnswers        = 4
)

// NormalizeNickname trims raw and checks its length in characters.
func NormalizeNickname(raw string) (string, error) {
	nickname := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(nickname)
	if n < MinNicknameLength || n > MaxNicknameLength {
		return "", ErrInvalidNickname
	}
	return nickname, nil
}

// NormalizeCode trims and upper-cases a join code typed by a player.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) < MinCodeLength {
		return "", ErrInvalidCode
	}
	return code, nil
}

// Validate checks that a quiz can be hosted.
func (q Quiz) Validate() error {
	if strings.TrimSpace(q.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidQuiz)
	}
	if len(q.Questions) == 0 {
		return ErrEmptyQuiz
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("question %d: %w: duplicate id %q", i+1, ErrInvalidQuestion, question.ID)
		}
		seen[question.ID] = struct{}{}
	}
	return nil
}

// Validate checks the invariants of a single question.
func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuestion)
	}
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidQuestion)
	}
	if q.TimeLimit <= 0 {
		return fmt.Errorf("%w: time limit must be positive", ErrInvalidQuestion)
	}
	if q.Points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrInvalidQuestion)
	}
	if len(q.Answers) < MinAnswers || len(q.Answers) > MaxAnswers {
		return fmt.Errorf("%w: needs %d to %d answers", ErrInvalidQuestion, MinAnswers, MaxAnswers)
	}

	ids := make(map[string]struct{}, len(q.Answers))
	for _, a := range q.Answers {
		if a.ID == "" {
			return fmt.Errorf("%w: answer without id", ErrInvalidQuestion)
		}
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("%w: answer text is required", ErrInvalidQuestion)
		}
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("%w: duplicate answer id %q", ErrInvalidQuestion, a.ID)
		}
		ids[a.ID] = struct{}{}
	}

	switch q.Kind {
	case QuestionMultipleChoice:
		for _, a := range q.Answers {
			if a.Correct {
				return nil
			}
		}
		return fmt.Errorf("%w: mark at least one correct answer", ErrInvalidQuestion)
	case QuestionOrdering:
		positions := make(map[int]struct{}, len(q.Answers))
		for _, a := range q.Answers {
			if a.Position < 0 || a.Position >= len(q.Answers) {
				return fmt.Errorf("%w: position %d outside 0..%d", ErrInvalidQuestion, a.Position, len(q.Answers)-1)
			}
			if _, dup := positions[a.Position]; dup {
				return fmt.Errorf("%w: duplicate position %d", ErrInvalidQuestion, a.Position)
			}
			positions[a.Position] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidQuestion, q.Kind)
	}
}
