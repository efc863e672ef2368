package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"live-quiz-service/internal/domain"
)

type sessionResultRow struct {
	bun.BaseModel `bun:"table:session_results"`

	SessionID string                    `bun:"session_id,pk"`
	QuizID    string                    `bun:"quiz_id"`
	QuizTitle string                    `bun:"quiz_title"`
	HostID    string                    `bun:"host_id"`
	JoinCode  string                    `bun:"join_code"`
	StartedAt *time.Time                `bun:"started_at"`
	EndedAt   time.Time                 `bun:"ended_at"`
	Standings []domain.LeaderboardEntry `bun:"standings,type:jsonb"`
}

// SessionArchive stores final standings in session_results.
type SessionArchive struct {
	db *bun.DB
}

func NewSessionArchive(db *bun.DB) *SessionArchive {
	return &SessionArchive{db: db}
}

func (a *SessionArchive) SaveSummary(ctx context.Context, summary domain.SessionSummary) error {
	standings := summary.Standings
	if standings == nil {
		standings = []domain.LeaderboardEntry{}
	}
	row := sessionResultRow{
		SessionID: summary.SessionID,
		QuizID:    summary.QuizID,
		QuizTitle: summary.QuizTitle,
		HostID:    summary.HostID,
		JoinCode:  summary.JoinCode,
		StartedAt: summary.StartedAt,
		EndedAt:   summary.EndedAt,
		Standings: standings,
	}
	_, err := a.db.NewInsert().
		Model(&row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("ended_at = EXCLUDED.ended_at").
		Set("standings = EXCLUDED.standings").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

func (a *SessionArchive) ListSummaries(ctx context.Context, quizID string) ([]domain.SessionSummary, error) {
	var rows []sessionResultRow
	err := a.db.NewSelect().
		Model(&rows).
		Where("quiz_id = ?", quizID).
		OrderExpr("ended_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list session results: %w", err)
	}
	summaries := make([]domain.SessionSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, domain.SessionSummary{
			SessionID: row.SessionID,
			QuizID:    row.QuizID,
			QuizTitle: row.QuizTitle,
			HostID:    row.HostID,
			JoinCode:  row.JoinCode,
			StartedAt: row.StartedAt,
			EndedAt:   row.EndedAt,
			Standings: row.Standings,
		})
	}
	return summaries, nil
}
