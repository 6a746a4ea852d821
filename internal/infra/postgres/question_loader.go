package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jamal-o/guessing-game-server/internal/domain"
)

// QuestionLoader loads bank content from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadTopic(ctx context.Context, topic string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT text, answer FROM questions WHERE topic=$1`, topic)
	if err != nil {
		return nil, fmt.Errorf("load topic: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var text, answer string
		if err := rows.Scan(&text, &answer); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q, err := domain.NewQuestion(text, answer)
		if err != nil {
			// skip malformed rows instead of poisoning the whole topic
			continue
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load topic: %w", err)
	}
	return questions, nil
}
