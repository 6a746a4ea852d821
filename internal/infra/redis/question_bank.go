package redis

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jamal-o/guessing-game-server/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches bank content for a topic from a backing store.
type QuestionLoader interface {
	LoadTopic(ctx context.Context, topic string) ([]domain.Question, error)
}

// QuestionBank caches topic question sets in Redis (hash per topic) and
// falls back to a loader on cache miss.
// Content is stored as: HSET bank:{topic} {text} {answer}
type QuestionBank struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionBank(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Draw returns a random prepared question for the topic.
func (b *QuestionBank) Draw(ctx context.Context, topic string) (domain.Question, error) {
	questions, err := b.topicQuestions(ctx, topic)
	if err != nil {
		return domain.Question{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return questions[b.rnd.Intn(len(questions))], nil
}

func (b *QuestionBank) topicQuestions(ctx context.Context, topic string) ([]domain.Question, error) {
	key := b.topicKey(topic)

	cached, err := b.client.HGetAll(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		return questionsFromHash(cached), nil
	}

	result, err, _ := b.sf.Do(topic, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := b.client.HGetAll(ctx, key).Result()
		if err == nil && len(cached) > 0 {
			return questionsFromHash(cached), nil
		}

		questions, err := b.loader.LoadTopic(ctx, topic)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return nil, domain.ErrTopicNotFound
		}

		ttl := b.ttlWithJitter()
		pipe := b.client.Pipeline()
		for _, q := range questions {
			pipe.HSet(ctx, key, q.Text, q.Answer)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) topicKey(topic string) string {
	return "bank:" + topic
}

func questionsFromHash(entries map[string]string) []domain.Question {
	questions := make([]domain.Question, 0, len(entries))
	for text, answer := range entries {
		questions = append(questions, domain.Question{Text: text, Answer: answer})
	}
	return questions
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
