package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jamal-o/guessing-game-server/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches bank content for a topic from a backing store.
type QuestionLoader interface {
	LoadTopic(ctx context.Context, topic string) ([]domain.Question, error)
}

// QuestionBank caches topic question sets with TTL to avoid repeated DB hits.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.Mutex
	cache map[string]cachedTopic
}

type cachedTopic struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTopic),
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
	now := b.clock()

	b.mu.Lock()
	if entry, ok := b.cache[topic]; ok && entry.expiresAt.After(now) {
		b.mu.Unlock()
		return entry.questions, nil
	}
	b.mu.Unlock()

	result, err, _ := b.sf.Do(topic, func() (interface{}, error) {
		now := b.clock()
		b.mu.Lock()
		if entry, ok := b.cache[topic]; ok && entry.expiresAt.After(now) {
			b.mu.Unlock()
			return entry.questions, nil
		}
		b.mu.Unlock()

		questions, err := b.loader.LoadTopic(ctx, topic)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return nil, domain.ErrTopicNotFound
		}

		b.mu.Lock()
		b.cache[topic] = cachedTopic{
			questions: questions,
			expiresAt: now.Add(b.ttlWithJitter()),
		}
		b.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader serves bank content from an in-memory map (useful
// for tests/demos and when postgres is not configured).
type StaticQuestionLoader struct {
	topics map[string][]domain.Question
}

func NewStaticQuestionLoader(topics map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{topics: topics}
}

func (l *StaticQuestionLoader) LoadTopic(_ context.Context, topic string) ([]domain.Question, error) {
	if questions, ok := l.topics[topic]; ok {
		return questions, nil
	}
	return nil, domain.ErrTopicNotFound
}
