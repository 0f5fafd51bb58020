package memory

import (
	"time"

	"github.com/patrickmn/go-cache"

	"retail-analytics-copilot/pkg/agent"
)

// CheckpointRepository keeps the final pipeline state of recently answered
// questions, keyed by question ID. It backs the interactive mode's "explain
// the last answer" flow and lets batch reruns skip already-answered IDs.
type CheckpointRepository struct {
	cache *cache.Cache
}

func NewCheckpointRepository() *CheckpointRepository {
	// Create a cache with a default expiration time of 1 hour, and which
	// purges expired items every 10 minutes
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &CheckpointRepository{
		cache: c,
	}
}

func (r *CheckpointRepository) Save(state *agent.State) {
	r.cache.Set(state.QuestionID, state, cache.DefaultExpiration)
}

func (r *CheckpointRepository) Get(questionID string) (*agent.State, bool) {
	if x, found := r.cache.Get(questionID); found {
		return x.(*agent.State), true
	}
	return nil, false
}

func (r *CheckpointRepository) Delete(questionID string) {
	r.cache.Delete(questionID)
}
