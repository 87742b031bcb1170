package prompt

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/samber/do"
)

// Randomizer picks an example circuit description for the prompt placeholder.
type Randomizer struct {
	prompts []string

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(prompts []string, seed int64) *Randomizer {
	return &Randomizer{prompts: prompts, rnd: rand.New(rand.NewSource(seed))}
}

func NewRandomizer(i *do.Injector) (*Randomizer, error) {
	prompts := do.MustInvokeNamed[[]string](i, "example_prompts")
	return New(prompts, time.Now().UTC().Unix()), nil
}

func (r *Randomizer) Randomize(ctx context.Context) string {
	if len(r.prompts) == 0 {
		return ""
	}
	r.mu.Lock()
	idx := r.rnd.Intn(len(r.prompts))
	r.mu.Unlock()

	logr.FromContextOrDiscard(ctx).WithName("randomizer").V(1).Info("picked example prompt", "index", idx)
	return r.prompts[idx]
}
