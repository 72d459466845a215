// Package compose produces short filler messages for activation traffic.
// Real campaign content comes from an external composer (AI or operator
// authored); this package only covers the low-stakes filler pool, which
// ships with canned lines so the scheduler works without any external
// service configured.
package compose

import (
	"context"
	"math/rand"
	"sync"

	"github.com/atlasleads/sendguard/internal/domain"
)

// Composer produces one message body for the given style. Implementations
// may be slow (an AI call); callers pass a context.
type Composer interface {
	Compose(ctx context.Context, style domain.MessageStyle) (string, error)
}

var casualLines = []string{
	"Hey, how's it going?",
	"All good here, how about you?",
	"Hi! How have you been?",
	"Doing well, thanks. And you?",
	"Hey, everything okay?",
	"All fine, how's work?",
	"Good, thanks for asking!",
	"All well over here, any news?",
	"Hey there, how's the family?",
	"Same as always, can't complain",
	"Long time! How are things?",
	"Pretty good, just busy lately",
	"Hi, anything new with you?",
	"All good, talk soon?",
	"Hope your week is going well",
	"Thanks, you too! Take care",
	"Hey, how was the weekend?",
	"Great weather today, right?",
	"All set on my end, you?",
	"Catch up later this week?",
}

var businessLines = []string{
	"Hi, are you available right now?",
	"Hello, I'd like to coordinate with you",
	"Hi, did you receive the file?",
	"The task is done, just letting you know",
	"Hello, have you reviewed the request?",
	"Our meeting is tomorrow, confirming",
	"Thanks for following up",
	"Quick update: everything is on track",
	"Any changes needed on your side?",
	"Things are moving along well",
}

// CannedComposer picks a random line from fixed pools. Safe for
// concurrent use.
type CannedComposer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewCannedComposer creates a composer seeded from the given source.
// Pass rand.NewSource(time.Now().UnixNano()) in production; tests pass a
// fixed seed.
func NewCannedComposer(src rand.Source) *CannedComposer {
	return &CannedComposer{rng: rand.New(src)}
}

// Compose returns one line matching the style. Unknown styles fall back
// to the mixed pool.
func (c *CannedComposer) Compose(_ context.Context, style domain.MessageStyle) (string, error) {
	var pool []string
	switch style {
	case domain.StyleCasual:
		pool = casualLines
	case domain.StyleBusiness:
		pool = businessLines
	default:
		pool = make([]string, 0, len(casualLines)+len(businessLines))
		pool = append(pool, casualLines...)
		pool = append(pool, businessLines...)
	}

	c.mu.Lock()
	line := pool[c.rng.Intn(len(pool))]
	c.mu.Unlock()
	return line, nil
}
