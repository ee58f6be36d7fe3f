package loadgen

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// actions are the rule keys awards are spread over. Points are always sent
// as custom points so the expected totals are known up front.
var actions = []string{
	"POST_CREATED",
	"COMMENT_CREATED",
	"POST_LIKED",
	"COMMENT_LIKED",
	"LESSON_COMPLETED",
	"EVENT_ATTENDED",
}

// resendEvery makes every nth award a resubmission of an earlier one.
const resendEvery = 10

// plan is a generated workload and the totals it should produce.
type plan struct {
	users    []user
	awards   []award
	expected map[string]int64
}

func seedOf(cfg *Config) uint64 {
	if cfg.Seed != 0 {
		return cfg.Seed
	}
	return uint64(time.Now().UnixNano())
}

// generate builds cfg.Users users and cfg.Awards awards over them. Resent
// awards reuse a submission id and do not count towards the expected totals.
func generate(cfg *Config) plan {
	seed := seedOf(cfg)
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	p := plan{
		users:    make([]user, cfg.Users),
		awards:   make([]award, 0, cfg.Awards),
		expected: make(map[string]int64, cfg.Users),
	}
	for i := range p.users {
		id := uuid.NewString()
		p.users[i] = user{
			ID:          id,
			Username:    "load_" + strconv.Itoa(i),
			DisplayName: "Load User " + strconv.Itoa(i),
		}
		p.expected[id] = 0
	}
	if len(p.users) == 0 {
		return p
	}
	for i := 0; i < cfg.Awards; i++ {
		if i > 0 && i%resendEvery == 0 {
			p.awards = append(p.awards, p.awards[rng.IntN(len(p.awards))])
			continue
		}
		u := p.users[skewed(rng, len(p.users))]
		a := award{
			SubmissionID: uuid.NewString(),
			UserID:       u.ID,
			ActionKey:    actions[rng.IntN(len(actions))],
			CustomPoints: 1 + rng.Int64N(max(cfg.MaxPoints, 1)),
		}
		if cfg.Communities > 0 {
			a.CommunityID = "community-" + strconv.Itoa(rng.IntN(cfg.Communities))
		}
		p.awards = append(p.awards, a)
		p.expected[u.ID] += a.CustomPoints
	}
	return p
}

// skewed picks an index biased towards the front so a few users dominate
// the board, the way real activity does.
func skewed(rng *rand.Rand, n int) int {
	f := rng.Float64()
	return min(int(f*f*float64(n)), n-1)
}

// sum returns the total expected points of p.
func (p plan) sum() int64 {
	var total int64
	for _, v := range p.expected {
		total += v
	}
	return total
}
