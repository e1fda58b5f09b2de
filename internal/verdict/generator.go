package verdict

import (
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source yields independent uniform values in [0,1). *rand.Rand from
// math/rand/v2 satisfies it, and tests plug in fixed sequences.
type Source interface {
	Float64() float64
}

// NewSeededSource returns a reproducible PCG-backed source.
func NewSeededSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewRandomSource returns a source seeded from the runtime's entropy.
func NewRandomSource() Source {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Probability thresholds for the death rolls.
const (
	aboutToDieDeathChance = 0.6
	oldDeathChance        = 0.12
	suddenDeathChance     = 0.03
	keywordDeathChance    = 0.7
)

type ageRange struct {
	category AgeCategory
	lo, hi   float64
}

// ageRanges partition [0,1) into contiguous half-open ranges. The last one is
// treated as closed on the right by CategoryFor.
var ageRanges = []ageRange{
	{Newborn, 0, 0.2},
	{Baby, 0.2, 0.4},
	{Young, 0.4, 0.6},
	{Adult, 0.6, 0.8},
	{Old, 0.8, 0.94},
	{AboutToDie, 0.94, 1.0},
}

var (
	fisherKeywords = []string{"net", "fisher", "fishing", "rod", "hook", "boat", "fishman", "fisherman"}
	birdKeywords   = []string{"kingfisher", "bird", "wing", "beak", "king", "kff"}
)

// healthNotes are flavor lines picked uniformly for every verdict.
var healthNotes = []string{
	"Healthy as a sea cucumber 🥒",
	"Too much plankton binge 🍽️",
	"Low morale - wants to travel 🚣",
	"Suffering from fishy gossip 🐠",
	"Loves dramatic fainting spells 😴",
	"Has a secret identity crisis 🐟➡️🐬",
	"Minor scale rash, will be fine!",
}

// HealthNotes returns a copy of the flavor note list.
func HealthNotes() []string {
	return append([]string(nil), healthNotes...)
}

// CategoryFor maps a draw onto its age category. Draws below zero clamp to
// Newborn and anything at or above the AboutToDie floor, 1.0 included, is
// AboutToDie so the partition has no gaps.
func CategoryFor(r float64) AgeCategory {
	last := ageRanges[len(ageRanges)-1]
	if r >= last.lo {
		return last.category
	}
	for _, ar := range ageRanges {
		if r >= ar.lo && r < ar.hi {
			return ar.category
		}
	}
	return Newborn
}

// ExactAgeFor scales a draw to years with one decimal, kept inside [0, 9.9].
func ExactAgeFor(r float64) float64 {
	age := math.Round(r*100) / 10
	switch {
	case age < 0 || math.IsNaN(age):
		return 0
	case age >= 10:
		return 9.9
	}
	return age
}

// DetectCause scans a filename for cause keywords. The fisher set is checked
// first and the bird set only when it had no hit. The returned keyword is the
// first match in list order.
func DetectCause(filename string) (Cause, string, bool) {
	name := normalize(filename)
	if name == "" {
		return CauseNone, "", false
	}
	for _, kw := range fisherKeywords {
		if strings.Contains(name, kw) {
			return CauseFisherman, kw, true
		}
	}
	for _, kw := range birdKeywords {
		if strings.Contains(name, kw) {
			return CauseBird, kw, true
		}
	}
	return CauseNone, "", false
}

func normalize(filename string) string {
	return strings.TrimSpace(strings.ToLower(filename))
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the time source used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithIDFunc overrides how verdict IDs are minted.
func WithIDFunc(id func() string) Option {
	return func(g *Generator) {
		if id != nil {
			g.newID = id
		}
	}
}

// Generator turns filenames into verdicts. It is safe for concurrent use;
// the mutex keeps each verdict's draws contiguous in the source's sequence.
type Generator struct {
	mu    sync.Mutex
	src   Source
	now   func() time.Time
	newID func() string
}

// NewGenerator builds a Generator around src. A nil src falls back to a
// randomly seeded one.
func NewGenerator(src Source, opts ...Option) *Generator {
	if src == nil {
		src = NewRandomSource()
	}
	g := &Generator{
		src:   src,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate draws a verdict for filename. Draws happen in the order r1 (age
// category), r2 (exact age), r3 (natural death), r4 (keyword override, only
// when a keyword hit a living fish) and r5 (notes). It never fails.
//
// r4 is conditional: a verdict consumes five draws when the keyword roll
// happens and four otherwise, in which case the notes come from the fourth
// value. Sources replaying a fixed sequence must be built with that in mind.
func (g *Generator) Generate(filename string, media Media) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	category := CategoryFor(g.src.Float64())
	age := ExactAgeFor(g.src.Float64())
	cause, keyword, detected := DetectCause(filename)

	var (
		status string
		dead   bool
	)
	r3 := g.src.Float64()
	switch category {
	case AboutToDie:
		if r3 < aboutToDieDeathChance {
			status, dead = StatusCritical, true
		} else {
			status = StatusWeak
		}
	case Old:
		if r3 < oldDeathChance {
			status, dead = StatusPassedAway, true
		} else {
			status = StatusOldSwimming
		}
	default:
		if r3 < suddenDeathChance {
			status, dead = StatusUnexpected, true
		} else {
			status = StatusHappy
		}
	}

	if detected && !dead {
		if g.src.Float64() < keywordDeathChance {
			dead = true
			if cause == CauseFisherman {
				status = StatusCaughtByFisher
			} else {
				status = StatusSnatchedByBird
			}
		}
	}

	if !dead {
		// A keyword hit alone never surfaces a cause.
		cause, keyword = CauseNone, ""
	}

	return Verdict{
		ID:          g.newID(),
		AgeCategory: category,
		ExactAge:    age,
		Status:      status,
		Dead:        dead,
		Cause:       cause,
		Keyword:     keyword,
		Notes:       pickNote(g.src.Float64()),
		GeneratedAt: g.now(),
		Media:       media,
	}
}

func pickNote(r float64) string {
	idx := int(math.Floor(r * float64(len(healthNotes))))
	if idx < 0 || math.IsNaN(r) {
		idx = 0
	}
	if idx >= len(healthNotes) {
		idx = len(healthNotes) - 1
	}
	return healthNotes[idx]
}
