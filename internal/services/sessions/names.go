package sessions

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	apperrors "github.com/killallgit/voxlog/pkg/errors"
)

var (
	nameAdjectives = []string{
		"amber", "brisk", "calm", "dusky", "eager", "fading", "gentle", "hollow",
		"ivory", "jolly", "keen", "lucid", "misty", "nimble", "olive", "quiet",
		"rustic", "silver", "tidy", "umber", "vivid", "wandering", "young", "zesty",
	}
	nameNouns = []string{
		"harbor", "meadow", "lantern", "river", "summit", "orchard", "canyon", "beacon",
		"willow", "comet", "island", "falcon", "garden", "glacier", "ember", "atlas",
		"thistle", "tide", "marble", "compass", "kettle", "pine", "sparrow", "quarry",
	}
)

const maxNameAttempts = 32

// NameGenerator hands out human-friendly session names that are unique across the store
type NameGenerator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	taken map[string]struct{}
}

// NewNameGenerator creates a generator; a nil rng seeds one from the clock
func NewNameGenerator(rng *rand.Rand) *NameGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &NameGenerator{
		rng:   rng,
		taken: make(map[string]struct{}),
	}
}

// Seed marks existing names as used
func (g *NameGenerator) Seed(names ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, name := range names {
		if name = normalizeName(name); name != "" {
			g.taken[name] = struct{}{}
		}
	}
}

// SeedFrom marks every stored session's name as used
func (g *NameGenerator) SeedFrom(ctx context.Context, repo Repository) error {
	all, err := repo.List(ctx, 0)
	if err != nil {
		return err
	}
	for _, session := range all {
		g.Seed(session.IntelligibleName)
	}
	return nil
}

// Generate returns a fresh adjective-noun name and reserves it
func (g *NameGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < maxNameAttempts; i++ {
		name := nameAdjectives[g.rng.Intn(len(nameAdjectives))] + "-" + nameNouns[g.rng.Intn(len(nameNouns))]
		if _, used := g.taken[name]; !used {
			g.taken[name] = struct{}{}
			return name
		}
	}

	base := nameAdjectives[g.rng.Intn(len(nameAdjectives))] + "-" + nameNouns[g.rng.Intn(len(nameNouns))]
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s-%d", base, n)
		if _, used := g.taken[name]; !used {
			g.taken[name] = struct{}{}
			return name
		}
	}
}

// Reserve claims a user-chosen name, failing if another session already holds it
func (g *NameGenerator) Reserve(name string) (string, error) {
	name = normalizeName(name)
	if name == "" {
		return "", apperrors.ValidationError("name", "cannot be empty")
	}
	if len(name) > 64 {
		return "", apperrors.ValidationError("name", "must be at most 64 characters")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, used := g.taken[name]; used {
		return "", apperrors.Conflict("session name", fmt.Sprintf("%q is already in use", name), nil)
	}
	g.taken[name] = struct{}{}
	return name, nil
}

// Release frees a name so it can be handed out again
func (g *NameGenerator) Release(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.taken, normalizeName(name))
}

// normalizeName lowercases and hyphenates free text
func normalizeName(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, "-")
}
