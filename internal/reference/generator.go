// Package reference produces human readable appointment references of the form
// APT-<year>-<6 digit sequence>.
package reference

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// ErrSequenceUnavailable is returned by a Store when the backing sequence does not exist.
// Only this error triggers the fallback strategies; anything else propagates.
var ErrSequenceUnavailable = errors.New("reference sequence unavailable")

// Store is the persistence the generator draws numbers from. Implementations run inside
// the booking transaction.
type Store interface {
	// NextReferenceSequence advances and returns the global reference sequence.
	NextReferenceSequence(ctx context.Context) (int64, error)
	// LatestReference returns the most recently created reference starting with prefix,
	// or "" when there is none.
	LatestReference(ctx context.Context, prefix string) (string, error)
}

// Strategy names the path that produced a reference.
type Strategy string

const (
	StrategySequence  Strategy = "sequence"
	StrategyLatest    Strategy = "latest"
	StrategyTimestamp Strategy = "timestamp"
)

const base36Upper = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generator builds references. The zero value is not usable; call New.
type Generator struct {
	now  func() time.Time
	intn func(n int) int
}

func New() *Generator {
	return &Generator{now: time.Now, intn: rand.IntN}
}

// Prefix returns "APT-<year>-".
func Prefix(year int) string {
	return fmt.Sprintf("APT-%d-", year)
}

// Format renders a sequence value for year.
func Format(year int, seq int64) string {
	return fmt.Sprintf("%s%06d", Prefix(year), seq)
}

// Generate returns a new reference and the strategy that produced it.
//
// The sequence is preferred. If it is missing, the latest reference of the current year
// is incremented. If that lookup fails too, a timestamp based reference is returned.
// Uniqueness is ultimately enforced by the unique constraint on insert.
func (g *Generator) Generate(ctx context.Context, store Store) (string, Strategy, error) {
	year := g.now().Year()

	seq, err := store.NextReferenceSequence(ctx)
	if err == nil {
		return Format(year, seq), StrategySequence, nil
	}
	if !errors.Is(err, ErrSequenceUnavailable) {
		return "", "", fmt.Errorf("next reference sequence: %w", err)
	}

	prefix := Prefix(year)
	latest, err := store.LatestReference(ctx, prefix)
	if err != nil {
		return g.timestampReference(), StrategyTimestamp, nil
	}
	return Format(year, nextAfter(latest, prefix)), StrategyLatest, nil
}

// nextAfter parses the numeric suffix of latest. An empty or unparsable reference
// restarts at 1.
func nextAfter(latest, prefix string) int64 {
	suffix, ok := strings.CutPrefix(latest, prefix)
	if !ok {
		return 1
	}
	n, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || n < 0 {
		return 1
	}
	return n + 1
}

func (g *Generator) timestampReference() string {
	ts := strings.ToUpper(strconv.FormatInt(g.now().UnixMilli(), 36))
	var b strings.Builder
	b.Grow(4)
	for range 4 {
		b.WriteByte(base36Upper[g.intn(len(base36Upper))])
	}
	return "APT-" + ts + "-" + b.String()
}
