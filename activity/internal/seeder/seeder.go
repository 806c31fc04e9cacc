// Package seeder generates fake upstream records for development databases.
package seeder

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/pbi-manager/activity-sync/activity/internal/merger"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
	"github.com/pbi-manager/activity-sync/activity/internal/upstream"
)

// Options control the generated data set.
type Options struct {
	Events int
	Users  int
	Start  time.Time
	End    time.Time
	// Seed makes generation reproducible when non-zero.
	Seed int64
}

// DefaultOptions returns 6000 events from 30 users over the last 90 days.
func DefaultOptions() Options {
	end := time.Now().UTC()
	return Options{Events: 6000, Users: 30, Start: end.AddDate(0, 0, -90), End: end}
}

// Merger persists generated records.
type Merger interface {
	Merge(ctx context.Context, records []upstream.RawRecord, runID string) (merger.Result, error)
}

// Generator produces records whose values repeat across a small pool so
// filters and charts have something to group on.
type Generator struct {
	faker *gofakeit.Faker
	opts  Options
	pools map[string][]string
}

func NewGenerator(opts Options) (*Generator, error) {
	if opts.Events <= 0 || opts.Users <= 0 {
		return nil, fmt.Errorf("events and users must be positive")
	}
	if !opts.End.After(opts.Start) {
		return nil, fmt.Errorf("end must be after start")
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Generator{faker: gofakeit.New(seed), opts: opts}
	g.pools = g.buildPools()
	return g, nil
}

func (g *Generator) repeat(n int, fn func() string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fn()
	}
	return out
}

func (g *Generator) email() string {
	return fmt.Sprintf("%s.%s@example.com", strings.ToLower(g.faker.FirstName()), strings.ToLower(g.faker.LastName()))
}

func (g *Generator) phrase() string {
	return strings.TrimSuffix(g.faker.Sentence(4), ".")
}

func (g *Generator) buildPools() map[string][]string {
	users := g.opts.Users
	pools := map[string][]string{
		"activity":       g.repeat(25, g.faker.Word),
		"operation":      g.repeat(15, g.faker.Word),
		"organizationid": g.repeat(1, g.faker.UUID),
		"userid":         g.repeat(users, g.email),
		"userkey":        g.repeat(users, g.faker.UUID),
		"useragent":      g.repeat(users, g.faker.UserAgent),
		"clientip":       g.repeat(users, g.faker.IPv4Address),
		"issuccess":      {"true", "false"},
	}
	for _, f := range models.EventFields {
		if f.System || f.Type != models.FieldTypeString || pools[f.Name] != nil || f.Name == "id" {
			continue
		}
		switch {
		case strings.HasSuffix(f.Name, "id"):
			pools[f.Name] = g.repeat(users*3, g.faker.UUID)
		case strings.HasSuffix(f.Name, "name"):
			pools[f.Name] = g.repeat(users, g.phrase)
		}
	}
	return pools
}

// pick returns a pool value, or "" with probability blank.
func (g *Generator) pick(pool []string, blank float64) string {
	if blank > 0 && g.faker.Float64() < blank {
		return ""
	}
	return pool[g.faker.Number(0, len(pool)-1)]
}

func (g *Generator) between(blank float64) string {
	if blank > 0 && g.faker.Float64() < blank {
		return ""
	}
	return g.faker.DateRange(g.opts.Start, g.opts.End).UTC().Format(time.RFC3339Nano)
}

var required = map[string]bool{
	"activity": true, "operation": true, "organizationid": true, "userid": true, "userkey": true,
}

// Record generates one raw record.
func (g *Generator) Record() upstream.RawRecord {
	rec := upstream.RawRecord{"Id": g.faker.UUID()}

	for _, f := range models.EventFields {
		if f.System || f.Name == "id" {
			continue
		}
		var v string
		switch {
		case f.Name == "creationtime":
			v = g.between(0)
		case f.Type == models.FieldTypeDateTime:
			v = g.between(0.3)
		case g.pools[f.Name] != nil:
			blank := 0.2
			if required[f.Name] || f.Name == "issuccess" {
				blank = 0
			}
			v = g.pick(g.pools[f.Name], blank)
		default:
			if g.faker.Float64() >= 0.3 {
				v = g.faker.Word()
			}
		}
		if f.MaxLen > 0 && utf8.RuneCountInString(v) > f.MaxLen {
			v = string([]rune(v)[:f.MaxLen])
		}
		rec[f.Name] = v
	}

	if g.faker.Float64() < 0.3 {
		noun := []rune(g.faker.Noun())
		if len(noun) > 0 {
			rec["Extra"+strings.ToUpper(string(noun[0]))+string(noun[1:])] = g.faker.Word()
		}
	}
	return rec
}

// Records generates opts.Events records.
func (g *Generator) Records() []upstream.RawRecord {
	out := make([]upstream.RawRecord, g.opts.Events)
	for i := range out {
		out[i] = g.Record()
	}
	return out
}

// Seed generates records and merges them.
func Seed(ctx context.Context, m Merger, opts Options) (merger.Result, error) {
	g, err := NewGenerator(opts)
	if err != nil {
		return merger.Result{}, err
	}
	return m.Merge(ctx, g.Records(), "")
}
