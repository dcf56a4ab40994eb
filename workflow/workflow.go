// Package workflow defines the configured group chat workflows: weather
// lookup, financial transaction approval and hierarchical renewable energy
// research.
package workflow

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/hupe1980/groupchat/groupchat"
)

// Options are the injectable inputs of workflow construction.
type Options struct {
	// Rand drives random choices (finance transactions).
	Rand *rand.Rand
	// Now is the clock used by tools reporting the time.
	Now func() time.Time
}

// Definition is a named pattern constructor.
type Definition struct {
	Name        string
	Description string
	Build       func(opts Options) (groupchat.Pattern, error)
}

// Pattern builds the pattern with defaults applied to opts.
func (d Definition) Pattern(optFns ...func(o *Options)) (groupchat.Pattern, error) {
	opts := Options{
		Rand: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		Now:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return d.Build(opts)
}

var registry = map[string]Definition{}

func register(d Definition) {
	if _, dup := registry[d.Name]; dup {
		panic("workflow: duplicate definition " + d.Name)
	}
	registry[d.Name] = d
}

func init() {
	register(Definition{Name: WeatherName, Description: "Single assistant answering weather questions", Build: Weather})
	register(Definition{Name: FinanceName, Description: "Transaction approval with a human operator", Build: Finance})
	register(Definition{Name: ResearchName, Description: "Hierarchical renewable energy research report", Build: Research})
}

// Lookup returns the definition registered under name.
func Lookup(name string) (Definition, error) {
	d, ok := registry[name]
	if !ok {
		return Definition{}, fmt.Errorf("unknown workflow %q (available: %v)", name, Names())
	}
	return d, nil
}

// Names returns the registered workflow names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
