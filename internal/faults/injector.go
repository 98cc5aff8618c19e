// Package faults simulates tool failures so that the recovery paths of the agent can be exercised.
//
// When enabled, every wrapped invocation fails. The weighted failure list only decides which
// failure is surfaced.
package faults

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// FailureType is one simulated failure. Probability is a relative weight and need not sum to 1.
type FailureType struct {
	Type        string  `json:"type" yaml:"type"`
	Message     string  `json:"message" yaml:"message"`
	Probability float64 `json:"probability" yaml:"probability"`
}

// Generic is surfaced when no failure types are configured.
var Generic = FailureType{
	Type:        "generic",
	Message:     "Simulated tool failure",
	Probability: 1.0,
}

// SimulatedFailure is the error returned for an injected failure.
type SimulatedFailure struct {
	Tool    string
	Failure FailureType
}

func (e *SimulatedFailure) Error() string {
	return fmt.Sprintf("Simulated %s error: %s", e.Failure.Type, e.Failure.Message)
}

// Injector picks and raises simulated failures. It is safe for concurrent use.
type Injector struct {
	mu      sync.Mutex
	enabled bool
	types   []FailureType
	rnd     *rand.Rand
}

// New returns a disabled injector drawing from src. A nil src uses a randomly seeded source.
func New(src rand.Source) *Injector {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Injector{rnd: rand.New(src)}
}

// NewSeeded returns an injector with a reproducible draw sequence.
func NewSeeded(seed uint64) *Injector {
	return New(rand.NewPCG(seed, seed))
}

// Configure replaces the enabled flag and the weighted failure list.
func (i *Injector) Configure(enabled bool, types []FailureType) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.enabled = enabled
	i.types = append([]FailureType(nil), types...)
}

// Enabled reports whether injection is active.
func (i *Injector) Enabled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.enabled
}

// Pick selects a failure by weight.
func (i *Injector) Pick() FailureType {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pick()
}

func (i *Injector) pick() FailureType {
	if len(i.types) == 0 {
		return Generic
	}

	var total float64
	for _, ft := range i.types {
		total += ft.Probability
	}
	if total <= 0 {
		return i.types[0]
	}

	r := i.rnd.Float64() * total
	var cum float64
	for _, ft := range i.types {
		cum += ft.Probability
		if cum >= r {
			return ft
		}
	}
	return i.types[len(i.types)-1]
}

// Inject returns a *SimulatedFailure for tool when enabled and nil otherwise.
func (i *Injector) Inject(tool string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.enabled {
		return nil
	}
	return &SimulatedFailure{Tool: tool, Failure: i.pick()}
}
