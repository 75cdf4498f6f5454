// Package idgen generates identifiers for trace records.
package idgen

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

var (
	generatorMutex        sync.Mutex
	generatorInstantiated bool
	generator             Generator
)

// Generator produces unique identifiers.
type Generator interface {
	Generate() string
}

// New returns a sequential generator whose first emitted ID is "1".
func New() Generator {
	return &sequentialGenerator{}
}

// NewParallel returns a generator backed by xid. IDs are globally unique but
// not deterministic.
func NewParallel() Generator {
	return parallelGenerator{}
}

// UseSequentialIDGenerator configures the process-wide generator to produce
// sequential IDs.
func UseSequentialIDGenerator() {
	install(New())
}

// UseParallelIDGenerator configures the process-wide generator to produce xid
// IDs. The IDs generated will not be deterministic anymore.
func UseParallelIDGenerator() {
	install(NewParallel())
}

func install(g Generator) {
	generatorMutex.Lock()
	defer generatorMutex.Unlock()

	if generatorInstantiated {
		log.Panic("cannot change id generator type after using it")
	}

	generator = g
	generatorInstantiated = true
}

// Default returns the process-wide generator, creating a sequential one on
// first use.
func Default() Generator {
	generatorMutex.Lock()
	defer generatorMutex.Unlock()

	if !generatorInstantiated {
		generator = New()
		generatorInstantiated = true
	}

	return generator
}

// Generate returns an ID from the process-wide generator.
func Generate() string {
	return Default().Generate()
}

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() string {
	return strconv.FormatUint(atomic.AddUint64(&g.next, 1), 10)
}

type parallelGenerator struct{}

func (parallelGenerator) Generate() string {
	return xid.New().String()
}
