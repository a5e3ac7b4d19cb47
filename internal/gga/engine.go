package gga

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/isbat-dev/timetable-core/internal/constraint"
	"github.com/isbat-dev/timetable-core/internal/models"
)

// Config bounds a GGA run.
type Config struct {
	PopulationSize   int
	MaxGenerations   int
	EliteSize        int
	CrossoverRate    float64
	MutationRate     float64
	TargetFitness    float64
	StallLimit       int
	MaxAge           int
	MutationAttempts int
	Seed             int64
	Weights          Weights
}

// DefaultConfig returns the documented GGA parameters.
func DefaultConfig() Config {
	return Config{
		PopulationSize:   150,
		MaxGenerations:   300,
		EliteSize:        10,
		CrossoverRate:    0.8,
		MutationRate:     0.15,
		TargetFitness:    0.95,
		StallLimit:       60,
		MaxAge:           50,
		MutationAttempts: 5,
	}
}

// Outcome reports the optimisation result.
type Outcome struct {
	Best           *Chromosome
	Generations    int
	FitnessHistory []float64
	Stalled        bool
	Elapsed        time.Duration
}

// Engine runs the guided genetic algorithm over one CSP output.
type Engine struct {
	res       *constraint.Resources
	cfg       Config
	rng       *rand.Rand
	evaluator *Evaluator
	operators *Operators
	logger    *zap.Logger

	mutationRate float64
	population   []*Chromosome
	bestEver     *Chromosome
	stallCount   int
	history      []float64
}

// NewEngine builds an engine; zero config fields fall back to defaults.
func NewEngine(res *constraint.Resources, cfg Config, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.PopulationSize <= 0 {
		cfg.PopulationSize = def.PopulationSize
	}
	if cfg.MaxGenerations <= 0 {
		cfg.MaxGenerations = def.MaxGenerations
	}
	if cfg.EliteSize <= 0 {
		cfg.EliteSize = def.EliteSize
	}
	if cfg.CrossoverRate <= 0 {
		cfg.CrossoverRate = def.CrossoverRate
	}
	if cfg.MutationRate <= 0 {
		cfg.MutationRate = def.MutationRate
	}
	if cfg.StallLimit <= 0 {
		cfg.StallLimit = def.StallLimit
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.MutationAttempts <= 0 {
		cfg.MutationAttempts = def.MutationAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return &Engine{
		res:          res,
		cfg:          cfg,
		rng:          rng,
		evaluator:    NewEvaluator(res, cfg.Weights),
		operators:    NewOperators(res, rng, cfg.MutationAttempts),
		logger:       logger,
		mutationRate: cfg.MutationRate,
	}
}

// Optimize evolves the initial assignment set and returns the best
// chromosome found. Cancellation is polled between generations.
func (e *Engine) Optimize(ctx context.Context, initial map[string]models.Assignment) *Outcome {
	start := time.Now()
	base := NewChromosome(initial)
	e.evaluator.Evaluate(base)
	e.population = e.initializePopulation(base)
	e.bestEver = base

	generation := 0
	for ; generation < e.cfg.MaxGenerations; generation++ {
		if ctx != nil && ctx.Err() != nil {
			break
		}

		parents := e.selectParents()
		offspring := e.breed(parents, generation+1)
		for _, child := range offspring {
			e.evaluator.Evaluate(child)
		}
		e.population = e.replace(offspring)

		top := e.population[0]
		e.history = append(e.history, top.Fitness.Overall)
		if top.Fitness.Overall > e.bestEver.Fitness.Overall {
			e.bestEver = top
			e.stallCount = 0
		} else {
			e.stallCount++
		}

		if generation > 0 && generation%50 == 0 {
			e.adjustParameters(generation)
		}
		if e.bestEver.Fitness.Overall >= e.cfg.TargetFitness {
			e.logger.Info("target fitness reached",
				zap.Int("generation", generation),
				zap.Float64("fitness", e.bestEver.Fitness.Overall))
			generation++
			break
		}
		if e.stallCount >= e.cfg.StallLimit {
			e.logger.Info("optimisation stalled",
				zap.Int("generation", generation),
				zap.Float64("fitness", e.bestEver.Fitness.Overall))
			generation++
			break
		}
	}

	return &Outcome{
		Best:           e.bestEver,
		Generations:    generation,
		FitnessHistory: e.history,
		Stalled:        e.stallCount >= e.cfg.StallLimit,
		Elapsed:        time.Since(start),
	}
}

// initializePopulation seeds the population with the base individual kept
// verbatim plus locally mutated variants, so the GGA can never regress
// below the CSP result.
func (e *Engine) initializePopulation(base *Chromosome) []*Chromosome {
	population := []*Chromosome{base}
	for len(population) < e.cfg.PopulationSize {
		variant := e.operators.LocalVariant(base)
		e.evaluator.Evaluate(variant)
		population = append(population, variant)
	}
	e.sortPopulation(population)
	return population
}

func (e *Engine) selectParents() []*Chromosome {
	parents := make([]*Chromosome, 0, e.cfg.PopulationSize)
	elites := e.cfg.EliteSize
	if elites > len(e.population) {
		elites = len(e.population)
	}
	parents = append(parents, e.population[:elites]...)
	for len(parents) < e.cfg.PopulationSize {
		parents = append(parents, e.operators.Tournament(e.population, 3))
	}
	return parents
}

func (e *Engine) breed(parents []*Chromosome, generation int) []*Chromosome {
	var offspring []*Chromosome
	for i := 0; i+1 < len(parents); i += 2 {
		p1, p2 := parents[i], parents[i+1]
		var c1, c2 *Chromosome
		if e.rng.Float64() < e.cfg.CrossoverRate {
			c1, c2 = e.operators.UniformCrossover(p1, p2)
		} else {
			c1, c2 = p1.Clone(), p2.Clone()
		}
		if e.rng.Float64() < e.mutationRate {
			c1 = e.operators.Mutate(c1)
		}
		if e.rng.Float64() < e.mutationRate {
			c2 = e.operators.Mutate(c2)
		}
		c1.Generation = generation
		c2.Generation = generation
		offspring = append(offspring, c1, c2)
	}
	return offspring
}

// replace performs age-based replacement: elites survive unconditionally,
// then the combined pool fills remaining slots skipping individuals older
// than the cap, backfilling from the remainder when needed.
func (e *Engine) replace(offspring []*Chromosome) []*Chromosome {
	for _, c := range e.population {
		c.Age++
	}
	combined := append(append([]*Chromosome(nil), e.population...), offspring...)
	e.sortPopulation(combined)

	next := make([]*Chromosome, 0, e.cfg.PopulationSize)
	elites := e.cfg.EliteSize
	if elites > len(combined) {
		elites = len(combined)
	}
	next = append(next, combined[:elites]...)

	var skipped []*Chromosome
	for _, c := range combined[elites:] {
		if len(next) >= e.cfg.PopulationSize {
			break
		}
		if c.Age > e.cfg.MaxAge {
			skipped = append(skipped, c)
			continue
		}
		next = append(next, c)
	}
	for _, c := range skipped {
		if len(next) >= e.cfg.PopulationSize {
			break
		}
		next = append(next, c)
	}
	return next
}

// adjustParameters inspects the trailing 50-generation improvement rate and
// nudges the mutation rate: up 20% when stagnating, down 5% when improving
// strongly.
func (e *Engine) adjustParameters(generation int) {
	window := 50
	if len(e.history) <= window {
		return
	}
	then := e.history[len(e.history)-window-1]
	now := e.history[len(e.history)-1]
	if then == 0 {
		return
	}
	improvement := (now - then) / absFloat(then)
	switch {
	case improvement < 0.01:
		e.mutationRate *= 1.2
		if e.mutationRate > 0.5 {
			e.mutationRate = 0.5
		}
	case improvement > 0.05:
		e.mutationRate *= 0.95
		if e.mutationRate < 0.05 {
			e.mutationRate = 0.05
		}
	}
	e.logger.Debug("adaptive parameters",
		zap.Int("generation", generation),
		zap.Float64("improvement", improvement),
		zap.Float64("mutation_rate", e.mutationRate))
}

func (e *Engine) sortPopulation(population []*Chromosome) {
	sort.SliceStable(population, func(i, j int) bool {
		return population[i].Fitness.Overall > population[j].Fitness.Overall
	})
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
