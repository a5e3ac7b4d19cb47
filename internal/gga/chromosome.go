// Package gga evolves CSP output with a guided genetic algorithm: fitness
// over soft constraints, uniform crossover and violation-prioritised
// mutation.
package gga

import (
	"sort"

	"github.com/google/uuid"

	"github.com/isbat-dev/timetable-core/internal/models"
)

// Chromosome is a flat gene sequence over the assigned variables, ordered
// by variable id so crossover positions line up across the population.
type Chromosome struct {
	ID         string
	Genes      []models.Assignment
	Generation int
	Age        int
	Fitness    Score
	evaluated  bool
}

// NewChromosome builds a chromosome from an assignment set.
func NewChromosome(assignments map[string]models.Assignment) *Chromosome {
	genes := make([]models.Assignment, 0, len(assignments))
	for _, a := range assignments {
		genes = append(genes, a)
	}
	sort.Slice(genes, func(i, j int) bool { return genes[i].VariableID < genes[j].VariableID })
	return &Chromosome{ID: uuid.NewString(), Genes: genes}
}

// Clone deep-copies the chromosome under a fresh identity.
func (c *Chromosome) Clone() *Chromosome {
	genes := make([]models.Assignment, len(c.Genes))
	copy(genes, c.Genes)
	return &Chromosome{
		ID:         uuid.NewString(),
		Genes:      genes,
		Generation: c.Generation,
	}
}

// GeneIndex returns the position of a variable's gene, or -1.
func (c *Chromosome) GeneIndex(variableID string) int {
	for i, g := range c.Genes {
		if g.VariableID == variableID {
			return i
		}
	}
	return -1
}

// Assignments materialises the genes as an assignment map.
func (c *Chromosome) Assignments() map[string]models.Assignment {
	out := make(map[string]models.Assignment, len(c.Genes))
	for _, g := range c.Genes {
		out[g.VariableID] = g
	}
	return out
}
