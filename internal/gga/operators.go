package gga

import (
	"math/rand"

	"github.com/isbat-dev/timetable-core/internal/constraint"
	"github.com/isbat-dev/timetable-core/internal/models"
)

// Operators implements selection, crossover and the violation-prioritised
// mutation over chromosomes.
type Operators struct {
	res         *constraint.Resources
	rng         *rand.Rand
	maxAttempts int
}

// NewOperators wires the genetic operators.
func NewOperators(res *constraint.Resources, rng *rand.Rand, maxAttempts int) *Operators {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Operators{res: res, rng: rng, maxAttempts: maxAttempts}
}

// Tournament draws k random contenders and returns the fittest.
func (o *Operators) Tournament(population []*Chromosome, k int) *Chromosome {
	best := population[o.rng.Intn(len(population))]
	for i := 1; i < k; i++ {
		challenger := population[o.rng.Intn(len(population))]
		if challenger.Fitness.Overall > best.Fitness.Overall {
			best = challenger
		}
	}
	return best
}

// UniformCrossover swaps each gene position independently with probability
// one half. Offspring are accepted unfiltered; the violation penalty
// governs their survival.
func (o *Operators) UniformCrossover(a, b *Chromosome) (*Chromosome, *Chromosome) {
	child1, child2 := a.Clone(), b.Clone()
	n := len(child1.Genes)
	if len(child2.Genes) < n {
		n = len(child2.Genes)
	}
	for i := 0; i < n; i++ {
		if o.rng.Float64() < 0.5 {
			child1.Genes[i], child2.Genes[i] = child2.Genes[i], child1.Genes[i]
		}
	}
	return child1, child2
}

// chromosomeViolations summarises repairable breaches inside a chromosome.
type chromosomeViolations struct {
	weeklyOver  []string // lecturer ids beyond their weekly cap
	dailyOver   []lecturerDay
	overloaded  []models.Weekday
	lightest    models.Weekday
	hasAny      bool
}

type lecturerDay struct {
	lecturerID string
	day        models.Weekday
}

// Mutate applies one mutation: with 70% probability a targeted fix when a
// violation exists, otherwise a regular balancing or slot-swap move. Peers
// and canonical siblings always travel together. The mutated chromosome
// must hold the critical constraints; after maxAttempts failures the
// original is kept.
func (o *Operators) Mutate(c *Chromosome) *Chromosome {
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		mutant := c.Clone()
		viols := o.identifyViolations(mutant)

		applied := false
		if viols.hasAny && o.rng.Float64() < 0.7 {
			applied = o.applyTargetedFix(mutant, viols)
		}
		if !applied {
			applied = o.applyRegularMutation(mutant)
		}
		if applied && o.criticallyValid(mutant) {
			return mutant
		}
	}
	return c
}

// LocalVariant derives a neighbour of the base individual for population
// seeding: a room reallocation, a lecturer swap or a regular balancing
// move, whichever first yields a critically valid chromosome.
func (o *Operators) LocalVariant(c *Chromosome) *Chromosome {
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		mutant := c.Clone()
		applied := false
		switch o.rng.Intn(3) {
		case 0:
			applied = o.reallocateRoom(mutant)
		case 1:
			applied = o.swapLecturer(mutant)
		default:
			applied = o.applyRegularMutation(mutant)
		}
		if applied && o.criticallyValid(mutant) {
			return mutant
		}
	}
	return c.Clone()
}

// reallocateRoom moves one gene to an alternative room from its domain.
func (o *Operators) reallocateRoom(c *Chromosome) bool {
	if len(c.Genes) == 0 {
		return false
	}
	idx := o.rng.Intn(len(c.Genes))
	gene := c.Genes[idx]
	v, ok := o.res.Set.VariableByID(gene.VariableID)
	if !ok {
		return false
	}
	for _, alt := range v.Rooms {
		if alt != gene.RoomID {
			c.Genes[idx].RoomID = alt
			return true
		}
	}
	return false
}

// swapLecturer hands one gene to an alternative qualified lecturer.
func (o *Operators) swapLecturer(c *Chromosome) bool {
	if len(c.Genes) == 0 {
		return false
	}
	idx := o.rng.Intn(len(c.Genes))
	gene := c.Genes[idx]
	v, ok := o.res.Set.VariableByID(gene.VariableID)
	if !ok {
		return false
	}
	for _, alt := range v.Lecturers {
		if alt != gene.LecturerID && v.LecturerAdmits(alt, gene.SlotKey) {
			c.Genes[idx].LecturerID = alt
			return true
		}
	}
	return false
}

func (o *Operators) identifyViolations(c *Chromosome) chromosomeViolations {
	weekly := make(map[string]int)
	daily := make(map[lecturerDay]int)
	dayLoads := make(map[models.Weekday]int)
	for _, g := range c.Genes {
		weekly[g.LecturerID] += 2
		daily[lecturerDay{g.LecturerID, g.Day}]++
		dayLoads[g.Day]++
	}

	var out chromosomeViolations
	for id, hours := range weekly {
		lecturer := o.res.Lecturers[id]
		if lecturer == nil {
			continue
		}
		if limit := lecturer.WeeklyHourCap(); limit > 0 && hours > limit {
			out.weeklyOver = append(out.weeklyOver, id)
		}
	}
	for ld, count := range daily {
		if count > 2 {
			out.dailyOver = append(out.dailyOver, ld)
		}
	}

	total := 0
	for _, n := range dayLoads {
		total += n
	}
	mean := float64(total) / float64(len(models.Weekdays))
	lightest := models.Weekdays[0]
	for _, day := range models.Weekdays {
		if dayLoads[day] < dayLoads[lightest] {
			lightest = day
		}
		if float64(dayLoads[day]) > 1.8*mean && dayLoads[day] > 1 {
			out.overloaded = append(out.overloaded, day)
		}
	}
	out.lightest = lightest
	out.hasAny = len(out.weeklyOver) > 0 || len(out.dailyOver) > 0 || len(out.overloaded) > 0
	return out
}

func (o *Operators) applyTargetedFix(c *Chromosome, viols chromosomeViolations) bool {
	switch {
	case len(viols.weeklyOver) > 0:
		return o.fixWeeklyLimit(c, viols.weeklyOver[o.rng.Intn(len(viols.weeklyOver))])
	case len(viols.dailyOver) > 0:
		return o.fixDailyLimit(c, viols.dailyOver[o.rng.Intn(len(viols.dailyOver))])
	case len(viols.overloaded) > 0:
		day := viols.overloaded[o.rng.Intn(len(viols.overloaded))]
		return o.moveGeneBetweenDays(c, day, viols.lightest)
	}
	return false
}

// fixWeeklyLimit hands one of the violator's genes to an alternative
// qualified lecturer.
func (o *Operators) fixWeeklyLimit(c *Chromosome, lecturerID string) bool {
	indices := o.genesOfLecturer(c, lecturerID)
	o.rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	for _, idx := range indices {
		gene := c.Genes[idx]
		v, ok := o.res.Set.VariableByID(gene.VariableID)
		if !ok {
			continue
		}
		for _, alt := range v.Lecturers {
			if alt == lecturerID || !v.LecturerAdmits(alt, gene.SlotKey) {
				continue
			}
			c.Genes[idx].LecturerID = alt
			return true
		}
	}
	return false
}

// fixDailyLimit moves one of the violator's genes on that day to another
// day, dragging its peers along.
func (o *Operators) fixDailyLimit(c *Chromosome, ld lecturerDay) bool {
	var indices []int
	for i, g := range c.Genes {
		if g.LecturerID == ld.lecturerID && g.Day == ld.day {
			indices = append(indices, i)
		}
	}
	o.rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	for _, idx := range indices {
		for _, day := range o.shuffledDays() {
			if day == ld.day {
				continue
			}
			if o.moveGeneToDay(c, idx, day) {
				return true
			}
		}
	}
	return false
}

func (o *Operators) moveGeneBetweenDays(c *Chromosome, from, to models.Weekday) bool {
	var indices []int
	for i, g := range c.Genes {
		if g.Day == from {
			indices = append(indices, i)
		}
	}
	o.rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	for _, idx := range indices {
		if o.moveGeneToDay(c, idx, to) {
			return true
		}
	}
	return false
}

// applyRegularMutation performs either a weekday-balancing move or a
// two-gene time-slot swap.
func (o *Operators) applyRegularMutation(c *Chromosome) bool {
	if len(c.Genes) == 0 {
		return false
	}
	if o.rng.Float64() < 0.5 {
		viols := o.identifyViolations(c)
		busiest := models.Weekdays[0]
		counts := make(map[models.Weekday]int)
		for _, g := range c.Genes {
			counts[g.Day]++
		}
		for _, day := range models.Weekdays {
			if counts[day] > counts[busiest] {
				busiest = day
			}
		}
		if busiest != viols.lightest && o.moveGeneBetweenDays(c, busiest, viols.lightest) {
			return true
		}
	}
	return o.swapTwoGeneSlots(c)
}

// swapTwoGeneSlots exchanges the time-slots of two random genes, moving
// each gene's peer cluster with it.
func (o *Operators) swapTwoGeneSlots(c *Chromosome) bool {
	if len(c.Genes) < 2 {
		return false
	}
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		i := o.rng.Intn(len(c.Genes))
		j := o.rng.Intn(len(c.Genes))
		if i == j {
			continue
		}
		gi, gj := c.Genes[i], c.Genes[j]
		if gi.SlotKey == gj.SlotKey {
			continue
		}
		vi, okI := o.res.Set.VariableByID(gi.VariableID)
		vj, okJ := o.res.Set.VariableByID(gj.VariableID)
		if !okI || !okJ {
			continue
		}
		if !slotAdmissible(vi, gi.LecturerID, gj.SlotKey) || !slotAdmissible(vj, gj.LecturerID, gi.SlotKey) {
			continue
		}
		o.relocateCluster(c, i, gj.SlotKey, gj.Day, gj.Period)
		o.relocateCluster(c, j, gi.SlotKey, gi.Day, gi.Period)
		return true
	}
	return false
}

// moveGeneToDay relocates a gene (and its peers) to the same period on a
// different day when that slot exists and the lecturer admits it.
func (o *Operators) moveGeneToDay(c *Chromosome, idx int, day models.Weekday) bool {
	gene := c.Genes[idx]
	target := models.TimeSlot{Period: gene.Period, Day: day}.Key()
	slot, ok := o.res.Catalogue.Lookup(target)
	if !ok {
		return false
	}
	v, found := o.res.Set.VariableByID(gene.VariableID)
	if !found || !slotAdmissible(v, gene.LecturerID, target) {
		return false
	}
	for _, peerID := range o.res.Set.Pairs[gene.VariableID] {
		peerIdx := c.GeneIndex(peerID)
		if peerIdx < 0 {
			continue
		}
		pv, okPeer := o.res.Set.VariableByID(peerID)
		if !okPeer || !slotAdmissible(pv, c.Genes[peerIdx].LecturerID, target) {
			return false
		}
	}
	o.relocateCluster(c, idx, target, slot.Day, slot.Period)
	return true
}

// relocateCluster moves a gene and every peer gene to the slot key.
func (o *Operators) relocateCluster(c *Chromosome, idx int, slotKey string, day models.Weekday, period string) {
	move := func(i int) {
		c.Genes[i].SlotKey = slotKey
		c.Genes[i].Day = day
		c.Genes[i].Period = period
	}
	move(idx)
	for _, peerID := range o.res.Set.Pairs[c.Genes[idx].VariableID] {
		if peerIdx := c.GeneIndex(peerID); peerIdx >= 0 {
			move(peerIdx)
		}
	}
}

// criticallyValid replays the genes against the critical constraints only;
// limit violations are left for the penalty and later mutations to repair.
func (o *Operators) criticallyValid(c *Chromosome) bool {
	ctx := constraint.NewContext(o.res)
	for _, g := range c.Genes {
		if v := ctx.CheckCritical(g); v != nil {
			return false
		}
		ctx.Add(g)
	}
	return true
}

func (o *Operators) genesOfLecturer(c *Chromosome, lecturerID string) []int {
	var out []int
	for i, g := range c.Genes {
		if g.LecturerID == lecturerID {
			out = append(out, i)
		}
	}
	return out
}

func (o *Operators) shuffledDays() []models.Weekday {
	days := append([]models.Weekday(nil), models.Weekdays...)
	o.rng.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })
	return days
}

func slotAdmissible(v *models.Variable, lecturerID, slotKey string) bool {
	found := false
	for _, s := range v.TimeSlots {
		if s == slotKey {
			found = true
			break
		}
	}
	return found && v.LecturerAdmits(lecturerID, slotKey)
}
