package gga

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/isbat-dev/timetable-core/internal/constraint"
	"github.com/isbat-dev/timetable-core/internal/models"
)

// Weights distributes the soft-constraint emphasis. They should sum to 1.
type Weights struct {
	StudentIdle         float64
	LecturerBalance     float64
	RoomUtilization     float64
	WeekdayDistribution float64
	SlotPreference      float64
}

// DefaultWeights returns the documented soft-score weighting.
func DefaultWeights() Weights {
	return Weights{
		StudentIdle:         0.27,
		LecturerBalance:     0.22,
		RoomUtilization:     0.14,
		WeekdayDistribution: 0.27,
		SlotPreference:      0.10,
	}
}

// Violation penalty coefficients: the penalty keeps infeasible and
// near-feasible chromosomes comparable while strongly favouring repair.
const (
	criticalPenalty = 0.5
	limitPenalty    = 0.02
)

// Breakdown carries per-metric detail for reporting.
type Breakdown struct {
	AvgGapHours     float64 `json:"avg_gap_hours"`
	MaxGapHours     float64 `json:"max_gap_hours"`
	WorkloadStdDev  float64 `json:"workload_std_dev"`
	OverloadedDays  int     `json:"overloaded_days"`
	AvgOccupancy    float64 `json:"avg_occupancy"`
	RoomWaste       float64 `json:"room_waste"`
	DayLoads        []int   `json:"day_loads"`
	EmptyDays       int     `json:"empty_days"`
	LateSlotCount   int     `json:"late_slot_count"`
	CriticalCount   int     `json:"critical_count"`
	LimitCount      int     `json:"limit_count"`
}

// Score is a complete fitness evaluation.
type Score struct {
	Overall             float64   `json:"overall"`
	StudentIdle         float64   `json:"student_idle"`
	LecturerBalance     float64   `json:"lecturer_balance"`
	RoomUtilization     float64   `json:"room_utilization"`
	WeekdayDistribution float64   `json:"weekday_distribution"`
	SlotPreference      float64   `json:"slot_preference"`
	ViolationPenalty    float64   `json:"violation_penalty"`
	ViolationCount      int       `json:"violation_count"`
	Breakdown           Breakdown `json:"breakdown"`
}

// Evaluator scores chromosomes against the run's resources.
type Evaluator struct {
	res     *constraint.Resources
	weights Weights
}

// NewEvaluator builds an evaluator; zero weights fall back to the defaults.
func NewEvaluator(res *constraint.Resources, weights Weights) *Evaluator {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Evaluator{res: res, weights: weights}
}

// Evaluate computes the weighted soft score minus the violation penalty and
// caches it on the chromosome.
func (e *Evaluator) Evaluate(c *Chromosome) Score {
	if c.evaluated {
		return c.Fitness
	}
	var b Breakdown
	score := Score{
		StudentIdle:         e.studentIdle(c, &b),
		LecturerBalance:     e.lecturerBalance(c, &b),
		RoomUtilization:     e.roomUtilization(c, &b),
		WeekdayDistribution: e.weekdayDistribution(c, &b),
		SlotPreference:      e.slotPreference(c, &b),
	}
	critical, limits := e.countViolations(c)
	b.CriticalCount = critical
	b.LimitCount = limits
	score.ViolationCount = critical + limits
	score.ViolationPenalty = criticalPenalty*float64(critical) + limitPenalty*float64(limits)
	score.Overall = e.weights.StudentIdle*score.StudentIdle +
		e.weights.LecturerBalance*score.LecturerBalance +
		e.weights.RoomUtilization*score.RoomUtilization +
		e.weights.WeekdayDistribution*score.WeekdayDistribution +
		e.weights.SlotPreference*score.SlotPreference -
		score.ViolationPenalty
	score.Breakdown = b
	c.Fitness = score
	c.evaluated = true
	return score
}

// minutesOf parses "HH:MM" into minutes since midnight.
func minutesOf(hhmm string) int {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m
}

type daySpan struct {
	start, end int // minutes
	used       int
}

// studentIdle minimises gaps between consecutive sessions of each group's
// day and rewards compact days.
func (e *Evaluator) studentIdle(c *Chromosome, b *Breakdown) float64 {
	type key struct {
		program string
		day     models.Weekday
	}
	days := make(map[key][]models.TimeSlot)
	for _, g := range c.Genes {
		slot, ok := e.res.Catalogue.Lookup(g.SlotKey)
		if !ok {
			continue
		}
		k := key{program: g.ProgramID, day: g.Day}
		days[k] = append(days[k], slot)
	}
	if len(days) == 0 {
		return 1
	}

	total, gapSum, gapMax, gapCount := 0.0, 0.0, 0.0, 0
	for _, slots := range days {
		sort.Slice(slots, func(i, j int) bool { return minutesOf(slots[i].Start) < minutesOf(slots[j].Start) })
		span := daySpan{start: minutesOf(slots[0].Start), end: minutesOf(slots[len(slots)-1].End)}
		dayScore := 1.0
		for i, s := range slots {
			span.used += minutesOf(s.End) - minutesOf(s.Start)
			if i == 0 {
				continue
			}
			gap := minutesOf(s.Start) - minutesOf(slots[i-1].End)
			if gap < 0 {
				gap = 0
			}
			hours := float64(gap) / 60
			gapSum += hours
			gapCount++
			if hours > gapMax {
				gapMax = hours
			}
			switch {
			case gap == 0:
				// back to back, no cost
			case hours <= 1:
				dayScore *= 0.95
			case hours <= 2:
				dayScore *= 0.85
			default:
				dayScore *= 0.65
			}
		}
		efficiency := 1.0
		if span.end > span.start {
			efficiency = float64(span.used) / float64(span.end-span.start)
		}
		total += dayScore * (0.5 + 0.5*efficiency)
	}
	if gapCount > 0 {
		b.AvgGapHours = gapSum / float64(gapCount)
	}
	b.MaxGapHours = gapMax
	return clamp01(total / float64(len(days)))
}

// lecturerBalance prefers 3-5 teaching hours per active day and a low
// day-to-day spread.
func (e *Evaluator) lecturerBalance(c *Chromosome, b *Breakdown) float64 {
	hours := make(map[string]map[models.Weekday]int)
	for _, g := range c.Genes {
		if hours[g.LecturerID] == nil {
			hours[g.LecturerID] = make(map[models.Weekday]int)
		}
		hours[g.LecturerID][g.Day] += 2
	}
	if len(hours) == 0 {
		return 1
	}

	total := 0.0
	for _, perDay := range hours {
		var loads []float64
		dayScore := 0.0
		active := 0
		for _, day := range models.Weekdays {
			h := perDay[day]
			loads = append(loads, float64(h))
			if h == 0 {
				continue
			}
			active++
			switch {
			case h >= 3 && h <= 5:
				dayScore += 1.0
			case h < 2:
				dayScore += 0.7
			case h == 2:
				dayScore += 0.9
			case h <= 6:
				dayScore += 0.8
			default:
				dayScore += 0.4
				b.OverloadedDays++
			}
		}
		if active == 0 {
			continue
		}
		lecturerScore := dayScore / float64(active)
		std := stdDev(loads)
		b.WorkloadStdDev = math.Max(b.WorkloadStdDev, std)
		lecturerScore -= math.Min(0.3, std/10)
		total += clamp01(lecturerScore)
	}
	return clamp01(total / float64(len(hours)))
}

// roomUtilization prefers 40-80% occupancy with a small bonus for
// specialisation-tagged rooms.
func (e *Evaluator) roomUtilization(c *Chromosome, b *Breakdown) float64 {
	if len(c.Genes) == 0 {
		return 1
	}
	total, occSum, waste := 0.0, 0.0, 0.0
	for _, g := range c.Genes {
		room := e.res.Rooms[g.RoomID]
		if room == nil || room.Capacity == 0 {
			continue
		}
		size := e.res.Set.GroupSize(g.ProgramID)
		occ := float64(size) / float64(room.Capacity)
		occSum += occ
		if room.Capacity > size {
			waste += float64(room.Capacity - size)
		}
		var score float64
		switch {
		case occ >= 0.4 && occ <= 0.8:
			score = 1.0
		case occ > 0.8 && occ <= 1.0:
			score = 0.9
		case occ >= 0.25:
			score = 0.6 + occ/2
		default:
			score = 0.4
		}
		if e.roomMatchesCourse(room, g.CourseID) {
			score += 0.05
		}
		total += clamp01(score)
	}
	b.AvgOccupancy = occSum / float64(len(c.Genes))
	b.RoomWaste = waste
	return clamp01(total / float64(len(c.Genes)))
}

func (e *Evaluator) roomMatchesCourse(room *models.Room, courseID string) bool {
	course := e.res.Courses[courseID]
	if course == nil {
		return false
	}
	for _, tag := range room.Specializations {
		if tag == course.Code || tag == e.res.Registry.CourseCanonicalID(course) {
			return true
		}
	}
	return false
}

// weekdayDistribution prefers an even spread with at least one lighter day
// and punishes overloaded or back-to-back heavy days.
func (e *Evaluator) weekdayDistribution(c *Chromosome, b *Breakdown) float64 {
	loads := make([]int, len(models.Weekdays))
	for _, g := range c.Genes {
		for i, day := range models.Weekdays {
			if g.Day == day {
				loads[i]++
			}
		}
	}
	b.DayLoads = loads

	totalSessions := 0
	for _, l := range loads {
		totalSessions += l
	}
	if totalSessions == 0 {
		return 1
	}
	mean := float64(totalSessions) / float64(len(loads))

	score := 1.0
	empty := 0
	heavyThreshold := 1.8 * mean
	prevHeavy := false
	hasLightDay := false
	var variance float64
	for _, l := range loads {
		f := float64(l)
		variance += (f - mean) * (f - mean)
		if l == 0 {
			empty++
		}
		if f < mean {
			hasLightDay = true
		}
		heavy := f > heavyThreshold && l > 1
		if heavy {
			score -= 0.2
			if prevHeavy {
				score -= 0.15
			}
		}
		prevHeavy = heavy
	}
	variance /= float64(len(loads))
	b.EmptyDays = empty
	score -= math.Min(0.3, variance/float64(totalSessions))
	if hasLightDay {
		score += 0.05
	}
	return clamp01(score)
}

// slotPreference penalises late-afternoon sessions, more heavily for
// early-semester groups.
func (e *Evaluator) slotPreference(c *Chromosome, b *Breakdown) float64 {
	if len(c.Genes) == 0 {
		return 1
	}
	lastPeriod := ""
	if slots := e.res.Catalogue.Slots(); len(slots) > 0 {
		lastPeriod = slots[len(slots)-1].Period
	}
	total := 0.0
	for _, g := range c.Genes {
		slot, ok := e.res.Catalogue.Lookup(g.SlotKey)
		score := 1.0
		if ok && slot.Afternoon {
			score -= 0.05
			if slot.Period == lastPeriod {
				b.LateSlotCount++
				if p, found := e.res.Set.Programs[g.ProgramID]; found && p.Semester <= 2 {
					score -= 0.30
				} else {
					score -= 0.15
				}
			}
		}
		total += clamp01(score)
	}
	return clamp01(total / float64(len(c.Genes)))
}

// countViolations replays the genes through a fresh constraint context.
// Lecturer-hour limits are tolerable and cheap; every other hard breach
// (double-booking, capacity, kind, pairing, same-day repeats) is critical
// so broken offspring cannot outrank repaired ones.
func (e *Evaluator) countViolations(c *Chromosome) (critical, limits int) {
	ctx := constraint.NewContext(e.res)
	for _, g := range c.Genes {
		for _, v := range ctx.CheckAll(g) {
			if v.Constraint == models.ConstraintDailyLimit || v.Constraint == models.ConstraintWeeklyLimit {
				limits++
			} else {
				critical++
			}
		}
		ctx.Add(g)
	}
	return critical, limits
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
