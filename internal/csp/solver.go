// Package csp implements the backtracking solver that produces a
// hard-feasible assignment for every session variable: a greedy first pass,
// then MRV + degree + LCV backtracking with forward checking, stall
// detection and best-partial retention.
package csp

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/isbat-dev/timetable-core/internal/constraint"
	"github.com/isbat-dev/timetable-core/internal/models"
)

// Config bounds a solver run.
type Config struct {
	MaxIterations  int
	Timeout        time.Duration
	StallThreshold int
	Seed           int64
}

// DefaultConfig returns the documented solver bounds.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  200000,
		Timeout:        120 * time.Second,
		StallThreshold: 5000,
	}
}

// Result is the solver outcome. When Complete is false the assignment map
// is the retained best-partial and Unassigned lists the uncovered
// variables with their recorded reasons.
type Result struct {
	Assignments map[string]models.Assignment
	Complete    bool
	Unassigned  []string
	Reasons     map[string]string
	Iterations  int
	Elapsed     time.Duration
}

// Solver runs one CSP search over a variable set. Not safe for concurrent
// use; build one per run.
type Solver struct {
	ctx    *constraint.Context
	res    *constraint.Resources
	cfg    Config
	rng    *rand.Rand
	logger *zap.Logger

	iterations int
	deadline   time.Time
	stalled    bool
	stallRuns  int

	best      map[string]models.Assignment
	bestCount int

	reasons map[string]string
}

// New builds a solver over a fresh constraint context. logger may be nil.
func New(res *constraint.Resources, cfg Config, logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = DefaultConfig().StallThreshold
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Solver{
		ctx:     constraint.NewContext(res),
		res:     res,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		logger:  logger,
		best:    make(map[string]models.Assignment),
		reasons: make(map[string]string),
	}
}

// Solve searches for a complete hard-feasible assignment. Cancellation is
// cooperative: ctx is polled at the same points as the iteration and
// wall-clock caps, and a cancelled run returns the retained best-partial.
func (s *Solver) Solve(ctx context.Context) *Result {
	start := time.Now()
	if s.cfg.Timeout > 0 {
		s.deadline = start.Add(s.cfg.Timeout)
	}

	vars := append([]*models.Variable(nil), s.res.Set.Variables...)

	if s.cfg.Timeout != 0 && s.greedyPass(ctx, vars) {
		s.logger.Info("greedy pass solved the instance",
			zap.Int("variables", len(vars)),
			zap.Duration("elapsed", time.Since(start)))
		return s.result(vars, start, true)
	}

	// Greedy left partial state behind; start backtracking from scratch.
	s.ctx = constraint.NewContext(s.res)
	complete := false
	if s.cfg.Timeout != 0 {
		complete = s.backtrack(ctx, vars)
	}
	if !complete {
		// Restore the deep-copied best-ever partial into a fresh context so
		// callers observe a consistent index state.
		s.ctx = constraint.NewContext(s.res)
		for _, a := range s.best {
			s.ctx.Add(a)
		}
	}
	return s.result(vars, start, complete)
}

// Context exposes the constraint context holding the final assignments.
func (s *Solver) Context() *constraint.Context { return s.ctx }

func (s *Solver) result(vars []*models.Variable, start time.Time, complete bool) *Result {
	res := &Result{
		Assignments: models.CopyAssignments(s.ctx.Assignments()),
		Complete:    complete,
		Reasons:     make(map[string]string),
		Iterations:  s.iterations,
		Elapsed:     time.Since(start),
	}
	for _, v := range vars {
		if _, ok := res.Assignments[v.ID]; !ok {
			res.Unassigned = append(res.Unassigned, v.ID)
			reason, has := s.reasons[v.ID]
			if !has {
				reason = "no admissible (slot, lecturer, room) under current bookings"
			}
			res.Reasons[v.ID] = reason
		}
	}
	sort.Strings(res.Unassigned)
	return res
}

// greedyPass attempts a single ordered sweep: labs first, larger groups
// first, scarcer room domains first. Any failure unwinds the whole pass.
func (s *Solver) greedyPass(ctx context.Context, vars []*models.Variable) bool {
	ordered := append([]*models.Variable(nil), vars...)
	s.rng.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	sort.SliceStable(ordered, func(i, j int) bool {
		vi, vj := ordered[i], ordered[j]
		li, lj := s.isLabVariable(vi), s.isLabVariable(vj)
		if li != lj {
			return li
		}
		si, sj := s.res.Set.GroupSize(vi.ProgramID), s.res.Set.GroupSize(vj.ProgramID)
		if si != sj {
			return si > sj
		}
		return len(vi.Rooms) < len(vj.Rooms)
	})

	var placed []string
	for _, v := range ordered {
		if s.ctx.Assigned(v.ID) {
			continue
		}
		if s.stopRequested(ctx) {
			break
		}
		ok, placedIDs := s.tryAssign(v, ordered)
		if !ok {
			for i := len(placed) - 1; i >= 0; i-- {
				s.ctx.Remove(placed[i])
			}
			return false
		}
		placed = append(placed, placedIDs...)
	}
	return len(s.ctx.Assignments()) == len(vars)
}

func (s *Solver) isLabVariable(v *models.Variable) bool {
	course := s.res.Courses[v.CourseID]
	return course != nil && course.PreferredRoomKind == models.RoomKindLab
}

// backtrack is the recursive search. Returns true when every variable is
// assigned; false propagates budget exhaustion or dead ends upward.
func (s *Solver) backtrack(ctx context.Context, vars []*models.Variable) bool {
	if s.stopRequested(ctx) {
		return false
	}
	s.iterations++

	unassigned := s.unassignedVariables(vars)
	if len(unassigned) == 0 {
		return true
	}

	if assigned := len(vars) - len(unassigned); assigned > s.bestCount {
		s.bestCount = assigned
		s.best = models.CopyAssignments(s.ctx.Assignments())
		s.stallRuns = 0
	} else {
		s.stallRuns++
		if s.stallRuns >= s.cfg.StallThreshold {
			s.stalled = true
			s.logger.Warn("search stalled, returning best partial",
				zap.Int("best_assigned", s.bestCount),
				zap.Int("iterations", s.iterations))
			return false
		}
	}

	v := s.selectVariable(unassigned)
	candidates := s.orderDomainValues(v, unassigned)
	if len(candidates) == 0 {
		s.reasons[v.ID] = "empty candidate list at decision point"
		return false
	}

	for _, cand := range candidates {
		if s.stopRequested(ctx) {
			return false
		}
		a := s.toAssignment(v, cand)
		if viol := s.ctx.Check(a); viol != nil {
			continue
		}
		s.ctx.Add(a)

		peersOK, placedPeers := s.placePeers(v, cand.slotKey, unassigned)
		if peersOK && s.forwardCheck(unassigned) {
			if s.backtrack(ctx, vars) {
				return true
			}
		}

		for i := len(placedPeers) - 1; i >= 0; i-- {
			s.ctx.Remove(placedPeers[i])
		}
		s.ctx.Remove(v.ID)
		if s.stalled || s.budgetExceeded() {
			return false
		}
	}
	return false
}

func (s *Solver) unassignedVariables(vars []*models.Variable) []*models.Variable {
	var out []*models.Variable
	for _, v := range vars {
		if !s.ctx.Assigned(v.ID) {
			out = append(out, v)
		}
	}
	return out
}

// selectVariable applies MRV with a degree tie-break and a random final
// tie-break.
func (s *Solver) selectVariable(unassigned []*models.Variable) *models.Variable {
	best := unassigned[0]
	bestSize := best.AccurateDomainSize()
	bestDegree := s.degree(best, unassigned)
	for _, v := range unassigned[1:] {
		size := v.AccurateDomainSize()
		switch {
		case size < bestSize:
			best, bestSize, bestDegree = v, size, s.degree(v, unassigned)
		case size == bestSize:
			degree := s.degree(v, unassigned)
			if degree > bestDegree || (degree == bestDegree && s.rng.Intn(2) == 0) {
				best, bestSize, bestDegree = v, size, degree
			}
		}
	}
	return best
}

// degree counts unassigned variables sharing the program or any candidate
// lecturer or room.
func (s *Solver) degree(v *models.Variable, unassigned []*models.Variable) int {
	lects := make(map[string]bool, len(v.Lecturers))
	for _, id := range v.Lecturers {
		lects[id] = true
	}
	rooms := make(map[string]bool, len(v.Rooms))
	for _, id := range v.Rooms {
		rooms[id] = true
	}
	n := 0
	for _, other := range unassigned {
		if other.ID == v.ID {
			continue
		}
		if other.ProgramID == v.ProgramID {
			n++
			continue
		}
		shared := false
		for _, id := range other.Lecturers {
			if lects[id] {
				shared = true
				break
			}
		}
		if !shared {
			for _, id := range other.Rooms {
				if rooms[id] {
					shared = true
					break
				}
			}
		}
		if shared {
			n++
		}
	}
	return n
}

// tryAssign places one variable using its ordered candidates, eagerly
// co-placing unassigned peers. Returns the ids placed.
func (s *Solver) tryAssign(v *models.Variable, unassigned []*models.Variable) (bool, []string) {
	for _, cand := range s.orderDomainValues(v, unassigned) {
		a := s.toAssignment(v, cand)
		if viol := s.ctx.Check(a); viol != nil {
			continue
		}
		s.ctx.Add(a)
		ok, placedPeers := s.placePeers(v, cand.slotKey, unassigned)
		if ok {
			return true, append([]string{v.ID}, placedPeers...)
		}
		for i := len(placedPeers) - 1; i >= 0; i-- {
			s.ctx.Remove(placedPeers[i])
		}
		s.ctx.Remove(v.ID)
	}
	s.reasons[v.ID] = "no admissible (slot, lecturer, room) triple"
	return false, nil
}

// placePeers eagerly assigns every unassigned pair peer and canonical
// sibling at the same slot. Failure to place any peer rolls the whole
// attempt back.
func (s *Solver) placePeers(v *models.Variable, slotKey string, unassigned []*models.Variable) (bool, []string) {
	var placed []string
	for _, peerID := range s.res.Set.Pairs[v.ID] {
		if s.ctx.Assigned(peerID) {
			continue
		}
		peer, ok := s.res.Set.VariableByID(peerID)
		if !ok {
			continue
		}
		if !s.placePeerAt(peer, slotKey, unassigned) {
			for i := len(placed) - 1; i >= 0; i-- {
				s.ctx.Remove(placed[i])
			}
			s.reasons[peerID] = "companion could not be co-placed at " + slotKey
			return false, nil
		}
		placed = append(placed, peerID)
	}
	return true, placed
}

func (s *Solver) placePeerAt(peer *models.Variable, slotKey string, unassigned []*models.Variable) bool {
	if !slotInDomain(peer, slotKey) {
		return false
	}
	for _, cand := range s.orderDomainValues(peer, unassigned) {
		if cand.slotKey != slotKey {
			continue
		}
		a := s.toAssignment(peer, cand)
		if viol := s.ctx.Check(a); viol != nil {
			continue
		}
		s.ctx.Add(a)
		return true
	}
	return false
}

// forwardCheck prunes branches where some unassigned variable has lost
// every admissible triple under the current bookings.
func (s *Solver) forwardCheck(unassigned []*models.Variable) bool {
	for _, v := range unassigned {
		if s.ctx.Assigned(v.ID) {
			continue
		}
		if !s.hasAnyCandidate(v) {
			s.reasons[v.ID] = "forward check: domain wiped out"
			return false
		}
	}
	return true
}

func (s *Solver) hasAnyCandidate(v *models.Variable) bool {
	for _, slotKey := range v.TimeSlots {
		for _, lecturerID := range v.Lecturers {
			if !v.LecturerAdmits(lecturerID, slotKey) {
				continue
			}
			for _, roomID := range v.Rooms {
				a := s.toAssignment(v, candidate{slotKey: slotKey, lecturerID: lecturerID, roomID: roomID})
				if s.ctx.Check(a) == nil {
					return true
				}
			}
		}
	}
	return false
}

func (s *Solver) toAssignment(v *models.Variable, cand candidate) models.Assignment {
	slot, _ := s.res.Catalogue.Lookup(cand.slotKey)
	return models.Assignment{
		VariableID:       v.ID,
		CourseID:         v.CourseID,
		ProgramID:        v.ProgramID,
		LecturerID:       cand.lecturerID,
		RoomID:           cand.roomID,
		SlotKey:          cand.slotKey,
		Day:              slot.Day,
		Period:           slot.Period,
		Term:             v.Term,
		SessionNumber:    v.SessionNumber,
		RoomKindFallback: v.RoomKindFallback,
	}
}

func (s *Solver) budgetExceeded() bool {
	if s.iterations >= s.cfg.MaxIterations {
		return true
	}
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		return true
	}
	return false
}

// stopRequested polls the cooperative cancellation and budget caps.
func (s *Solver) stopRequested(ctx context.Context) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return s.budgetExceeded()
}
