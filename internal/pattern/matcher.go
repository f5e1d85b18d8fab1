// Package pattern provides the fraud archetype matcher. Built-in archetypes
// match on signal-set signatures; operator-defined archetypes match on
// CEL expressions over the prediction.
package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/xpress-ops/riskcore/internal/domain"
)

// MinMatchScore gates pattern observation; predictions at or below it are
// never matched against the catalog.
const MinMatchScore = 0.6

// maxTrackedSubjects bounds the per-subject match log.
const maxTrackedSubjects = 4096

type compiledArchetype struct {
	config  *domain.CustomArchetype
	program cel.Program
}

type subjectMatch struct {
	PatternID string
	At        time.Time
}

// Matcher tracks fraud archetype occurrences across predictions. Safe for
// concurrent use.
type Matcher struct {
	mu       sync.RWMutex
	env      *cel.Env
	patterns map[string]*domain.FraudPattern
	custom   map[string]*compiledArchetype
	recent   map[string][]subjectMatch
	logger   *slog.Logger
	now      func() time.Time
}

// NewMatcher creates a matcher seeded with the built-in catalog.
func NewMatcher(logger *slog.Logger) (*Matcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env, err := cel.NewEnv(
		cel.Variable("fraud_score", cel.DoubleType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("signals", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	m := &Matcher{
		env:      env,
		patterns: make(map[string]*domain.FraudPattern),
		custom:   make(map[string]*compiledArchetype),
		recent:   make(map[string][]subjectMatch),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, p := range catalog() {
		m.patterns[p.ID] = p
	}
	return m, nil
}

// ValidateArchetype compiles the expression without loading it.
func (m *Matcher) ValidateArchetype(a *domain.CustomArchetype) error {
	if a == nil {
		return fmt.Errorf("%w: archetype is required", domain.ErrInvalidInput)
	}
	_, err := m.compile(a)
	return err
}

// LoadArchetype compiles and registers one operator-defined archetype.
// Occurrence statistics survive reloads of the same archetype ID.
func (m *Matcher) LoadArchetype(a *domain.CustomArchetype) error {
	compiled, err := m.compile(a)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.custom[a.ID] = compiled
	if existing, ok := m.patterns[a.ID]; ok {
		existing.Name = a.Name
		existing.Severity = a.Severity
		existing.Confidence = a.Confidence
		return nil
	}
	m.patterns[a.ID] = &domain.FraudPattern{
		ID:         a.ID,
		Name:       a.Name,
		Severity:   a.Severity,
		Confidence: a.Confidence,
	}
	return nil
}

// ReloadArchetypes replaces every operator-defined archetype atomically. An
// invalid expression aborts the whole reload; built-in archetypes are never
// touched.
func (m *Matcher) ReloadArchetypes(archetypes []*domain.CustomArchetype) error {
	next := make(map[string]*compiledArchetype, len(archetypes))
	for _, a := range archetypes {
		if !a.Enabled {
			continue
		}
		compiled, err := m.compile(a)
		if err != nil {
			return err
		}
		next[a.ID] = compiled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.custom {
		if _, kept := next[id]; !kept {
			delete(m.patterns, id)
		}
	}
	m.custom = next
	for id, compiled := range next {
		a := compiled.config
		if existing, ok := m.patterns[id]; ok {
			existing.Name = a.Name
			existing.Severity = a.Severity
			existing.Confidence = a.Confidence
			continue
		}
		m.patterns[id] = &domain.FraudPattern{
			ID:         a.ID,
			Name:       a.Name,
			Severity:   a.Severity,
			Confidence: a.Confidence,
		}
	}
	return nil
}

// Observe matches the prediction against every archetype and records hits.
// Returns the IDs of the matched patterns.
func (m *Matcher) Observe(ctx context.Context, pred *domain.FraudPrediction) []string {
	if pred == nil || pred.FraudScore <= MinMatchScore {
		return nil
	}

	present := make(map[domain.Signal]bool, len(pred.Signals))
	signalStrings := make([]string, 0, len(pred.Signals))
	for _, s := range pred.Signals {
		present[s] = true
		signalStrings = append(signalStrings, string(s))
	}
	activation := map[string]any{
		"fraud_score": pred.FraudScore,
		"confidence":  pred.Confidence,
		"risk_level":  string(pred.RiskLevel),
		"signals":     signalStrings,
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []string
	for id, p := range m.patterns {
		hit := false
		if compiled, ok := m.custom[id]; ok {
			hit = m.evalArchetype(ctx, compiled, activation)
		} else {
			hit = signatureMatches(p.Signature, present)
		}
		if !hit {
			continue
		}
		p.Occurrences++
		if p.FirstSeen.IsZero() {
			p.FirstSeen = now
		}
		p.LastSeen = now
		matched = append(matched, id)
	}
	sort.Strings(matched)

	if len(matched) > 0 {
		m.recordSubject(pred.SubjectID, matched, now)
		m.logger.InfoContext(ctx, "fraud patterns matched",
			"subject_id", pred.SubjectID,
			"trip_id", pred.TripID,
			"patterns", matched,
		)
	}
	return matched
}

// DetectPatterns returns copies of the patterns matched within the active
// window, highest confidence first.
func (m *Matcher) DetectPatterns(now time.Time) []domain.FraudPattern {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []domain.FraudPattern
	for _, p := range m.patterns {
		if p.Active(now) {
			active = append(active, clonePattern(p))
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Confidence != active[j].Confidence {
			return active[i].Confidence > active[j].Confidence
		}
		return active[i].ID < active[j].ID
	})
	return active
}

// AllPatterns returns copies of every registered pattern, matched or not.
func (m *Matcher) AllPatterns() []domain.FraudPattern {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]domain.FraudPattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		all = append(all, clonePattern(p))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// SubjectMatches returns the pattern IDs matched for a subject within the
// active window.
func (m *Matcher) SubjectMatches(subjectID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().Add(-domain.PatternActiveWindow)
	seen := make(map[string]bool)
	var ids []string
	for _, rec := range m.recent[subjectID] {
		if rec.At.Before(cutoff) || seen[rec.PatternID] {
			continue
		}
		seen[rec.PatternID] = true
		ids = append(ids, rec.PatternID)
	}
	sort.Strings(ids)
	return ids
}

func (m *Matcher) recordSubject(subjectID string, patternIDs []string, now time.Time) {
	cutoff := now.Add(-domain.PatternActiveWindow)
	kept := m.recent[subjectID][:0]
	for _, rec := range m.recent[subjectID] {
		if !rec.At.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	for _, id := range patternIDs {
		kept = append(kept, subjectMatch{PatternID: id, At: now})
	}
	m.recent[subjectID] = kept

	if len(m.recent) <= maxTrackedSubjects {
		return
	}
	// Over the cap: drop subjects whose records have all expired, then fall
	// back to dropping arbitrary entries.
	for id, recs := range m.recent {
		if id == subjectID {
			continue
		}
		stale := true
		for _, rec := range recs {
			if !rec.At.Before(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(m.recent, id)
		}
	}
	for id := range m.recent {
		if len(m.recent) <= maxTrackedSubjects {
			break
		}
		if id != subjectID {
			delete(m.recent, id)
		}
	}
}

func (m *Matcher) evalArchetype(ctx context.Context, compiled *compiledArchetype, activation map[string]any) bool {
	out, _, err := compiled.program.Eval(activation)
	if err != nil {
		m.logger.WarnContext(ctx, "archetype evaluation failed",
			"archetype_id", compiled.config.ID,
			"error", err,
		)
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

func (m *Matcher) compile(a *domain.CustomArchetype) (*compiledArchetype, error) {
	ast, issues := m.env.Compile(a.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile archetype %s: %w", a.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("archetype %s: expression must return bool, got %s", a.ID, ast.OutputType())
	}
	program, err := m.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for archetype %s: %w", a.ID, err)
	}
	return &compiledArchetype{config: a, program: program}, nil
}

func signatureMatches(signature []domain.Signal, present map[domain.Signal]bool) bool {
	if len(signature) == 0 {
		return false
	}
	for _, s := range signature {
		if !present[s] {
			return false
		}
	}
	return true
}

func clonePattern(p *domain.FraudPattern) domain.FraudPattern {
	cloned := *p
	cloned.Signature = append([]domain.Signal(nil), p.Signature...)
	cloned.RiskFactors = append([]domain.RiskFactor(nil), p.RiskFactors...)
	return cloned
}
