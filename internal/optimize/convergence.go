// Package optimize implements the policy optimization loop and its
// stopping rules: a simple stability detector and the stricter
// three-criterion detector used with bootstrap evaluation.
package optimize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Detector is the convergence interface both implementations satisfy.
type Detector interface {
	RecordMetric(value float64)
	IsConverged() bool
	BestMetric() (float64, bool)
	ConvergenceReason() string
	Reset()
}

// SimpleDetector converges after a run of consecutive relative changes
// below a stability threshold, or at the iteration cap.
type SimpleDetector struct {
	stabilityThreshold   float64
	stabilityWindow      int
	maxIterations        int
	improvementThreshold float64

	history            []float64
	consecutiveStable  int
	best               float64
	haveBest           bool
	convergedStability bool
	convergedMaxIter   bool
}

// NewSimpleDetector builds the legacy stability detector.
func NewSimpleDetector(stabilityThreshold float64, stabilityWindow, maxIterations int, improvementThreshold float64) *SimpleDetector {
	return &SimpleDetector{
		stabilityThreshold:   stabilityThreshold,
		stabilityWindow:      stabilityWindow,
		maxIterations:        maxIterations,
		improvementThreshold: improvementThreshold,
	}
}

// RecordMetric feeds one cost observation (lower is better).
func (d *SimpleDetector) RecordMetric(metric float64) {
	if !d.haveBest || metric < d.best {
		d.best = metric
		d.haveBest = true
	}

	if len(d.history) > 0 {
		prev := d.history[len(d.history)-1]
		if d.isStableChange(prev, metric) {
			d.consecutiveStable++
		} else {
			d.consecutiveStable = 0
		}
	}

	d.history = append(d.history, metric)

	if d.consecutiveStable >= d.stabilityWindow {
		d.convergedStability = true
	}
	if len(d.history) >= d.maxIterations {
		d.convergedMaxIter = true
	}
}

func (d *SimpleDetector) isStableChange(prev, current float64) bool {
	if prev == 0 {
		return math.Abs(current) < d.stabilityThreshold
	}
	return math.Abs(current-prev)/math.Abs(prev) <= d.stabilityThreshold
}

// IsConverged reports whether either stopping rule fired.
func (d *SimpleDetector) IsConverged() bool {
	return d.convergedStability || d.convergedMaxIter
}

// CurrentIteration returns the number of recorded metrics.
func (d *SimpleDetector) CurrentIteration() int {
	return len(d.history)
}

// BestMetric returns the lowest metric seen, if any.
func (d *SimpleDetector) BestMetric() (float64, bool) {
	return d.best, d.haveBest
}

// ConvergenceReason describes why the detector stopped.
func (d *SimpleDetector) ConvergenceReason() string {
	switch {
	case d.convergedStability:
		return fmt.Sprintf("Stability achieved (%d consecutive stable iterations)", d.stabilityWindow)
	case d.convergedMaxIter:
		return fmt.Sprintf("Max iterations reached (%d)", d.maxIterations)
	default:
		return "Not converged"
	}
}

// ShouldAcceptImprovement checks whether a candidate metric beats the
// best by at least the improvement threshold.
func (d *SimpleDetector) ShouldAcceptImprovement(newMetric float64) bool {
	if !d.haveBest {
		return true
	}
	if newMetric >= d.best {
		return false
	}
	improvement := (d.best - newMetric) / math.Abs(d.best)
	return improvement >= d.improvementThreshold
}

// Reset clears detector state for reuse.
func (d *SimpleDetector) Reset() {
	d.history = nil
	d.consecutiveStable = 0
	d.best = 0
	d.haveBest = false
	d.convergedStability = false
	d.convergedMaxIter = false
}

// MannKendallResult holds the trend-test statistics.
type MannKendallResult struct {
	S        int
	VarS     float64
	Z        float64
	PValue   float64
	HasTrend bool
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// MannKendallTest runs the non-parametric monotone-trend test over a time
// series, with tie-corrected variance and continuity correction. For
// fewer than four values, a simple |S| >= 75%-of-max heuristic replaces
// the variance computation.
func MannKendallTest(values []float64, alpha float64) MannKendallResult {
	n := len(values)
	if n < 2 {
		return MannKendallResult{PValue: 1.0}
	}

	s := 0
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			s += sign(values[j] - values[i])
		}
	}

	if n < 4 {
		maxS := n * (n - 1) / 2
		hasTrend := maxS > 0 && math.Abs(float64(s)) >= 0.75*float64(maxS)
		p := 1.0
		if hasTrend {
			p = 0.0
		}
		return MannKendallResult{S: s, PValue: p, HasTrend: hasTrend}
	}

	// Var(S) = [n(n-1)(2n+5) - sum(t(t-1)(2t+5))] / 18 over tie groups.
	counts := make(map[float64]int)
	for _, v := range values {
		counts[v]++
	}
	tieCorrection := 0
	for _, t := range counts {
		if t > 1 {
			tieCorrection += t * (t - 1) * (2*t + 5)
		}
	}
	varS := float64(n*(n-1)*(2*n+5)-tieCorrection) / 18.0

	if varS <= 0 {
		return MannKendallResult{S: s, PValue: 1.0}
	}

	var z float64
	switch {
	case s > 0:
		z = float64(s-1) / math.Sqrt(varS)
	case s < 0:
		z = float64(s+1) / math.Sqrt(varS)
	}

	p := 2 * (1 - normalCDF(math.Abs(z)))
	return MannKendallResult{S: s, VarS: varS, Z: z, PValue: p, HasTrend: p < alpha}
}

// Diagnostics is a snapshot of the three-criterion detector's internals.
type Diagnostics struct {
	CV              float64
	CVSatisfied     bool
	TrendStatistic  int
	TrendPValue     float64
	TrendSatisfied  bool
	CurrentCost     float64
	BestCost        float64
	Regret          float64
	RegretSatisfied bool
	Iteration       int
	WindowValues    []float64
}

// BootstrapDetector is the three-criterion detector: convergence requires
// a low coefficient of variation, no significant Mann-Kendall trend, and
// bounded regret against the best observed cost, or the iteration cap.
type BootstrapDetector struct {
	cvThreshold     float64
	windowSize      int
	regretThreshold float64
	maxIterations   int
	trendAlpha      float64

	history           []float64
	best              float64
	haveBest          bool
	convergedCriteria bool
	convergedMaxIter  bool
}

// NewBootstrapDetector builds the detector with its thresholds. Typical
// values: cv 0.03, window 5, regret 0.10, max 25 iterations, alpha 0.05.
func NewBootstrapDetector(cvThreshold float64, windowSize int, regretThreshold float64, maxIterations int, trendAlpha float64) *BootstrapDetector {
	return &BootstrapDetector{
		cvThreshold:     cvThreshold,
		windowSize:      windowSize,
		regretThreshold: regretThreshold,
		maxIterations:   maxIterations,
		trendAlpha:      trendAlpha,
	}
}

// RecordMetric feeds one cost observation and updates convergence.
func (d *BootstrapDetector) RecordMetric(metric float64) {
	if !d.haveBest || metric < d.best {
		d.best = metric
		d.haveBest = true
	}

	d.history = append(d.history, metric)

	if len(d.history) >= d.maxIterations {
		d.convergedMaxIter = true
		return
	}
	if len(d.history) < d.windowSize {
		return
	}
	if d.checkAllCriteria() {
		d.convergedCriteria = true
	}
}

func (d *BootstrapDetector) window() []float64 {
	if len(d.history) <= d.windowSize {
		return d.history
	}
	return d.history[len(d.history)-d.windowSize:]
}

// computeCV uses population variance over the window, matching the
// reference semantics exactly.
func computeCV(window []float64) float64 {
	if len(window) < 2 {
		return math.Inf(1)
	}
	mean := stat.Mean(window, nil)
	if mean == 0 {
		for _, v := range window {
			if v != 0 {
				return math.Inf(1)
			}
		}
		return 0
	}
	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(window))
	return math.Sqrt(variance) / math.Abs(mean)
}

func (d *BootstrapDetector) regret() float64 {
	if len(d.history) == 0 || !d.haveBest {
		return 0
	}
	current := d.history[len(d.history)-1]
	if d.best == 0 {
		if current == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return (current - d.best) / math.Abs(d.best)
}

func (d *BootstrapDetector) checkAllCriteria() bool {
	window := d.window()
	if computeCV(window) >= d.cvThreshold {
		return false
	}
	if MannKendallTest(window, d.trendAlpha).HasTrend {
		return false
	}
	return d.regret() <= d.regretThreshold
}

// IsConverged reports whether all three criteria held or the cap hit.
func (d *BootstrapDetector) IsConverged() bool {
	return d.convergedCriteria || d.convergedMaxIter
}

// CurrentIteration returns the number of recorded metrics.
func (d *BootstrapDetector) CurrentIteration() int {
	return len(d.history)
}

// BestMetric returns the lowest metric seen, if any.
func (d *BootstrapDetector) BestMetric() (float64, bool) {
	return d.best, d.haveBest
}

// ConvergenceReason describes why the detector stopped.
func (d *BootstrapDetector) ConvergenceReason() string {
	switch {
	case d.convergedCriteria:
		return "All convergence criteria satisfied (CV, trend, regret)"
	case d.convergedMaxIter:
		return fmt.Sprintf("Max iterations reached (%d)", d.maxIterations)
	default:
		return "Not converged"
	}
}

// ShouldAcceptImprovement is permissive in bootstrap mode: any
// improvement on the best is accepted; the criteria handle stopping.
func (d *BootstrapDetector) ShouldAcceptImprovement(newMetric float64) bool {
	if !d.haveBest {
		return true
	}
	return newMetric < d.best
}

// ConvergenceDiagnostics returns the detector's internals for logging.
func (d *BootstrapDetector) ConvergenceDiagnostics() Diagnostics {
	window := d.window()
	cv := computeCV(window)
	var mk MannKendallResult
	trendSatisfied := true
	if len(window) >= 2 {
		mk = MannKendallTest(window, d.trendAlpha)
		trendSatisfied = !mk.HasTrend
	} else {
		mk.PValue = 1.0
	}
	regret := d.regret()

	current := 0.0
	if len(d.history) > 0 {
		current = d.history[len(d.history)-1]
	}
	best := 0.0
	if d.haveBest {
		best = d.best
	}

	return Diagnostics{
		CV:              cv,
		CVSatisfied:     cv < d.cvThreshold,
		TrendStatistic:  mk.S,
		TrendPValue:     mk.PValue,
		TrendSatisfied:  trendSatisfied,
		CurrentCost:     current,
		BestCost:        best,
		Regret:          regret,
		RegretSatisfied: regret <= d.regretThreshold,
		Iteration:       len(d.history),
		WindowValues:    append([]float64{}, window...),
	}
}

// Reset clears detector state for reuse.
func (d *BootstrapDetector) Reset() {
	d.history = nil
	d.best = 0
	d.haveBest = false
	d.convergedCriteria = false
	d.convergedMaxIter = false
}
