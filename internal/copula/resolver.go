package copula

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/scencast/scencast/internal/models"
)

// timeKey identifies one forecasted instant. Issue times are keyed by their
// UnixNano so that wall-clock-equal times compare equal regardless of location
// or monotonic clock readings.
type timeKey struct {
	issue int64
	lead  time.Duration
}

func makeKey(issue time.Time, lead time.Duration) timeKey {
	return timeKey{issue: issue.UnixNano(), lead: lead}
}

func (k timeKey) less(o timeKey) bool {
	if k.issue != o.issue {
		return k.issue < o.issue
	}
	return k.lead < o.lead
}

func (k timeKey) String() string {
	return fmt.Sprintf("issue %s lead %s", time.Unix(0, k.issue).UTC().Format(time.RFC3339), k.lead)
}

type marginalKind int

const (
	kindQuantile marginalKind = iota
	kindParametric
)

func (k marginalKind) String() string {
	if k == kindQuantile {
		return "quantile"
	}
	return "parametric"
}

// foldPlan carries everything one sampling task needs for a single fold: the
// fold's Gaussian structure plus the deduplicated, sorted time keys it must
// cover across all locations.
type foldPlan struct {
	fold  string
	sigma *mat.SymDense
	mean  []float64

	// Spatial mode: sorted unique (issue, lead) pairs.
	pairs []timeKey

	// Temporal mode: sorted unique issue times plus the shared lead-time
	// vector every location's rows for this fold must follow.
	issues []int64
	leads  []time.Duration
}

type plan struct {
	kind  marginalKind
	folds []foldPlan
}

// resolve validates the whole request eagerly and computes the per-fold
// sampling plans. No sampling work starts until every check passes.
func resolve(req *Request) (*plan, error) {
	if req.Copula != Spatial && req.Copula != Temporal {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCopulaType, req.Copula)
	}
	if len(req.Locations) == 0 {
		return nil, fmt.Errorf("%w: no locations", ErrConfigMismatch)
	}
	if req.SampleCount <= 0 {
		return nil, fmt.Errorf("%w: sample count %d", ErrConfigMismatch, req.SampleCount)
	}
	if req.Covariance == nil {
		return nil, fmt.Errorf("%w: no covariance set", ErrConfigMismatch)
	}

	kind, err := checkLocations(req.Locations)
	if err != nil {
		return nil, err
	}
	if err := checkCovariance(req.Covariance); err != nil {
		return nil, err
	}
	if err := checkFoldAssignment(req.Locations, req.Covariance); err != nil {
		return nil, err
	}

	numLoc := len(req.Locations)
	folds := sortedFolds(req.Covariance)
	plans := make([]foldPlan, 0, len(folds))
	for _, fold := range folds {
		fp := foldPlan{
			fold:  fold,
			sigma: req.Covariance.Sigma[fold],
			mean:  req.Covariance.Mean[fold],
		}
		dim := fp.sigma.SymmetricDim()
		if dim%numLoc != 0 {
			return nil, fmt.Errorf("%w: fold %s covariance dimension %d not divisible by %d locations",
				ErrConfigMismatch, fold, dim, numLoc)
		}

		switch req.Copula {
		case Spatial:
			fp.pairs = uniquePairs(req.Locations, fold)
		case Temporal:
			fp.issues = uniqueIssues(req.Locations, fold)
			fp.leads, err = sharedLeads(req.Locations, fold)
			if err != nil {
				return nil, err
			}
		}
		plans = append(plans, fp)
	}

	return &plan{kind: kind, folds: plans}, nil
}

func checkLocations(locs []Location) (marginalKind, error) {
	var kind marginalKind
	seen := make(map[string]bool, len(locs))
	for i, loc := range locs {
		if loc.Name == "" {
			return 0, fmt.Errorf("%w: location %d has no name", ErrConfigMismatch, i)
		}
		if seen[loc.Name] {
			return 0, fmt.Errorf("%w: duplicate location name %q", ErrConfigMismatch, loc.Name)
		}
		seen[loc.Name] = true

		if loc.Marginal == nil || loc.Control == nil {
			return 0, fmt.Errorf("%w: location %q missing marginal or control", ErrConfigMismatch, loc.Name)
		}
		if err := loc.Control.Validate(); err != nil {
			return 0, fmt.Errorf("%w: location %q: %v", ErrConfigMismatch, loc.Name, err)
		}
		if loc.Control.Rows() != loc.Marginal.Rows() {
			return 0, fmt.Errorf("%w: location %q has %d control rows for %d marginal rows",
				ErrConfigMismatch, loc.Name, loc.Control.Rows(), loc.Marginal.Rows())
		}

		var k marginalKind
		switch m := loc.Marginal.(type) {
		case *models.QuantileTable:
			k = kindQuantile
			if err := m.Validate(); err != nil {
				return 0, fmt.Errorf("%w: location %q: %v", ErrConfigMismatch, loc.Name, err)
			}
			if loc.Control.Tails.Method == "" {
				return 0, fmt.Errorf("%w: location %q has a quantile marginal but no tail config",
					ErrConfigMismatch, loc.Name)
			}
		case *models.ParametricMargin:
			k = kindParametric
			if err := m.Validate(); err != nil {
				return 0, fmt.Errorf("%w: location %q: %v", ErrConfigMismatch, loc.Name, err)
			}
		default:
			return 0, fmt.Errorf("%w: location %q has unsupported marginal type %T",
				ErrConfigMismatch, loc.Name, loc.Marginal)
		}

		if i == 0 {
			kind = k
		} else if k != kind {
			return 0, fmt.Errorf("%w: location %q marginal kind %s differs from %s",
				ErrConfigMismatch, loc.Name, k, kind)
		}
	}
	return kind, nil
}

func checkCovariance(cov *models.CovarianceSet) error {
	if len(cov.Sigma) == 0 {
		return fmt.Errorf("%w: empty covariance map", ErrConfigMismatch)
	}
	for fold, sigma := range cov.Sigma {
		mean, ok := cov.Mean[fold]
		if !ok {
			return fmt.Errorf("%w: fold %q present in covariance map but not mean map", ErrConfigMismatch, fold)
		}
		if sigma == nil {
			return fmt.Errorf("%w: fold %q has nil covariance", ErrConfigMismatch, fold)
		}
		if len(mean) != sigma.SymmetricDim() {
			return fmt.Errorf("%w: fold %q mean length %d does not match covariance dimension %d",
				ErrConfigMismatch, fold, len(mean), sigma.SymmetricDim())
		}
	}
	for fold := range cov.Mean {
		if _, ok := cov.Sigma[fold]; !ok {
			return fmt.Errorf("%w: fold %q present in mean map but not covariance map", ErrConfigMismatch, fold)
		}
	}
	return nil
}

// checkFoldAssignment verifies every control fold label has a covariance and
// that each issue time appears under exactly one fold label.
func checkFoldAssignment(locs []Location, cov *models.CovarianceSet) error {
	issueFold := make(map[int64]string)
	for _, loc := range locs {
		for i, fold := range loc.Control.Folds {
			if _, ok := cov.Sigma[fold]; !ok {
				return fmt.Errorf("%w: location %q row %d references unknown fold %q",
					ErrConfigMismatch, loc.Name, i, fold)
			}
			issue := loc.Control.IssueTimes[i].UnixNano()
			if prev, ok := issueFold[issue]; ok && prev != fold {
				return fmt.Errorf("%w: issue time %s appears under folds %q and %q",
					ErrConfigMismatch, loc.Control.IssueTimes[i].UTC().Format(time.RFC3339), prev, fold)
			}
			issueFold[issue] = fold
		}
	}
	return nil
}

func sortedFolds(cov *models.CovarianceSet) []string {
	folds := make([]string, 0, len(cov.Sigma))
	for fold := range cov.Sigma {
		folds = append(folds, fold)
	}
	sort.Strings(folds)
	return folds
}

// uniquePairs collects the (issue, lead) pairs present in any location's rows
// for the fold, sorted ascending by issue then lead.
func uniquePairs(locs []Location, fold string) []timeKey {
	set := make(map[timeKey]bool)
	for _, loc := range locs {
		for i, f := range loc.Control.Folds {
			if f == fold {
				set[makeKey(loc.Control.IssueTimes[i], loc.Control.LeadTimes[i])] = true
			}
		}
	}
	pairs := make([]timeKey, 0, len(set))
	for k := range set {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].less(pairs[b]) })
	return pairs
}

func uniqueIssues(locs []Location, fold string) []int64 {
	set := make(map[int64]bool)
	for _, loc := range locs {
		for i, f := range loc.Control.Folds {
			if f == fold {
				set[loc.Control.IssueTimes[i].UnixNano()] = true
			}
		}
	}
	issues := make([]int64, 0, len(set))
	for t := range set {
		issues = append(issues, t)
	}
	sort.Slice(issues, func(a, b int) bool { return issues[a] < issues[b] })
	return issues
}

// sharedLeads returns the fold's lead-time vector taken from the first
// location carrying rows for it, and verifies every other location's rows for
// the fold use the same set.
func sharedLeads(locs []Location, fold string) ([]time.Duration, error) {
	var shared []time.Duration
	var sharedFrom string
	for _, loc := range locs {
		leads := uniqueLeads(loc.Control, fold)
		if len(leads) == 0 {
			continue
		}
		if shared == nil {
			shared, sharedFrom = leads, loc.Name
			continue
		}
		if !equalLeads(shared, leads) {
			return nil, fmt.Errorf("%w: fold %q lead times of location %q differ from location %q",
				ErrConfigMismatch, fold, loc.Name, sharedFrom)
		}
	}
	return shared, nil
}

func uniqueLeads(ctrl *models.ControlConfig, fold string) []time.Duration {
	set := make(map[time.Duration]bool)
	for i, f := range ctrl.Folds {
		if f == fold {
			set[ctrl.LeadTimes[i]] = true
		}
	}
	leads := make([]time.Duration, 0, len(set))
	for d := range set {
		leads = append(leads, d)
	}
	sort.Slice(leads, func(a, b int) bool { return leads[a] < leads[b] })
	return leads
}

func equalLeads(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
