package locate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/notargets/RPTKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// Policy chooses which search a driver tries first
type Policy uint8

const (
	GlobalOnly Policy = iota // Every observation searches the whole mesh
	LocalFirst               // Search near the previous fix, fall back to global
)

func (p Policy) String() string {
	switch p {
	case GlobalOnly:
		return "global_only"
	case LocalFirst:
		return "local_first"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// ParsePolicy accepts global_only or local_first; dashes and case are ignored
func ParsePolicy(s string) (Policy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "global_only", "global":
		return GlobalOnly, nil
	case "local_first", "local":
		return LocalFirst, nil
	}
	return 0, fmt.Errorf("unknown search policy %q, want global_only or local_first", s)
}

// State of the driver between observations
type State uint8

const (
	StateNoAnchor State = iota
	StateHaveAnchor
)

func (s State) String() string {
	if s == StateHaveAnchor {
		return "have_anchor"
	}
	return "no_anchor"
}

// Anchor is the continuation carried from one observation to the next
type Anchor struct {
	State State
	Cell  int
}

// NoAnchor is the initial continuation
var NoAnchor = Anchor{State: StateNoAnchor, Cell: -1}

// SearchKind names the search that produced an entry
type SearchKind uint8

const (
	SearchGlobal SearchKind = iota
	SearchLocal
)

func (k SearchKind) String() string {
	if k == SearchLocal {
		return "local"
	}
	return "global"
}

// Entry is one trajectory sample. Position is meaningful only when Defined.
type Entry struct {
	Index    int // Observation index
	Search   SearchKind
	Fallback bool // Local search failed before the global search ran
	Found    bool
	Defined  bool
	Position r3.Vec
	Cost     float64
	Cell     int
}

// Trajectory holds one entry per observation, in observation order
type Trajectory struct {
	Dim     int
	Entries []Entry
}

// Append adds the next entry; entries must arrive in observation order
func (t *Trajectory) Append(e Entry) error {
	if e.Index != len(t.Entries) {
		return fmt.Errorf("trajectory entry %d out of order, expected %d", e.Index, len(t.Entries))
	}
	t.Entries = append(t.Entries, e)
	return nil
}

// Len returns the number of entries
func (t *Trajectory) Len() int { return len(t.Entries) }

// Found counts the entries located inside a cell
func (t *Trajectory) Found() (n int) {
	for _, e := range t.Entries {
		if e.Found {
			n++
		}
	}
	return
}

// ObservationError reports an observation whose length does not match the
// detector count
type ObservationError struct {
	Index int
	Got   int
	Want  int
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("observation %d has %d counts, expected %d detectors", e.Index, e.Got, e.Want)
}

// CellSearcher is the search surface the driver needs
type CellSearcher interface {
	Global(observed []float64) Result
	Local(observed []float64, anchor int) Result
}

// Driver turns a sequence of observations into a trajectory
type Driver struct {
	searcher  CellSearcher
	policy    Policy
	detectors int
	dim       int
	logger    *slog.Logger
	verbose   bool
}

// NewDriver creates a driver for observations of detectors counts producing
// positions of dimension dim. A nil logger discards output.
func NewDriver(searcher CellSearcher, policy Policy, detectors, dim int, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Driver{
		searcher:  searcher,
		policy:    policy,
		detectors: detectors,
		dim:       dim,
		logger:    logger,
	}
}

// SetVerbose makes Run log every position at info level
func (d *Driver) SetVerbose(v bool) { d.verbose = v }

// Step locates one observation starting from anchor and returns its entry
// and the anchor for the next observation. The entry Index is left zero.
func (d *Driver) Step(anchor Anchor, observed []float64) (Entry, Anchor) {
	var fallback bool
	if d.policy == LocalFirst && anchor.State == StateHaveAnchor {
		r := d.searcher.Local(observed, anchor.Cell)
		if r.Found {
			return entryOf(r, SearchLocal, false), Anchor{State: StateHaveAnchor, Cell: r.Cell}
		}
		fallback = true
	}
	r := d.searcher.Global(observed)
	e := entryOf(r, SearchGlobal, fallback)
	if r.Found {
		return e, Anchor{State: StateHaveAnchor, Cell: r.Cell}
	}
	return e, NoAnchor
}

func entryOf(r Result, kind SearchKind, fallback bool) Entry {
	return Entry{
		Search:   kind,
		Fallback: fallback,
		Found:    r.Found,
		Defined:  r.Defined,
		Position: r.Position,
		Cost:     r.Cost,
		Cell:     r.Cell,
	}
}

// Run validates every observation, then locates them in order. The context is
// checked between observations.
func (d *Driver) Run(ctx context.Context, observations [][]float64) (*Trajectory, error) {
	for i, obs := range observations {
		if len(obs) != d.detectors {
			return nil, &ObservationError{Index: i, Got: len(obs), Want: d.detectors}
		}
	}

	traj := &Trajectory{Dim: d.dim, Entries: make([]Entry, 0, len(observations))}
	anchor := NoAnchor
	var local, global, fallbacks, missed int
	for i, obs := range observations {
		if err := ctx.Err(); err != nil {
			return traj, err
		}
		var e Entry
		e, anchor = d.Step(anchor, obs)
		e.Index = i
		if err := traj.Append(e); err != nil {
			return traj, err
		}

		switch {
		case e.Search == SearchLocal:
			local++
		case e.Fallback:
			fallbacks++
			global++
		default:
			global++
		}
		if !e.Found {
			missed++
			d.logger.Debug("no valid cell", "observation", i, "defined", e.Defined, "cell", e.Cell)
		}
		if d.verbose {
			d.logger.Info("position", "observation", i, "x", e.Position.X, "y", e.Position.Y,
				"z", e.Position.Z, "found", e.Found, "search", e.Search.String())
		}
	}
	d.logger.Info("trajectory reconstructed",
		"observations", len(observations),
		"local", local,
		"global", global,
		"fallbacks", fallbacks,
		"not_found", missed,
		"policy", d.policy.String())
	return traj, nil
}
