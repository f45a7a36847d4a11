// Package optimizer implements optimize_for_order (§4.3): it enumerates
// all 120 orderings of the five outer loops and, for each, searches
// power-of-two tile sizes, returning the (tiling, ordering) minimizing
// (cycles, then energy). Grounded on
// original_source/dnnweaver2/optimizer/optimizer.py's optimize_for_order
// and _optimize_for_order. Permutations come from
// gonum.org/v1/gonum/stat/combin; the parallel search path uses
// golang.org/x/sync/errgroup with context cancellation in place of the
// source's multiprocessing.Pool.
package optimizer

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/dnncompile/dnncompile/internal/accel"
	"github.com/dnncompile/dnncompile/internal/cerrors"
	"github.com/dnncompile/dnncompile/internal/costmodel"
)

// Result is the best candidate found for one ordering (or overall).
type Result struct {
	Tiling   costmodel.Tiling
	Ordering []costmodel.LoopName
	Stats    costmodel.Stats
	Energy   float64
}

// better reports whether a beats b by (cycles, then energy).
func (a Result) better(b Result, hasB bool) bool {
	if !hasB {
		return true
	}
	if a.Stats.TotalCycles != b.Stats.TotalCycles {
		return a.Stats.TotalCycles < b.Stats.TotalCycles
	}
	return a.Energy < b.Energy
}

// orderings returns all 120 permutations of the five loop names, via
// gonum's combin.Permutations in place of itertools.permutations.
func orderings() [][]costmodel.LoopName {
	perms := combin.Permutations(len(costmodel.AllLoops), len(costmodel.AllLoops))
	out := make([][]costmodel.LoopName, len(perms))
	for i, p := range perms {
		ord := make([]costmodel.LoopName, len(p))
		for j, idx := range p {
			ord[j] = costmodel.AllLoops[idx]
		}
		out[i] = ord
	}
	return out
}

// OptimizeForOrder searches all orderings and tilings for the best
// (cycles, then energy) candidate. The search runs with up to GOMAXPROCS
// workers; ctx cancellation returns the best candidate found so far
// instead of an error, per §5's cooperative-cancel requirement — unless
// nothing feasible was found yet, in which case it reports
// InfeasibleAccelerator.
func OptimizeForOrder(ctx context.Context, spec accel.Spec, conv costmodel.ConvParams, energyCost costmodel.EnergyCost, pool *costmodel.PoolParams) (Result, error) {
	allOrderings := orderings()

	var mu sync.Mutex
	var best Result
	haveBest := false

	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	g, gctx := errgroup.WithContext(ctx)
	for _, ord := range allOrderings {
		ord := ord
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return nil
			}

			r, found, err := searchOrdering(spec, conv, energyCost, pool, ord)
			if err != nil {
				return err
			}
			if !found {
				return nil
			}

			mu.Lock()
			if r.better(best, haveBest) {
				best = r
				haveBest = true
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if !haveBest {
		return Result{}, cerrors.ErrInfeasibleAccelerator
	}
	return best, nil
}

// searchOrdering is the sequential single-ordering tile search
// (_optimize_for_order). It returns found=false when every tiling
// candidate was infeasible or skipped.
func searchOrdering(spec accel.Spec, conv costmodel.ConvParams, energyCost costmodel.EnergyCost, pool *costmodel.PoolParams, ordering []costmodel.LoopName) (Result, bool, error) {
	kernel := [4]int{1, 1, 1, 1}
	stride := [4]int{1, 1, 1, 1}
	if pool != nil {
		kernel = pool.Kernel
		stride = pool.Stride
	}

	poolO := (conv.O-kernel[1])/stride[1] + 1
	if poolO <= 0 {
		return Result{}, false, nil
	}

	numBTiles := log2TileCount(conv.B)
	numOTiles := log2TileCount(poolO)
	numICTiles := log2TileCount(conv.IC)

	var numOCTiles int
	if conv.Im2Col {
		numOCTiles = log2TileCount(conv.OC)
	} else {
		numOCTiles = log2TileCount(ceilDiv(conv.OC, spec.M))
	}

	var best Result
	haveBest := false

	for bi := 0; bi < numBTiles; bi++ {
		b := minInt(1<<bi, conv.B)
		numB := ceilDiv(conv.B, b)

		for oi := 0; oi < numOTiles; oi++ {
			pOW := minInt(1<<oi, poolO)
			pOH := pOW
			ow := (pOW-1)*stride[1] + kernel[1]
			oh := (pOH-1)*stride[2] + kernel[2]
			numOW := ceilDiv(poolO, pOW)
			numOH := ceilDiv(poolO, pOH)
			if numOW*pOW != poolO {
				continue
			}

			for ici := 0; ici < numICTiles; ici++ {
				ic := minInt(1<<ici, conv.IC)
				numIC := ceilDiv(conv.IC, ic)

				for oci := 0; oci < numOCTiles; oci++ {
					var oc int
					if conv.Im2Col {
						oc = minInt(1<<oci, conv.OC)
					} else {
						oc = minInt((1<<oci)*spec.M, conv.OC)
					}
					numOC := ceilDiv(conv.OC, oc)

					tiling := costmodel.Tiling{
						costmodel.LoopB:  {NumTiles: numB, TileSize: b},
						costmodel.LoopOW: {NumTiles: numOW, TileSize: ow},
						costmodel.LoopOH: {NumTiles: numOH, TileSize: oh},
						costmodel.LoopIC: {NumTiles: numIC, TileSize: ic},
						costmodel.LoopOC: {NumTiles: numOC, TileSize: oc},
					}

					stats, err := costmodel.EstimateStats(spec, conv, tiling, ordering, pool)
					if err != nil {
						if errors.Is(err, cerrors.ErrInfeasibleAccelerator) {
							continue
						}
						return Result{}, false, err
					}

					candidate := Result{
						Tiling:   tiling,
						Ordering: ordering,
						Stats:    stats,
						Energy:   stats.Energy(energyCost),
					}
					if candidate.better(best, haveBest) {
						best = candidate
						haveBest = true
					}
				}
			}
		}
	}

	return best, haveBest, nil
}

// log2TileCount mirrors int(ceil(log2(x))) + 1, the number of
// power-of-two tile-size candidates up to and including x.
func log2TileCount(x int) int {
	if x <= 1 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(x)))) + 1
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
