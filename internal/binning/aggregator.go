// Package binning turns flat leaderboard observations into the per-category
// heatmap matrices and marginal histograms drawn by the dashboard.
package binning

import (
	"slices"

	"raid-stats/internal/constants"
	"raid-stats/internal/domain"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidWidth   = errors.New("binning: bucket width must be positive")
	ErrTooManyBuckets = errors.New("binning: too many rank buckets")
)

// ColumnWindow is an inclusive range of displayed column positions.
type ColumnWindow struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

type Params struct {
	BucketWidth   int
	MinSamples    int           // columns with fewer matching samples are hidden
	Window        *ColumnWindow // nil shows the whole column domain
	HeatmapMode   Mode
	HistogramMode Mode
	Tier          domain.TierFilter
}

// Category is everything the renderer needs for one category key.
type Category struct {
	Key              int          `json:"key"`
	RowLabels        []string     `json:"row_labels"`
	ColLabels        []string     `json:"col_labels"`
	ColDisplayLabels []string     `json:"col_display_labels"`
	Matrix           [][]*float64 `json:"matrix"` // nil cells had no observation in any category
	Top              []float64    `json:"top"`
	Right            []float64    `json:"right"`
	Total            int          `json:"total"`
}

// Result of one aggregation. MinColumn and MaxColumn span every column
// position that received a row before tier, window and threshold filtering,
// and are -1 when no row belongs to a displayed raid.
type Result struct {
	Categories  map[int]*Category `json:"categories"`
	Keys        []int             `json:"keys"`
	Totals      map[int]int       `json:"totals"`
	Columns     []int             `json:"columns"`
	MinColumn   int               `json:"min_column"`
	MaxColumn   int               `json:"max_column"`
	InvalidRows int               `json:"invalid_rows"`
	Anomalies   int               `json:"anomalies"`
}

type Aggregator struct {
	logger zerolog.Logger
}

func NewAggregator(logger zerolog.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

type observation struct {
	col    int
	bucket int
	z      int
	w      int
}

// Aggregate bins rows by rank bucket and displayed raid column. raids is the
// ordered list of displayed raids; rows of other raids are ignored.
func (a *Aggregator) Aggregate(rows []domain.RawRow, raids []domain.RaidMeta, p Params) (*Result, error) {
	if p.BucketWidth <= 0 {
		return nil, ErrInvalidWidth
	}

	res := &Result{
		Categories: make(map[int]*Category),
		Keys:       []int{},
		Totals:     make(map[int]int),
		Columns:    []int{},
		MinColumn:  -1,
		MaxColumn:  -1,
	}

	position := make(map[int]int, len(raids))
	for i, m := range raids {
		if _, dup := position[m.ID]; !dup {
			position[m.ID] = i
		}
	}

	kept := make([]observation, 0, len(rows))
	for _, r := range rows {
		col, ok := position[r.X]
		if !ok {
			continue
		}
		if r.Y < 1 {
			res.InvalidRows++
			continue
		}
		if res.MinColumn < 0 || col < res.MinColumn {
			res.MinColumn = col
		}
		res.MaxColumn = max(res.MaxColumn, col)

		if !p.Tier.Matches(r.Tier()) {
			continue
		}
		if p.Window != nil && (col < p.Window.Lo || col > p.Window.Hi) {
			continue
		}
		kept = append(kept, observation{col: col, bucket: BucketOf(r.Y, p.BucketWidth), z: r.Z, w: r.W})
	}

	if res.InvalidRows > 0 {
		a.logger.Warn().Int("invalid_rows", res.InvalidRows).Msg("dropped rows with non-positive rank")
	}
	if res.MinColumn < 0 {
		return res, nil
	}

	lo, hi := res.MinColumn, res.MaxColumn
	if p.Window != nil {
		lo, hi = max(lo, p.Window.Lo), min(hi, p.Window.Hi)
	}
	if hi < lo {
		return res, nil
	}

	colTotals := make([]int, hi-lo+1)
	for _, o := range kept {
		colTotals[o.col-lo] += o.w
	}
	display := make([]int, len(colTotals))
	for i, n := range colTotals {
		if n < p.MinSamples {
			display[i] = -1
			continue
		}
		display[i] = len(res.Columns)
		res.Columns = append(res.Columns, lo+i)
	}
	nCols := len(res.Columns)

	windowTotals := make(map[int]int)
	nRows := 0
	for _, o := range kept {
		windowTotals[o.z] += o.w
		if display[o.col-lo] >= 0 {
			nRows = max(nRows, o.bucket+1)
		}
	}
	if nRows > constants.MaxBuckets {
		return nil, errors.Wrapf(ErrTooManyBuckets, "%d buckets of width %d, limit %d", nRows, p.BucketWidth, constants.MaxBuckets)
	}

	// Category counts only hold the bucket rows the category touches.
	cellTotals := newGrid(nRows, nCols)
	counts := make(map[int]map[int][]int)
	for _, o := range kept {
		c := display[o.col-lo]
		if c < 0 {
			continue
		}
		g, ok := counts[o.z]
		if !ok {
			g = make(map[int][]int)
			counts[o.z] = g
		}
		row, ok := g[o.bucket]
		if !ok {
			row = make([]int, nCols)
			g[o.bucket] = row
		}
		row[c] += o.w
		cellTotals[o.bucket][c] += o.w
	}
	occupied := make([]bool, nRows)
	for r, row := range cellTotals {
		occupied[r] = slices.ContainsFunc(row, func(n int) bool { return n != 0 })
	}
	emptyRow := make([]*float64, nCols)

	buckets := make([]Bucket, nRows)
	rowLabels := make([]string, nRows)
	for r := range buckets {
		buckets[r] = NewBucket(r, p.BucketWidth)
		rowLabels[r] = buckets[r].Label()
	}
	metas := make([]domain.RaidMeta, nCols)
	colLabels := make([]string, nCols)
	colDisplay := make([]string, nCols)
	for c, pos := range res.Columns {
		metas[c] = raids[pos]
		colLabels[c] = metas[c].Code
		colDisplay[c] = metas[c].Label()
	}

	var eligible [][]int
	if p.HeatmapMode == ModeAbsolute {
		eligible = a.eligiblePopulation(res, buckets, metas, cellTotals, p.Tier)
	}

	for z := range counts {
		res.Keys = append(res.Keys, z)
	}
	slices.Sort(res.Keys)

	for _, z := range res.Keys {
		cat := &Category{
			Key:              z,
			RowLabels:        rowLabels,
			ColLabels:        colLabels,
			ColDisplayLabels: colDisplay,
			Matrix:           make([][]*float64, nRows),
			Top:              make([]float64, nCols),
			Right:            make([]float64, nRows),
		}
		g := counts[z]
		colSums := make([]int, nCols)
		rowSums := make([]int, nRows)
		for r := 0; r < nRows; r++ {
			counted := g[r]
			for c, n := range counted {
				colSums[c] += n
				rowSums[r] += n
				cat.Total += n
			}
			if !occupied[r] {
				cat.Matrix[r] = emptyRow
				continue
			}
			row := make([]*float64, nCols)
			for c := 0; c < nCols; c++ {
				if cellTotals[r][c] == 0 {
					continue
				}
				n := 0
				if counted != nil {
					n = counted[c]
				}
				var v float64
				if p.HeatmapMode == ModeAbsolute {
					v = percent(n, eligible[r][c])
				} else {
					v = percent(n, cellTotals[r][c])
				}
				row[c] = &v
			}
			cat.Matrix[r] = row
		}

		switch p.HistogramMode {
		case ModeAbsolute:
			popSum := 0
			for c, m := range metas {
				pop := m.Population.Of(p.Tier)
				popSum += pop
				cat.Top[c] = percent(colSums[c], pop)
			}
			for r, n := range rowSums {
				cat.Right[r] = percent(n, popSum)
			}
		default:
			den := windowTotals[z]
			for c := range cat.Top {
				cat.Top[c] = percent(colSums[c], den)
			}
			for r, n := range rowSums {
				cat.Right[r] = percent(n, den)
			}
		}

		res.Categories[z] = cat
		res.Totals[z] = cat.Total
	}

	a.logger.Debug().
		Int("rows", len(rows)).
		Int("kept", len(kept)).
		Int("columns", nCols).
		Int("buckets", nRows).
		Int("categories", len(res.Keys)).
		Str("tier", p.Tier.String()).
		Int("anomalies", res.Anomalies).
		Msg("aggregated heatmap")

	return res, nil
}

// eligiblePopulation computes, for every non-empty cell, how many ranks of
// the bucket belong to the selected tier of that raid. Cells whose observed
// count cannot fit that population point at bad metadata; they are counted
// and logged, and a zero population is replaced by 1 so the cell can still
// be drawn.
func (a *Aggregator) eligiblePopulation(res *Result, buckets []Bucket, metas []domain.RaidMeta, cellTotals [][]int, tier domain.TierFilter) [][]int {
	out := newGrid(len(buckets), len(metas))
	for c, m := range metas {
		start, end := m.Population.Span(tier)
		for r, b := range buckets {
			n := b.Overlap(start, end)
			observed := cellTotals[r][c]
			if observed > 0 && observed > n {
				res.Anomalies++
				a.logger.Warn().
					Int("raid_id", m.ID).
					Str("bucket", b.Label()).
					Str("tier", tier.String()).
					Int("observed", observed).
					Int("eligible", n).
					Msg("observations exceed eligible population")
			}
			if n <= 0 {
				n = 1
			}
			out[r][c] = n
		}
	}
	return out
}

func newGrid(rows, cols int) [][]int {
	cells := make([]int, rows*cols)
	g := make([][]int, rows)
	for r := range g {
		g[r] = cells[r*cols : (r+1)*cols : (r+1)*cols]
	}
	return g
}

// percent returns n/den*100, treating a missing denominator as 1.
func percent(n, den int) float64 {
	if den <= 0 {
		den = 1
	}
	return float64(n) / float64(den) * 100
}
