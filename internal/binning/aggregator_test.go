package binning

import (
	"testing"

	"raid-stats/internal/constants"
	"raid-stats/internal/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func raid(id int, code string, pop map[domain.Tier]int) domain.RaidMeta {
	m := domain.RaidMeta{ID: id, Code: code, Name: "raid " + code}
	for t, n := range pop {
		m.Population.Tiers[t] = n
		m.Population.All += n
	}
	return m
}

func row(x, rank, z int, tier domain.Tier) domain.RawRow {
	return domain.RawRow{X: x, Y: rank, Z: z, W: 1, DifficultyIndex: int(tier)}
}

func params(width int) Params {
	return Params{BucketWidth: width, Tier: domain.AllTiers}
}

func aggregate(t *testing.T, rows []domain.RawRow, raids []domain.RaidMeta, p Params) *Result {
	t.Helper()
	res, err := NewAggregator(zerolog.Nop()).Aggregate(rows, raids, p)
	require.NoError(t, err)
	return res
}

func TestBucketTiling(t *testing.T) {
	for _, w := range []int{1, 7, 300} {
		for rank := 1; rank <= 2000; rank++ {
			b := NewBucket(BucketOf(rank, w), w)
			require.True(t, b.Start <= rank && rank <= b.End, "rank %d width %d in %s", rank, w, b.Label())
			next := NewBucket(b.Index+1, w)
			require.Equal(t, b.End+1, next.Start)
			require.Equal(t, w, b.End-b.Start+1)
		}
	}
	assert.Equal(t, "901-1200", NewBucket(3, 300).Label())
	assert.Equal(t, "1-300", NewBucket(0, 300).Label())
}

func TestEligiblePopulation_StraddlingBucket(t *testing.T) {
	pop := raid(1, "S1", map[domain.Tier]int{domain.Insane: 1000, domain.Extreme: 5000}).Population
	b := NewBucket(BucketOf(950, 300), 300)
	require.Equal(t, "901-1200", b.Label())

	start, end := pop.Span(domain.OnlyTier(domain.Insane))
	assert.Equal(t, 100, b.Overlap(start, end))

	start, end = pop.Span(domain.OnlyTier(domain.Extreme))
	assert.Equal(t, 200, b.Overlap(start, end))

	start, end = pop.Span(domain.AllTiers)
	assert.Equal(t, 300, b.Overlap(start, end))
}

func TestAggregate_AbsoluteUsesEligiblePopulation(t *testing.T) {
	raids := []domain.RaidMeta{raid(63, "S63", map[domain.Tier]int{domain.Insane: 1000, domain.Extreme: 5000})}
	var rows []domain.RawRow
	for rank := 901; rank <= 1000; rank++ {
		rows = append(rows, row(63, rank, 1, domain.Insane))
	}
	for rank := 1001; rank <= 1100; rank++ {
		rows = append(rows, row(63, rank, 1, domain.Extreme))
	}

	p := params(300)
	p.HeatmapMode = ModeAbsolute
	p.Tier = domain.OnlyTier(domain.Insane)
	res := aggregate(t, rows, raids, p)

	require.Equal(t, []int{1}, res.Keys)
	cat := res.Categories[1]
	require.Len(t, cat.Matrix, 4)
	assert.Equal(t, "901-1200", cat.RowLabels[3])
	require.NotNil(t, cat.Matrix[3][0])
	assert.InDelta(t, 100.0, *cat.Matrix[3][0], 1e-9)
	assert.Zero(t, res.Anomalies)
	for r := 0; r < 3; r++ {
		assert.Nil(t, cat.Matrix[r][0])
	}

	p.Tier = domain.OnlyTier(domain.Extreme)
	res = aggregate(t, rows, raids, p)
	assert.InDelta(t, 50.0, *res.Categories[1].Matrix[3][0], 1e-9)
}

func TestAggregate_AbsoluteFlagsImpossibleCells(t *testing.T) {
	// population claims 10 Insane clears but 40 were observed in the first bucket
	raids := []domain.RaidMeta{raid(1, "S1", map[domain.Tier]int{domain.Insane: 10})}
	var rows []domain.RawRow
	for rank := 1; rank <= 40; rank++ {
		rows = append(rows, row(1, rank, 2, domain.Insane))
	}
	p := params(100)
	p.HeatmapMode = ModeAbsolute
	p.Tier = domain.OnlyTier(domain.Insane)

	res := aggregate(t, rows, raids, p)
	assert.Equal(t, 1, res.Anomalies)
	assert.InDelta(t, 400.0, *res.Categories[2].Matrix[0][0], 1e-9)
}

func TestAggregate_MissingPopulationFallsBackToOne(t *testing.T) {
	raids := []domain.RaidMeta{raid(1, "S1", nil)}
	rows := []domain.RawRow{row(1, 5, 1, domain.Torment), row(1, 6, 1, domain.Torment)}
	p := params(10)
	p.HeatmapMode = ModeAbsolute
	p.HistogramMode = ModeAbsolute
	p.Tier = domain.OnlyTier(domain.Torment)

	res := aggregate(t, rows, raids, p)
	cat := res.Categories[1]
	assert.InDelta(t, 200.0, *cat.Matrix[0][0], 1e-9)
	assert.InDelta(t, 200.0, cat.Top[0], 1e-9)
	assert.Equal(t, 1, res.Anomalies)
}

func TestAggregate_PercentAcrossCategories(t *testing.T) {
	raids := []domain.RaidMeta{raid(10, "A", nil), raid(11, "B", nil)}
	rows := []domain.RawRow{
		row(10, 1, 3, domain.Lunatic),
		row(10, 2, 3, domain.Lunatic),
		row(10, 3, 3, domain.Lunatic),
		row(10, 4, -3, domain.Lunatic),
		row(11, 15, 3, domain.Torment),
	}
	res := aggregate(t, rows, raids, params(10))

	require.Equal(t, []int{-3, 3}, res.Keys)
	assert.Equal(t, map[int]int{-3: 1, 3: 4}, res.Totals)
	assert.Equal(t, []int{0, 1}, res.Columns)
	assert.Equal(t, 0, res.MinColumn)
	assert.Equal(t, 1, res.MaxColumn)

	want := [][]*float64{
		{f(75), nil},
		{nil, f(100)},
	}
	if diff := cmp.Diff(want, res.Categories[3].Matrix); diff != "" {
		t.Errorf("category 3 matrix mismatch (-want +got):\n%s", diff)
	}
	want = [][]*float64{
		{f(25), nil},
		{nil, f(0)},
	}
	if diff := cmp.Diff(want, res.Categories[-3].Matrix); diff != "" {
		t.Errorf("category -3 matrix mismatch (-want +got):\n%s", diff)
	}

	cat := res.Categories[3]
	assert.Equal(t, []string{"1-10", "11-20"}, cat.RowLabels)
	assert.Equal(t, []string{"A", "B"}, cat.ColLabels)
	assert.Equal(t, []string{"raid A", "raid B"}, cat.ColDisplayLabels)
	assert.Equal(t, []float64{75, 25}, cat.Top)
	assert.Equal(t, []float64{75, 25}, cat.Right)
}

func TestAggregate_ColumnOrderFollowsDisplayedRaids(t *testing.T) {
	raids := []domain.RaidMeta{raid(20, "later", nil), raid(10, "earlier", nil)}
	rows := []domain.RawRow{row(10, 1, 1, domain.Hard), row(99, 1, 1, domain.Hard)}
	res := aggregate(t, rows, raids, params(5))

	assert.Equal(t, 1, res.MinColumn)
	assert.Equal(t, 1, res.MaxColumn)
	assert.Equal(t, []string{"earlier"}, res.Categories[1].ColLabels)
}

func TestAggregate_HidesSparseColumns(t *testing.T) {
	raids := []domain.RaidMeta{raid(1, "A", nil), raid(2, "B", nil), raid(3, "C", nil)}
	rows := []domain.RawRow{
		row(1, 1, 1, domain.Normal), row(1, 2, 1, domain.Normal), row(1, 3, 1, domain.Normal),
		row(2, 1, 1, domain.Normal),
		row(3, 1, 1, domain.Normal), row(3, 2, 1, domain.Normal),
	}
	p := params(100)
	p.MinSamples = 2
	res := aggregate(t, rows, raids, p)

	assert.Equal(t, []int{0, 2}, res.Columns)
	assert.Equal(t, 0, res.MinColumn)
	assert.Equal(t, 2, res.MaxColumn)

	cat := res.Categories[1]
	assert.Equal(t, []string{"A", "C"}, cat.ColLabels)
	assert.Equal(t, 5, cat.Total)
	// the hidden column still counts towards the percent denominator
	assert.InDeltaSlice(t, []float64{50, 100.0 / 3}, cat.Top, 1e-9)
	assert.InDeltaSlice(t, []float64{500.0 / 6}, cat.Right, 1e-9)
}

func TestAggregate_ZeroThresholdKeepsEmptyColumns(t *testing.T) {
	raids := []domain.RaidMeta{raid(1, "A", nil), raid(2, "B", nil), raid(3, "C", nil)}
	rows := []domain.RawRow{row(1, 1, 1, domain.Normal), row(3, 1, 1, domain.Normal)}
	res := aggregate(t, rows, raids, params(10))

	assert.Equal(t, []int{0, 1, 2}, res.Columns)
	cat := res.Categories[1]
	assert.Nil(t, cat.Matrix[0][1])
	assert.Equal(t, []float64{50, 0, 50}, cat.Top)
}

func TestAggregate_TierFilterAndWindow(t *testing.T) {
	raids := []domain.RaidMeta{raid(1, "A", nil), raid(2, "B", nil), raid(3, "C", nil)}
	rows := []domain.RawRow{
		row(1, 1, 1, domain.Lunatic),
		row(2, 1, 1, domain.Lunatic),
		row(2, 2, 1, domain.Torment),
		row(3, 1, 1, domain.Torment),
	}
	p := params(10)
	p.Tier = domain.OnlyTier(domain.Torment)
	p.Window = &ColumnWindow{Lo: 1, Hi: 5}
	res := aggregate(t, rows, raids, p)

	// the full domain ignores filtering
	assert.Equal(t, 0, res.MinColumn)
	assert.Equal(t, 2, res.MaxColumn)
	assert.Equal(t, []int{1, 2}, res.Columns)
	assert.Equal(t, map[int]int{1: 2}, res.Totals)
	assert.Equal(t, []string{"B", "C"}, res.Categories[1].ColLabels)
}

func TestAggregate_AbsoluteHistogramUsesRaidPopulation(t *testing.T) {
	raids := []domain.RaidMeta{
		raid(1, "A", map[domain.Tier]int{domain.Lunatic: 4, domain.Torment: 16}),
		raid(2, "B", map[domain.Tier]int{domain.Lunatic: 6, domain.Torment: 14}),
	}
	rows := []domain.RawRow{
		row(1, 1, 7, domain.Lunatic), row(1, 2, 7, domain.Lunatic),
		row(2, 1, 7, domain.Lunatic), row(2, 3, 7, domain.Lunatic), row(2, 4, 7, domain.Lunatic),
	}
	p := params(2)
	p.HistogramMode = ModeAbsolute
	p.Tier = domain.OnlyTier(domain.Lunatic)
	res := aggregate(t, rows, raids, p)

	cat := res.Categories[7]
	assert.InDeltaSlice(t, []float64{50, 50}, cat.Top, 1e-9)
	assert.InDeltaSlice(t, []float64{30, 20}, cat.Right, 1e-9)

	p.Tier = domain.AllTiers
	res = aggregate(t, rows, raids, p)
	assert.InDeltaSlice(t, []float64{10, 15}, res.Categories[7].Top, 1e-9)
}

func TestAggregate_Empty(t *testing.T) {
	res := aggregate(t, nil, []domain.RaidMeta{raid(1, "A", nil)}, params(300))
	assert.Empty(t, res.Keys)
	assert.Empty(t, res.Categories)
	assert.Equal(t, -1, res.MinColumn)
	assert.Equal(t, -1, res.MaxColumn)

	res = aggregate(t, []domain.RawRow{row(1, 1, 1, domain.Hard)}, nil, params(300))
	assert.Empty(t, res.Keys)
}

func TestAggregate_DropsInvalidRanks(t *testing.T) {
	raids := []domain.RaidMeta{raid(1, "A", nil)}
	res := aggregate(t, []domain.RawRow{row(1, 0, 1, domain.Hard), row(1, 1, 1, domain.Hard)}, raids, params(10))
	assert.Equal(t, 1, res.InvalidRows)
	assert.Equal(t, 1, res.Totals[1])
}

func TestAggregate_InvalidWidth(t *testing.T) {
	_, err := NewAggregator(zerolog.Nop()).Aggregate(nil, nil, Params{BucketWidth: 0})
	assert.ErrorIs(t, err, ErrInvalidWidth)
}

func TestAggregate_BucketLimit(t *testing.T) {
	raids := []domain.RaidMeta{raid(1, "A", nil), raid(2, "B", nil)}
	far := constants.MaxBuckets * 150
	rows := []domain.RawRow{row(1, 1, 1, domain.Hard), row(1, 2, 2, domain.Hard), row(2, far, 3, domain.Hard)}

	_, err := NewAggregator(zerolog.Nop()).Aggregate(rows, raids, params(1))
	assert.ErrorIs(t, err, ErrTooManyBuckets)

	res := aggregate(t, rows, raids, params(300))
	require.Len(t, res.Categories[1].Matrix, 150*constants.MaxBuckets/300)
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, res.Totals)
	last := len(res.Categories[3].Matrix) - 1
	assert.Equal(t, []*float64{nil, nil}, res.Categories[1].Matrix[last/2])
	assert.Equal(t, []*float64{nil, f(0)}, res.Categories[1].Matrix[last])
	assert.Equal(t, []*float64{nil, f(100)}, res.Categories[3].Matrix[last])

	p := params(1)
	p.MinSamples = 2
	res = aggregate(t, rows, raids, p)
	assert.Equal(t, []int{0}, res.Columns)
	assert.Len(t, res.Categories[1].Matrix, 2)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Absolute")
	require.NoError(t, err)
	assert.Equal(t, ModeAbsolute, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModePercent, m)

	_, err = ParseMode("log")
	assert.Error(t, err)
}
