package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"raid-stats/internal/binning"
	"raid-stats/internal/constants"
	"raid-stats/internal/domain"
	"raid-stats/internal/export"
	"raid-stats/internal/service"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newRowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rows <export-file>",
		Short: "Summarize the rows of an export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openSource(args[0])
			if err != nil {
				return err
			}
			rows, err := export.ReadRows(cmd.Context(), src)
			if err != nil {
				return err
			}

			byKey := map[int]int{}
			var byTier [domain.TierCount]int
			raids := map[int]bool{}
			maxRank := 0
			for _, r := range rows {
				byKey[r.Z] += r.W
				if r.Tier().Valid() {
					byTier[r.Tier()] += r.W
				}
				raids[r.X] = true
				maxRank = max(maxRank, r.Y)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rows\t%d\nraids\t%d\nmax_rank\t%d\n", len(rows), len(raids), maxRank)
			keys := make([]int, 0, len(byKey))
			for k := range byKey {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "key %d\t%d\n", k, byKey[k])
			}
			for _, t := range domain.Tiers() {
				if byTier[t] > 0 {
					fmt.Fprintf(out, "tier %s\t%d\n", t, byTier[t])
				}
			}
			return nil
		},
	}
}

type aggregateFlags struct {
	raidsPath     string
	raidIDs       []int
	labels        map[string]string
	width         int
	minSamples    int
	window        string
	tier          string
	heatmapMode   string
	histogramMode string
}

func newAggregateCmd() *cobra.Command {
	var f aggregateFlags
	cmd := &cobra.Command{
		Use:   "aggregate <rows-export> --raids <metadata-export>",
		Short: "Aggregate an export into heatmap JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.params()
			if err != nil {
				return err
			}

			metaSrc, err := openSource(f.raidsPath)
			if err != nil {
				return err
			}
			metas, err := export.DecodeRaids(cmd.Context(), metaSrc)
			if err != nil {
				return fmt.Errorf("failed to read raid metadata: %w", err)
			}
			labels, err := f.labelsByID()
			if err != nil {
				return err
			}
			metas, err = service.SelectRaids(metas, f.raidIDs, labels)
			if err != nil {
				return err
			}

			src, err := openSource(args[0])
			if err != nil {
				return err
			}
			rows, err := export.ReadRows(cmd.Context(), src)
			if err != nil {
				return err
			}

			res, err := binning.NewAggregator(log).Aggregate(rows, metas, p)
			if err != nil {
				return err
			}
			if res.Anomalies > 0 {
				log.Warn().Int("anomalies", res.Anomalies).Msg("cells exceed their eligible population")
			}

			b, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
	cmd.Flags().StringVar(&f.raidsPath, "raids", "", "Raid metadata export (required)")
	cmd.Flags().IntSliceVar(&f.raidIDs, "raid-ids", nil, "Displayed raid ids in column order (default: every raid)")
	cmd.Flags().StringToStringVar(&f.labels, "label", nil, "Column display labels as raid-id=label")
	cmd.Flags().IntVar(&f.width, "width", constants.DefaultBucketWidth, "Rank bucket width")
	cmd.Flags().IntVar(&f.minSamples, "min-samples", constants.DefaultMinSamples, "Hide columns with fewer samples")
	cmd.Flags().StringVar(&f.window, "window", "", "Displayed column positions as lo:hi")
	cmd.Flags().StringVar(&f.tier, "tier", domain.AllTiersName, "Tier filter")
	cmd.Flags().StringVar(&f.heatmapMode, "heatmap-mode", "percent", "Heatmap normalization (percent, absolute)")
	cmd.Flags().StringVar(&f.histogramMode, "histogram-mode", "percent", "Marginal normalization (percent, absolute)")
	_ = cmd.MarkFlagRequired("raids")
	return cmd
}

func (f aggregateFlags) params() (binning.Params, error) {
	p := binning.Params{BucketWidth: f.width, MinSamples: f.minSamples}
	var err error
	if p.Tier, err = domain.ParseTierFilter(f.tier); err != nil {
		return p, err
	}
	if p.HeatmapMode, err = binning.ParseMode(f.heatmapMode); err != nil {
		return p, err
	}
	if p.HistogramMode, err = binning.ParseMode(f.histogramMode); err != nil {
		return p, err
	}
	if f.window != "" {
		lo, hi, ok := strings.Cut(f.window, ":")
		if !ok {
			return p, fmt.Errorf("invalid window %q, want lo:hi", f.window)
		}
		w := &binning.ColumnWindow{}
		if w.Lo, err = strconv.Atoi(lo); err != nil {
			return p, fmt.Errorf("invalid window start: %w", err)
		}
		if w.Hi, err = strconv.Atoi(hi); err != nil {
			return p, fmt.Errorf("invalid window end: %w", err)
		}
		p.Window = w
	}
	return p, nil
}

func (f aggregateFlags) labelsByID() (map[int]string, error) {
	out := make(map[int]string, len(f.labels))
	for k, v := range f.labels {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid label raid id %q: %w", k, err)
		}
		out[id] = v
	}
	return out, nil
}
