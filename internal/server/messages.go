package server

import (
	"raid-stats/internal/difficulty"
)

type HeatmapRequest struct {
	Server        string         `json:"server"`
	Subject       string         `json:"subject"`
	RaidIDs       []int          `json:"raid_ids,omitempty"`
	Labels        map[int]string `json:"labels,omitempty"`
	BucketWidth   int            `json:"bucket_width,omitempty"`
	MinSamples    *int           `json:"min_samples,omitempty"`
	WindowLo      *int           `json:"window_lo,omitempty"`
	WindowHi      *int           `json:"window_hi,omitempty"`
	HeatmapMode   string         `json:"heatmap_mode,omitempty"`
	HistogramMode string         `json:"histogram_mode,omitempty"`
	Tier          string         `json:"tier,omitempty"`
	Refresh       bool           `json:"refresh,omitempty"`
}

type ScoreRequest struct {
	Server string `json:"server"`
	RaidID int    `json:"raid_id"`
	Score  int64  `json:"score"`
}

type ClassifyScoreResponse struct {
	Tier  string `json:"tier"`
	Code  string `json:"code"`
	Color string `json:"color"`
	Table string `json:"table"`
}

type ClassifyCombinedResponse struct {
	Bracket string `json:"bracket"`
}

type BracketsRequest struct {
	Server string `json:"server"`
	RaidID int    `json:"raid_id"`
}

type BracketsResponse struct {
	Table    string               `json:"table"`
	Brackets []difficulty.Bracket `json:"brackets"`
}
