package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"raid-stats/internal/api"
	"raid-stats/internal/binning"
	"raid-stats/internal/difficulty"
	"raid-stats/internal/domain"
	"raid-stats/internal/export"
	"raid-stats/internal/middleware"
	"raid-stats/internal/service"
	"raid-stats/internal/stream"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

const (
	RaidStatsName = "raidstats.v1.RaidStats"
	RaidStatsPath = "/" + RaidStatsName + "/"

	GetHeatmapProcedure       = RaidStatsPath + "GetHeatmap"
	ClassifyScoreProcedure    = RaidStatsPath + "ClassifyScore"
	ClassifyCombinedProcedure = RaidStatsPath + "ClassifyCombined"
	ListBracketsProcedure     = RaidStatsPath + "ListBrackets"
)

type StatsServer struct {
	statsSvc *service.StatsService
	logger   zerolog.Logger
}

func NewStatsServer(statsSvc *service.StatsService, logger zerolog.Logger) *StatsServer {
	return &StatsServer{statsSvc: statsSvc, logger: logger}
}

// NewRaidStatsHandler mounts every procedure of s and returns the path
// prefix to route to the handler.
func NewRaidStatsHandler(s *StatsServer, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetHeatmapProcedure, connect.NewUnaryHandler(GetHeatmapProcedure, s.GetHeatmap, opts...))
	mux.Handle(ClassifyScoreProcedure, connect.NewUnaryHandler(ClassifyScoreProcedure, s.ClassifyScore, opts...))
	mux.Handle(ClassifyCombinedProcedure, connect.NewUnaryHandler(ClassifyCombinedProcedure, s.ClassifyCombined, opts...))
	mux.Handle(ListBracketsProcedure, connect.NewUnaryHandler(ListBracketsProcedure, s.ListBrackets, opts...))
	return RaidStatsPath, mux
}

func (s *StatsServer) GetHeatmap(ctx context.Context, req *connect.Request[HeatmapRequest]) (*connect.Response[binning.Result], error) {
	start := time.Now()
	q, err := heatmapQuery(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	res, err := s.statsSvc.Heatmap(ctx, q)
	if err != nil {
		return nil, s.fail(ctx, "GetHeatmap", err)
	}

	s.logger.Debug().
		Str("request_id", middleware.GetRequestID(ctx)).
		Int("categories", len(res.Keys)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("heatmap served")

	return connect.NewResponse(res), nil
}

func heatmapQuery(m *HeatmapRequest) (service.HeatmapQuery, error) {
	tier, err := domain.ParseTierFilter(m.Tier)
	if err != nil {
		return service.HeatmapQuery{}, err
	}
	heatmapMode, err := binning.ParseMode(m.HeatmapMode)
	if err != nil {
		return service.HeatmapQuery{}, err
	}
	histogramMode, err := binning.ParseMode(m.HistogramMode)
	if err != nil {
		return service.HeatmapQuery{}, err
	}

	p := binning.Params{
		BucketWidth:   m.BucketWidth,
		HeatmapMode:   heatmapMode,
		HistogramMode: histogramMode,
		Tier:          tier,
	}
	if m.WindowLo != nil || m.WindowHi != nil {
		w := &binning.ColumnWindow{Lo: 0, Hi: math.MaxInt}
		if m.WindowLo != nil {
			w.Lo = *m.WindowLo
		}
		if m.WindowHi != nil {
			w.Hi = *m.WindowHi
		}
		p.Window = w
	}

	return service.HeatmapQuery{
		Server:     m.Server,
		Subject:    m.Subject,
		RaidIDs:    m.RaidIDs,
		Labels:     m.Labels,
		Params:     p,
		Refresh:    m.Refresh,
		MinSamples: m.MinSamples,
	}, nil
}

func (s *StatsServer) ClassifyScore(ctx context.Context, req *connect.Request[ScoreRequest]) (*connect.Response[ClassifyScoreResponse], error) {
	c := s.statsSvc.ClassifyScore(req.Msg.Server, req.Msg.RaidID, req.Msg.Score)
	return connect.NewResponse(&ClassifyScoreResponse{
		Tier:  c.Tier.String(),
		Code:  string(c.Tier.Code()),
		Color: c.Tier.Color(),
		Table: c.Table,
	}), nil
}

func (s *StatsServer) ClassifyCombined(ctx context.Context, req *connect.Request[ScoreRequest]) (*connect.Response[ClassifyCombinedResponse], error) {
	code, err := s.statsSvc.ClassifyCombined(req.Msg.Server, req.Msg.RaidID, req.Msg.Score)
	if err != nil {
		return nil, s.fail(ctx, "ClassifyCombined", err)
	}
	return connect.NewResponse(&ClassifyCombinedResponse{Bracket: code}), nil
}

func (s *StatsServer) ListBrackets(ctx context.Context, req *connect.Request[BracketsRequest]) (*connect.Response[BracketsResponse], error) {
	return connect.NewResponse(&BracketsResponse{
		Table:    s.statsSvc.ClassifyScore(req.Msg.Server, req.Msg.RaidID, 0).Table,
		Brackets: s.statsSvc.Brackets(req.Msg.Server, req.Msg.RaidID),
	}), nil
}

func (s *StatsServer) fail(ctx context.Context, procedure string, err error) error {
	code := errorCode(err)
	ev := s.logger.Error()
	if code == connect.CodeInvalidArgument || code == connect.CodeNotFound || code == connect.CodeOutOfRange {
		ev = s.logger.Warn()
	}
	ev.Err(err).
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("procedure", procedure).
		Str("code", code.String()).
		Msg("request failed")
	return connect.NewError(code, err)
}

func errorCode(err error) connect.Code {
	var formatErr *export.FormatError
	var ioErr *stream.DecodeIOError
	var statusErr *api.StatusError

	switch {
	case errors.Is(err, service.ErrInvalidQuery), errors.Is(err, binning.ErrInvalidWidth), errors.Is(err, binning.ErrTooManyBuckets):
		return connect.CodeInvalidArgument
	case errors.Is(err, service.ErrUnknownRaid):
		return connect.CodeNotFound
	case errors.As(err, &statusErr) && statusErr.NotFound():
		return connect.CodeNotFound
	case errors.Is(err, difficulty.ErrBracketOutOfRange):
		return connect.CodeOutOfRange
	case errors.Is(err, stream.ErrKeyTooShort), errors.As(err, &formatErr):
		return connect.CodeDataLoss
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.As(err, &ioErr), errors.As(err, &statusErr):
		return connect.CodeUnavailable
	}
	return connect.CodeInternal
}
