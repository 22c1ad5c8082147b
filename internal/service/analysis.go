package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/langchou/tripscore/internal/analysis"
	"github.com/langchou/tripscore/internal/cache"
	"github.com/langchou/tripscore/internal/config"
	"github.com/langchou/tripscore/internal/models"
	"github.com/langchou/tripscore/internal/repository"
	"github.com/langchou/tripscore/internal/state"
	"github.com/langchou/tripscore/internal/tz"
	"github.com/langchou/tripscore/pkg/ws"
)

// ErrNoTrajectoryData 行程没有任何有效轨迹批次
var ErrNoTrajectoryData = errors.New("no trajectory data for trip")

// AnalysisService 行程分析服务
type AnalysisService struct {
	cfg          *config.Config
	logger       *zap.Logger
	userRepo     *repository.UserRepository
	tripRepo     *repository.TripRepository
	batchRepo    *repository.BatchRepository
	cache        *cache.Manager
	analyzer     *analysis.Analyzer
	thresholds   analysis.Thresholds
	stateManager *state.Manager
	wsHub        *ws.Hub
}

// NewAnalysisService 创建分析服务
func NewAnalysisService(
	cfg *config.Config,
	logger *zap.Logger,
	userRepo *repository.UserRepository,
	tripRepo *repository.TripRepository,
	batchRepo *repository.BatchRepository,
	cacheManager *cache.Manager,
	stateManager *state.Manager,
	wsHub *ws.Hub,
) *AnalysisService {
	th := analysis.DefaultThresholds()
	return &AnalysisService{
		cfg:          cfg,
		logger:       logger,
		userRepo:     userRepo,
		tripRepo:     tripRepo,
		batchRepo:    batchRepo,
		cache:        cacheManager,
		analyzer:     analysis.NewAnalyzer(logger, th),
		thresholds:   th,
		stateManager: stateManager,
		wsHub:        wsHub,
	}
}

// AnalyzeTrip 分析单个行程，优先走缓存
func (s *AnalysisService) AnalyzeTrip(ctx context.Context, tripID string) (*analysis.Result, cache.State, error) {
	trip, err := s.tripRepo.Get(ctx, tripID)
	if err != nil {
		if !errors.Is(err, repository.ErrTripNotFound) {
			return nil, cache.StateMiss, err
		}
		// 元数据缺失不阻塞分析，按裸行程处理
		trip = &models.Trip{TripID: tripID}
	}

	result, cacheState, err := s.cache.GetOrCompute(ctx, trip, func(ctx context.Context) (*analysis.Result, error) {
		return s.computeTrip(ctx, trip)
	})
	if err != nil {
		return nil, cacheState, err
	}

	if cacheState != cache.StateHit {
		s.notifyAnalysisComplete(trip, result)
	}

	return result, cacheState, nil
}

// computeTrip 缓存未命中时的真实计算路径
func (s *AnalysisService) computeTrip(ctx context.Context, trip *models.Trip) (*analysis.Result, error) {
	deltas, err := s.batchRepo.GetTripDeltas(ctx, trip.TripID)
	if err != nil {
		return nil, err
	}
	if len(deltas) == 0 {
		return nil, fmt.Errorf("trip %s: %w", trip.TripID, ErrNoTrajectoryData)
	}

	basePoint := models.DefaultBasePoint()
	if trip.UserID != "" {
		user, err := s.userRepo.GetByID(ctx, trip.UserID)
		if err == nil {
			basePoint = user.ResolveBasePoint()
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Warn("User lookup failed, using fallback base point",
				zap.String("user_id", trip.UserID),
				zap.Error(err))
		}
	}

	return s.analyzer.Analyze(analysis.Input{
		TripID:    trip.TripID,
		Deltas:    deltas,
		BasePoint: basePoint,
		Trip:      trip,
	})
}

// notifyAnalysisComplete 状态机打点并推送给用户
func (s *AnalysisService) notifyAnalysisComplete(trip *models.Trip, result *analysis.Result) {
	if trip.UserID == "" {
		return
	}

	machine := s.stateManager.GetOrCreate(trip.TripID, trip.UserID, state.StateActive)
	if machine.CanTransition(state.EventCompleteAnalysis) {
		if err := machine.Trigger(state.EventCompleteAnalysis); err != nil {
			s.logger.Warn("Trip state transition failed",
				zap.String("trip_id", trip.TripID),
				zap.Error(err))
		}
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastToUser(trip.UserID, ws.MsgTypeAnalysisComplete, result)
	}
}

// TripSummary 司机报告里的单行程摘要
type TripSummary struct {
	TripID             string                    `json:"trip_id"`
	BehaviorScore      float64                   `json:"behavior_score"`
	BehaviorCategory   analysis.BehaviorCategory `json:"behavior_category"`
	TotalDistanceMiles float64                   `json:"total_distance_miles"`
	FormattedDuration  string                    `json:"formatted_duration"`
	Context            analysis.ContextLabel     `json:"driving_context"`
	HarshEvents        int                       `json:"total_harsh_events"`
	FromCache          bool                      `json:"from_cache"`
	StartLocal         string                    `json:"start_local,omitempty"`
}

// CacheStats 批量分析的缓存命中统计
type CacheStats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
	Stale  int `json:"stale"`
}

// DriverReport 司机级聚合报告
type DriverReport struct {
	UserID               string                    `json:"user_id"`
	Email                string                    `json:"email"`
	Name                 string                    `json:"name,omitempty"`
	TripsAnalyzed        int                       `json:"trips_analyzed"`
	TripsSkipped         int                       `json:"trips_skipped"`
	TotalDistanceMiles   float64                   `json:"total_distance_miles"`
	TotalDurationMinutes float64                   `json:"total_duration_minutes"`
	FormattedDuration    string                    `json:"formatted_duration"`
	BehaviorScore        float64                   `json:"behavior_score"`
	BehaviorCategory     analysis.BehaviorCategory `json:"behavior_category"`
	RiskLevel            string                    `json:"risk_level"`
	SpeedConsistency     float64                   `json:"speed_consistency"`
	TotalHarshEvents     int                       `json:"total_harsh_events"`
	TotalDangerousEvents int                       `json:"total_dangerous_events"`
	HardStops            int                       `json:"hard_stops"`
	EventsPer100Miles    float64                   `json:"events_per_100_miles"`
	IndustryRating       analysis.Rating           `json:"industry_rating"`
	DominantContext      analysis.ContextLabel     `json:"dominant_context"`
	FirstTripLocal       string                    `json:"first_trip_local,omitempty"`
	LastTripLocal        string                    `json:"last_trip_local,omitempty"`
	Trips                []TripSummary             `json:"trips"`
	Cache                CacheStats                `json:"cache_stats"`
	AlgorithmVersion     string                    `json:"algorithm_version"`
}

// AnalyzeDriver 分析一个司机的全部行程并聚合
// identifier 接受邮箱或用户 ID；单个行程失败只计入跳过数，不拖垮整个报告
func (s *AnalysisService) AnalyzeDriver(ctx context.Context, identifier string) (*DriverReport, error) {
	user, err := s.lookupUser(ctx, identifier)
	if err != nil {
		return nil, err
	}

	tripIDs, err := s.tripRepo.ListIDsByUser(ctx, user.UserID, s.cfg.DriverTripLimit)
	if err != nil {
		return nil, err
	}
	if len(tripIDs) == 0 {
		return nil, fmt.Errorf("driver %s: %w", user.UserID, ErrNoTrajectoryData)
	}

	type tripOutcome struct {
		result *analysis.Result
		state  cache.State
	}
	outcomes := make([]*tripOutcome, len(tripIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.AnalysisWorkers)

	var mu sync.Mutex
	skipped := 0

	for i, tripID := range tripIDs {
		i, tripID := i, tripID
		g.Go(func() error {
			result, cacheState, err := s.AnalyzeTrip(gctx, tripID)
			if err != nil {
				// 单行程失败跳过，批量报告尽量给出
				s.logger.Warn("Trip analysis skipped",
					zap.String("trip_id", tripID),
					zap.Error(err))
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			outcomes[i] = &tripOutcome{result: result, state: cacheState}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &DriverReport{
		UserID:           user.UserID,
		Email:            user.Email,
		Name:             user.Name,
		TripsSkipped:     skipped,
		AlgorithmVersion: analysis.AlgorithmVersion,
	}

	var (
		weightedScore       float64
		weightedConsistency float64
		contextMiles        = map[analysis.ContextLabel]float64{}
		firstStart          time.Time
		lastStart           time.Time
	)

	for _, o := range outcomes {
		if o == nil {
			continue
		}
		r := o.result

		report.TripsAnalyzed++
		report.TotalDistanceMiles += r.TotalDistanceMiles
		report.TotalDurationMinutes += r.DurationMinutes
		report.TotalHarshEvents += r.TotalHarshEvents
		report.TotalDangerousEvents += r.TotalDangerousEvents
		report.HardStops += r.HardStops

		weightedScore += r.BehaviorScore * r.TotalDistanceMiles
		weightedConsistency += r.SpeedConsistency * r.TotalDistanceMiles
		contextMiles[r.DrivingContext.Label] += r.TotalDistanceMiles

		switch o.state {
		case cache.StateHit:
			report.Cache.Hits++
		case cache.StateStale:
			report.Cache.Stale++
		default:
			report.Cache.Misses++
		}

		if !r.StartTimestamp.IsZero() {
			if firstStart.IsZero() || r.StartTimestamp.Before(firstStart) {
				firstStart = r.StartTimestamp
			}
			if r.StartTimestamp.After(lastStart) {
				lastStart = r.StartTimestamp
			}
		}

		report.Trips = append(report.Trips, TripSummary{
			TripID:             r.TripID,
			BehaviorScore:      r.BehaviorScore,
			BehaviorCategory:   r.BehaviorCategory,
			TotalDistanceMiles: r.TotalDistanceMiles,
			FormattedDuration:  r.FormattedDuration,
			Context:            r.DrivingContext.Label,
			HarshEvents:        r.TotalHarshEvents,
			FromCache:          r.FromCache,
			StartLocal:         tz.FormatLocal(r.StartTimestamp, user.Zipcode),
		})
	}

	if report.TripsAnalyzed == 0 {
		return nil, fmt.Errorf("driver %s: all %d trips failed analysis", user.UserID, len(tripIDs))
	}

	if report.TotalDistanceMiles > 0 {
		report.BehaviorScore = weightedScore / report.TotalDistanceMiles
		report.SpeedConsistency = weightedConsistency / report.TotalDistanceMiles
	}
	report.BehaviorCategory = analysis.CategoryForScore(report.BehaviorScore)
	report.RiskLevel = analysis.RiskLevelForScore(report.BehaviorScore)
	report.FormattedDuration = analysis.FormatDuration(report.TotalDurationMinutes)
	report.DominantContext = dominantContext(contextMiles)
	report.FirstTripLocal = tz.FormatLocal(firstStart, user.Zipcode)
	report.LastTripLocal = tz.FormatLocal(lastStart, user.Zipcode)

	// 司机级频率评级复用单行程的基准表，场景取主导场景
	freq := analysis.CalculateFrequencyMetrics(
		report.TotalHarshEvents,
		report.TotalDangerousEvents,
		report.TotalDistanceMiles,
		analysis.Context{Label: report.DominantContext},
		s.thresholds,
	)
	report.EventsPer100Miles = freq.EventsPer100Miles
	report.IndustryRating = freq.IndustryRating

	s.logger.Info("Driver report assembled",
		zap.String("user_id", user.UserID),
		zap.Int("trips_analyzed", report.TripsAnalyzed),
		zap.Int("trips_skipped", report.TripsSkipped),
		zap.Float64("behavior_score", report.BehaviorScore),
		zap.Int("cache_hits", report.Cache.Hits))

	return report, nil
}

// lookupUser 邮箱带 @，否则按用户 ID 查
func (s *AnalysisService) lookupUser(ctx context.Context, identifier string) (*models.User, error) {
	if strings.Contains(identifier, "@") {
		return s.userRepo.GetByEmail(ctx, identifier)
	}
	return s.userRepo.GetByID(ctx, identifier)
}

// TripStates 用户当前的行程状态快照，WebSocket 初始化数据用
func (s *AnalysisService) TripStates(userID string) []*state.TripState {
	var states []*state.TripState
	for _, ts := range s.stateManager.GetAllStates() {
		if ts.UserID == userID {
			states = append(states, ts)
		}
	}
	return states
}

func dominantContext(miles map[analysis.ContextLabel]float64) analysis.ContextLabel {
	dominant := analysis.ContextMixed
	best := -1.0
	for _, label := range []analysis.ContextLabel{analysis.ContextCity, analysis.ContextHighway, analysis.ContextMixed} {
		if m, ok := miles[label]; ok && m > best {
			dominant = label
			best = m
		}
	}
	return dominant
}
