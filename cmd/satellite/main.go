// Command satellite runs the cross-chain bridge arbitrage satellite as a
// single long-running process: it wires the thirteen core components
// together, starts their polling/scanning loops, exposes a Prometheus
// metrics endpoint, and shuts everything down gracefully on SIGINT/SIGTERM.
// Grounded in the teacher's cmd/defi-service/main.go load-config /
// build-dependencies / serve / graceful-shutdown shape, minus the gRPC
// server this satellite has no user-facing API for (no Non-goal here
// excludes the ambient metrics/logging/audit stack, only the RPC surface).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brdgsat/satellite/internal/adapters"
	"github.com/brdgsat/satellite/internal/arbitrage"
	"github.com/brdgsat/satellite/internal/assetmap"
	"github.com/brdgsat/satellite/internal/bridgemonitor"
	"github.com/brdgsat/satellite/internal/chainstate"
	"github.com/brdgsat/satellite/internal/config"
	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/internal/eventbus"
	"github.com/brdgsat/satellite/internal/liquidity"
	"github.com/brdgsat/satellite/internal/portfolio"
	"github.com/brdgsat/satellite/internal/pricefeed"
	"github.com/brdgsat/satellite/internal/rebalancer"
	"github.com/brdgsat/satellite/internal/riskassessor"
	"github.com/brdgsat/satellite/internal/syncer"
	"github.com/brdgsat/satellite/pkg/auditlog"
	"github.com/brdgsat/satellite/pkg/logx"
	"github.com/brdgsat/satellite/pkg/metrics"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults applied when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logx.New(logx.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	defer logger.Sync()

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	audit, err := buildAuditWriter(cfg.AuditLog)
	if err != nil {
		logger.Fatal("build audit log writer", zap.Error(err))
	}
	defer audit.Close()

	app, err := build(logger, cfg, reg, audit)
	if err != nil {
		logger.Fatal("build satellite components", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go serveMetrics(logger, cfg.Metrics.Port)
	app.run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down satellite")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()

	if err := app.coordinator.EmergencyStop(shutdownCtx, "process shutdown requested"); err != nil {
		logger.Warn("emergency stop did not drain cleanly", zap.Error(err))
	}
	cancel()
	logger.Info("satellite stopped")
}

func serveMetrics(logger *logx.Logger, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

func buildAuditWriter(cfg config.AuditLogConfig) (auditlog.Writer, error) {
	var writers []auditlog.Writer
	if cfg.FilePath != "" {
		fw, err := auditlog.NewFileWriter(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		writers = append(writers, fw)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		writers = append(writers, auditlog.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	if len(writers) == 0 {
		return auditlog.NewMulti(), nil
	}
	return auditlog.NewMulti(writers...), nil
}

// bridgeWrapper adapts a domain.BridgeConfig plus its live monitor status
// into both arbitrage.BridgeRoute (detector/validator) and
// rebalancer.BridgeCandidate (planner/portfolio) — the same bridge, the
// same cost model, consulted by three different components.
type bridgeWrapper struct {
	cfg     domain.BridgeConfig
	monitor *bridgemonitor.Monitor
	risk    *riskassessor.Assessor
}

func (b bridgeWrapper) ID() domain.BridgeID { return b.cfg.ID }

func (b bridgeWrapper) SupportsRoute(source, target domain.ChainID, asset domain.AssetID) bool {
	return b.cfg.SupportsRoute(source, target, asset)
}

func (b bridgeWrapper) FeeBase() float64 { return b.cfg.FeeBase }

func (b bridgeWrapper) FeeVariable() float64 { return b.cfg.FeeVariable }

func (b bridgeWrapper) CostUSD(amount money.Amount) money.Amount {
	return money.FromFloat(b.cfg.FeeBase).Add(amount.Mul(money.FromFloat(b.cfg.FeeVariable)))
}

func (b bridgeWrapper) IsOperational() bool { return b.monitor.IsOperational(b.cfg.ID) }

func (b bridgeWrapper) RiskLevel() domain.RiskLevel {
	worst := domain.RiskLow
	for chain := range b.cfg.SupportedChains {
		if score, ok := b.risk.Latest(chain); ok && worseRisk(score.Level, worst) {
			worst = score.Level
		}
	}
	return worst
}

func worseRisk(a, worst domain.RiskLevel) bool {
	rank := map[domain.RiskLevel]int{domain.RiskLow: 0, domain.RiskMedium: 1, domain.RiskHigh: 2, domain.RiskCritical: 3}
	return rank[a] > rank[worst]
}

// bridgeSource implements portfolio.BridgeSource over the configured
// bridge set, filtered to bridges that list the requested asset.
type bridgeSource struct {
	bridges []bridgeWrapper
}

func (s *bridgeSource) Candidates(asset domain.AssetID) []rebalancer.BridgeCandidate {
	out := make([]rebalancer.BridgeCandidate, 0, len(s.bridges))
	for _, b := range s.bridges {
		if b.cfg.SupportedAssets[asset] {
			out = append(out, b)
		}
	}
	return out
}

// chainAdapterSource implements syncer.ChainSource over a fixed set of
// ChainAdapter implementations, one per configured chain. An operator
// replaces the default in-memory adapters this satellite boots with by
// constructing real RPC clients against the same ChainAdapter interface;
// nothing downstream of internal/adapters needs to change.
type chainAdapterSource struct {
	byChain map[domain.ChainID]adapters.ChainAdapter
}

func (s *chainAdapterSource) Observe(ctx context.Context, chain domain.ChainID) (syncer.ChainObservation, error) {
	adapter, ok := s.byChain[chain]
	if !ok {
		return syncer.ChainObservation{}, fmt.Errorf("no chain adapter registered for %s", chain)
	}
	height, finalized, err := adapter.BlockHeight(ctx)
	if err != nil {
		return syncer.ChainObservation{}, err
	}
	gas, err := adapter.GasPrice(ctx)
	if err != nil {
		return syncer.ChainObservation{}, err
	}
	state := domain.ChainState{
		Chain:           chain,
		BlockHeight:     height,
		FinalizedHeight: finalized,
		GasPrice:        gas,
		LastUpdate:      time.Now(),
		Status:          domain.ChainHealthy,
	}
	return syncer.ChainObservation{Chain: chain, State: state, StateHash: syncer.StateHash(state)}, nil
}

// satellite bundles every constructed component and the loops that drive
// them.
type satellite struct {
	logger      *logx.Logger
	cfg         *config.Config
	metrics     *metrics.Registry
	cache       *chainstate.Cache
	assets      *assetmap.Mapper
	prices      *pricefeed.Bus
	bridges     *bridgemonitor.Monitor
	risk        *riskassessor.Assessor
	detector    *arbitrage.Detector
	validator   *arbitrage.Validator
	analyzer    *arbitrage.Analyzer
	evaluator   *arbitrage.Evaluator
	optimizer   *liquidity.Optimizer
	planner     *rebalancer.Planner
	coordinator *portfolio.Coordinator
	synchro     *syncer.Synchronizer
	bus         *eventbus.Bus
	audit       auditlog.Writer

	privateSubmissionBridges map[domain.BridgeID]bool
}

func build(logger *logx.Logger, cfg *config.Config, reg *metrics.Registry, audit auditlog.Writer) (*satellite, error) {
	chainConfigs := make([]domain.ChainConfig, 0, len(cfg.Chains))
	chainIDs := make([]domain.ChainID, 0, len(cfg.Chains))
	chainAdapters := make(map[domain.ChainID]adapters.ChainAdapter, len(cfg.Chains))
	for _, c := range cfg.Chains {
		dc := domain.ChainConfig{
			ID:             domain.ChainID(c.ID),
			Name:           c.Name,
			RPCEndpoint:    c.RPCEndpoint,
			GasToken:       c.GasToken,
			BlockTime:      c.BlockTime,
			FinalityDepth:  c.FinalityDepth,
			NativeDecimals: c.NativeDecimals,
		}
		chainConfigs = append(chainConfigs, dc)
		chainIDs = append(chainIDs, dc.ID)
		chainAdapters[dc.ID] = adapters.NewInMemoryChain(dc.ID, 0, 0, 0)
	}

	cache := chainstate.New(logger, chainConfigs)
	assets := assetmap.New()
	prices := pricefeed.New(cfg.Validation.MaxPriceAge)

	bridgeIDs := make([]domain.BridgeID, 0, len(cfg.Bridges))
	bridgesByChain := map[domain.ChainID][]domain.BridgeID{}
	for _, b := range cfg.Bridges {
		id := domain.BridgeID(b.ID)
		bridgeIDs = append(bridgeIDs, id)
		for _, chainID := range b.SupportedChains {
			cid := domain.ChainID(chainID)
			bridgesByChain[cid] = append(bridgesByChain[cid], id)
		}
	}
	bridgeMonitor := bridgemonitor.New(logger, bridgeIDs, cfg.Monitoring.AlertRetention)

	riskInputs := riskassessor.NewLiveInputs(cache, bridgeMonitor, bridgesByChain)
	risk := riskassessor.New(logger, riskInputs)

	bridgeConfigs := make([]domain.BridgeConfig, 0, len(cfg.Bridges))
	for _, b := range cfg.Bridges {
		supportedChains := make(map[domain.ChainID]bool, len(b.SupportedChains))
		for _, c := range b.SupportedChains {
			supportedChains[domain.ChainID(c)] = true
		}
		supportedAssets := make(map[domain.AssetID]bool, len(b.SupportedAssets))
		for _, a := range b.SupportedAssets {
			supportedAssets[domain.AssetID(a)] = true
		}
		bridgeConfigs = append(bridgeConfigs, domain.BridgeConfig{
			ID:                domain.BridgeID(b.ID),
			Name:              b.Name,
			SupportedChains:   supportedChains,
			SupportedAssets:   supportedAssets,
			FeeBase:           b.FeeBase,
			FeeVariable:       b.FeeVariable,
			PrivateSubmission: b.PrivateSubmission,
		})
	}
	wrappedBridges := make([]bridgeWrapper, 0, len(bridgeConfigs))
	bridgeRoutes := make([]arbitrage.BridgeRoute, 0, len(bridgeConfigs))
	for _, bc := range bridgeConfigs {
		w := bridgeWrapper{cfg: bc, monitor: bridgeMonitor, risk: risk}
		wrappedBridges = append(wrappedBridges, w)
		bridgeRoutes = append(bridgeRoutes, w)
	}

	thresholds := arbitrage.Thresholds{
		MinProfitThreshold:    cfg.Arbitrage.MinProfitThreshold,
		MaxRiskScore:          cfg.Arbitrage.MaxRiskScore,
		MaxSlippage:           cfg.Validation.MaxSlippageTolerance,
		MinLiquidityUSD:       cfg.Validation.MinLiquidityUSD,
		ReferenceTradeSizeUSD: cfg.Arbitrage.ReferenceTradeSizeUSD,
	}

	privateSubmissionBridges := make(map[domain.BridgeID]bool, len(bridgeConfigs))
	for _, bc := range bridgeConfigs {
		privateSubmissionBridges[bc.ID] = bc.PrivateSubmission
	}
	detector := arbitrage.New(logger, prices, cache, bridgeRoutes, arbitrage.ProfileDefault, thresholds, cfg.Validation.MaxPriceAge)
	validator := arbitrage.NewValidator(bridgeMonitor, arbitrage.ProfileDefault, thresholds, cfg.Validation.MaxPriceAge,
		cfg.Validation.MEVProtectionThresholdUSD, cfg.Security.MaxTransactionValueUSD, cfg.Validation.SimulationGasBuffer)
	analyzer := arbitrage.NewAnalyzer()
	evaluator := arbitrage.NewEvaluator()

	optimizer := liquidity.New(liquidity.Constraints{
		MaxChainConcentration:  cfg.Liquidity.MaxChainConcentration,
		MaxAssetConcentration:  cfg.Liquidity.MaxAssetConcentration,
		MinAssetLiquidityFrac:  cfg.Liquidity.MinAssetLiquidityFrac,
		MaxCrossBridgeExposure: cfg.Liquidity.MaxCrossBridgeExposure,
		MinUtilization:         cfg.Liquidity.MinUtilization,
		MaxUtilization:         cfg.Liquidity.MaxUtilization,
	})
	planner := rebalancer.New(logger, cfg.Validation.MaxSlippageTolerance, cfg.Security.MaxTransactionValueUSD)

	source := &bridgeSource{bridges: wrappedBridges}
	coordinator := portfolio.New(logger, cfg.Coordinator.MaxConcurrentTransactions, optimizer, planner, source, nil, nil)

	chainSource := &chainAdapterSource{byChain: chainAdapters}
	synchro := syncer.New(logger, chainIDs, chainSource, cache, cfg.Sync.MinChainsForOperation, cfg.Sync.MinConsensusThreshold)

	bus := eventbus.New(64)

	return &satellite{
		logger:      logger,
		cfg:         cfg,
		metrics:     reg,
		cache:       cache,
		assets:      assets,
		prices:      prices,
		bridges:     bridgeMonitor,
		risk:        risk,
		detector:    detector,
		validator:   validator,
		analyzer:    analyzer,
		evaluator:   evaluator,
		optimizer:   optimizer,
		planner:     planner,
		coordinator: coordinator,
		synchro:     synchro,
		bus:         bus,
		audit:       audit,

		privateSubmissionBridges: privateSubmissionBridges,
	}, nil
}

// run starts every background loop and returns immediately; loops exit
// when ctx is cancelled.
func (s *satellite) run(ctx context.Context) {
	go s.syncLoop(ctx)
	go s.riskLoop(ctx)
	go s.detectionLoop(ctx)
}

func (s *satellite) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Sync.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			state, err := s.synchro.Sync(ctx, nil)
			s.metrics.SyncDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				s.logger.Warn("sync pass failed", zap.Error(err))
				continue
			}
			for _, conflict := range state.Conflicts {
				if !conflict.Resolved {
					s.bus.Publish(eventbus.SyncAnomaly{State: state, Reason: "unresolved conflict: " + conflict.Fact, Timestamp: time.Now()})
				}
			}
		}
	}
}

func (s *satellite) riskLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Risk.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, chain := range s.cfg.Chains {
				id := domain.ChainID(chain.ID)
				prev, had := s.risk.Latest(id)
				score := s.risk.Assess(id)
				if had && prev.Level != score.Level {
					s.metrics.RiskAlertsTotal.WithLabelValues(string(score.Level)).Inc()
				}
			}
		}
	}
}

func (s *satellite) detectionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Monitoring.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *satellite) scanOnce(ctx context.Context) {
	for _, asset := range s.prices.Assets() {
		if !s.detector.ShouldScan(asset) {
			continue
		}
		start := time.Now()
		opportunities, err := s.detector.Scan(asset)
		s.metrics.DetectionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			s.logger.Warn("detection scan failed", zap.String("asset", string(asset)), zap.Error(err))
			continue
		}
		for _, opp := range opportunities {
			s.metrics.OpportunitiesTotal.Inc()
			s.bus.Publish(eventbus.OpportunityDetected{Opportunity: opp, Timestamp: time.Now()})
			if err := s.audit.Append(ctx, "opportunity", map[string]any{
				"id": opp.ID, "asset": string(opp.Asset), "source_chain": string(opp.SourceChain),
				"target_chain": string(opp.TargetChain), "net_profit": opp.NetProfit.String(),
			}); err != nil {
				s.logger.Warn("audit append failed", zap.Error(err))
			}
			s.evaluateOpportunity(opp)
		}
	}
}

func (s *satellite) evaluateOpportunity(opp domain.ArbitrageOpportunity) {
	if len(opp.ExecutionPaths) == 0 {
		return
	}
	path := opp.ExecutionPaths[0]
	hasPrivateSubmission := s.privateSubmissionBridges[arbitrage.BridgeIDFromPath(path)]
	validation := s.validator.Validate(opp, s.cfg.Validation.MaxSlippageTolerance, hasPrivateSubmission)

	resources := arbitrage.Resources{
		AvailableCapitalUSD:   s.cfg.Security.MaxTransactionValueUSD,
		AvailableGasUSD:       s.cfg.Security.MaxTransactionValueUSD * 0.01,
		AvailableLiquidityUSD: s.cfg.Validation.MinLiquidityUSD,
	}
	chainHealth := make([]arbitrage.ChainHealth, 0, len(s.cfg.Chains))
	for chain, st := range s.cache.SnapshotAll() {
		chainHealth = append(chainHealth, arbitrage.ChainHealth{
			Chain:       chain,
			HealthScore: float64(st.HealthScore),
			Criticality: arbitrage.CriticalityImportant,
		})
	}
	feasibility := s.analyzer.Analyze(opp, path, resources, time.Duration(opp.ExecutionTimeS*float64(time.Second)), chainHealth)

	evaluation := s.evaluator.Evaluate(opp, validation, feasibility)
	s.bus.Publish(eventbus.OpportunityEvaluated{Opportunity: opp, Evaluation: evaluation, Timestamp: time.Now()})
}
