// Package portfolio implements PortfolioCoordinator (spec §4.12): the sole
// owner of AssetPositions and CoordinatedTransactions, and the only
// component allowed to mutate a position's lock or a transaction's state.
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brdgsat/satellite/internal/domain"
	"github.com/brdgsat/satellite/internal/liquidity"
	"github.com/brdgsat/satellite/internal/rebalancer"
	"github.com/brdgsat/satellite/pkg/errs"
	"github.com/brdgsat/satellite/pkg/logx"
	"github.com/brdgsat/satellite/pkg/money"
	"github.com/brdgsat/satellite/pkg/retry"
)

// TxKind enumerates CoordinatedTransaction kinds (spec §3).
type TxKind string

const (
	TxRebalance    TxKind = "rebalance"
	TxArbitrage    TxKind = "arbitrage"
	TxEmergency    TxKind = "emergency"
	TxOptimization TxKind = "optimization"
)

// TxState is CoordinatedTransaction's state machine (spec §4.12): monotonic
// except that failed is terminal and never reanimates.
type TxState string

const (
	TxPending      TxState = "pending"
	TxCoordinating TxState = "coordinating"
	TxExecuting    TxState = "executing"
	TxCompleted    TxState = "completed"
	TxFailed       TxState = "failed"
)

// Status is the coordinator's own lifecycle, distinct from any single
// transaction's state (spec §4.12 emergency_stop).
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// AssetPosition is exclusively owned by the Coordinator; every other
// component reads a snapshot via GetPortfolio (spec §3).
type AssetPosition struct {
	Chain      domain.ChainID
	Asset      domain.AssetID
	Balance    money.Amount
	ValueUSD   money.Amount
	IsLocked   bool
	PendingOps []string
	LastUpdate time.Time
}

// CoordinatedTransaction is the Coordinator's unit of coordinated work
// (spec §3/§4.12).
type CoordinatedTransaction struct {
	ID           string
	Kind         TxKind
	Chains       []domain.ChainID
	Assets       []domain.AssetID
	Priority     domain.Priority
	State        TxState
	Transactions []rebalancer.OpResult
	RollbackPlan *rebalancer.Plan
	CreatedAt    time.Time
	StartedAt    time.Time
	EndedAt      time.Time
}

// RiskLimitKind enumerates the kinds of limit the coordinator enforces
// before letting a transaction enter executing (spec §3).
type RiskLimitKind string

const (
	RiskLimitChainExposure      RiskLimitKind = "chain_exposure"
	RiskLimitAssetConcentration RiskLimitKind = "asset_concentration"
	RiskLimitBridgeUsage        RiskLimitKind = "bridge_usage"
	RiskLimitTxSize             RiskLimitKind = "tx_size"
)

// RiskLimit is a first-class type in this package (SPEC_FULL.md §3 add):
// the distilled spec describes it narratively; the Coordinator owns its
// lifecycle since it is the component that checks it before execution.
type RiskLimit struct {
	Kind         RiskLimitKind
	Scope        string
	MaxFraction  *float64
	MaxAbsolute  *money.Amount
	CurrentValue float64
	Violated     bool
}

// Portfolio is the derived, cached view GetPortfolio returns (spec §4.12,
// cached ≤30s).
type Portfolio struct {
	Positions     []AssetPosition
	TotalValueUSD money.Amount
	AsOf          time.Time
}

// BridgeSource supplies the bridge candidates a rebalance can route
// through for a given asset, kept as an interface so the coordinator
// never imports a concrete bridge registry.
type BridgeSource interface {
	Candidates(asset domain.AssetID) []rebalancer.BridgeCandidate
}

// StepExecuteFunc drives one ExecutionStep against the real chain/bridge
// adapters; supplied by the caller so this package stays free of any
// direct RPC dependency (mirrors rebalancer.ExecuteFunc).
type StepExecuteFunc func(ctx context.Context, step domain.ExecutionStep) error

type positionKey struct {
	chain domain.ChainID
	asset domain.AssetID
}

type queuedTx struct {
	tx    *CoordinatedTransaction
	ready chan struct{}
}

// Coordinator is PortfolioCoordinator.
type Coordinator struct {
	logger *logx.Logger

	mu         sync.Mutex
	positions  map[positionKey]*AssetPosition
	locks      map[positionKey]string
	riskLimits []RiskLimit

	maxConcurrent int
	active        int
	queue         []*queuedTx
	status        Status

	cachedPortfolio *Portfolio
	cacheTTL        time.Duration

	optimizer *liquidity.Optimizer
	planner   *rebalancer.Planner
	bridges   BridgeSource
}

// New constructs a Coordinator over an initial set of positions.
func New(logger *logx.Logger, maxConcurrentTransactions int, optimizer *liquidity.Optimizer, planner *rebalancer.Planner, bridges BridgeSource, riskLimits []RiskLimit, initial []AssetPosition) *Coordinator {
	positions := make(map[positionKey]*AssetPosition, len(initial))
	for i := range initial {
		p := initial[i]
		positions[positionKey{p.Chain, p.Asset}] = &p
	}
	return &Coordinator{
		logger:        logger.Named("portfolio-coordinator"),
		positions:     positions,
		locks:         make(map[positionKey]string),
		riskLimits:    riskLimits,
		maxConcurrent: maxConcurrentTransactions,
		status:        StatusRunning,
		cacheTTL:      30 * time.Second,
		optimizer:     optimizer,
		planner:       planner,
		bridges:       bridges,
	}
}

// GetPortfolio returns the derived Portfolio, recomputed only if the cache
// has gone stale (spec §4.12, cached ≤30s).
func (c *Coordinator) GetPortfolio() Portfolio {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachedPortfolio != nil && time.Since(c.cachedPortfolio.AsOf) < c.cacheTTL {
		return *c.cachedPortfolio
	}

	positions := make([]AssetPosition, 0, len(c.positions))
	total := money.Zero
	for _, p := range c.positions {
		positions = append(positions, *p)
		total = total.Add(p.ValueUSD)
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Chain != positions[j].Chain {
			return positions[i].Chain < positions[j].Chain
		}
		return positions[i].Asset < positions[j].Asset
	})

	portfolio := Portfolio{Positions: positions, TotalValueUSD: total, AsOf: time.Now()}
	c.cachedPortfolio = &portfolio
	return portfolio
}

func (c *Coordinator) invalidateCache() {
	c.cachedPortfolio = nil
}

func (c *Coordinator) newTransaction(kind TxKind, chains []domain.ChainID, assets []domain.AssetID, priority domain.Priority) *CoordinatedTransaction {
	return &CoordinatedTransaction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Chains:    chains,
		Assets:    assets,
		Priority:  priority,
		State:     TxPending,
		CreatedAt: time.Now(),
	}
}

func (c *Coordinator) setState(tx *CoordinatedTransaction, state TxState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tx.State == TxFailed {
		return // failed is terminal; never reanimates (spec §4.12)
	}
	tx.State = state
	switch state {
	case TxCoordinating:
		tx.StartedAt = time.Now()
	case TxCompleted, TxFailed:
		tx.EndedAt = time.Now()
	}
}

// admit enforces the concurrency ceiling and FIFO queue with critical
// pre-emption (spec §4.12): a critical-priority transaction jumps to the
// front of the wait queue; all others queue in arrival order.
func (c *Coordinator) admit(ctx context.Context, tx *CoordinatedTransaction) error {
	c.mu.Lock()
	if c.status == StatusStopped {
		c.mu.Unlock()
		return errs.New(errs.ResourceBusy, "coordinator is stopped: refusing new work")
	}
	if c.active < c.maxConcurrent {
		c.active++
		c.mu.Unlock()
		return nil
	}
	q := &queuedTx{tx: tx, ready: make(chan struct{})}
	if tx.Priority == domain.PriorityCritical {
		c.queue = append([]*queuedTx{q}, c.queue...)
	} else {
		c.queue = append(c.queue, q)
	}
	c.mu.Unlock()

	select {
	case <-q.ready:
		c.mu.Lock()
		cancelled := q.tx.State == TxFailed
		c.mu.Unlock()
		if cancelled {
			return errs.New(errs.ResourceBusy, "coordinator stopped while transaction was queued")
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		c.dequeue(q)
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *Coordinator) dequeue(q *queuedTx) {
	for i, item := range c.queue {
		if item == q {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

// release frees one concurrency slot and promotes the next queued
// transaction, if the coordinator isn't stopped.
func (c *Coordinator) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active--
	if c.status == StatusStopped {
		return
	}
	if len(c.queue) > 0 && c.active < c.maxConcurrent {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.active++
		close(next.ready)
	}
}

// lockPositions locks every key for txID, all-or-nothing: if any key is
// already held by a different transaction the whole request fails fast
// with ResourceBusy rather than partially locking (spec §8 property 2,
// lock exclusivity).
func (c *Coordinator) lockPositions(txID string, keys []positionKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		if owner, locked := c.locks[k]; locked && owner != txID {
			return errs.New(errs.ResourceBusy, fmt.Sprintf("position %s/%s is locked by another transaction", k.chain, k.asset))
		}
	}
	for _, k := range keys {
		c.locks[k] = txID
		if p, ok := c.positions[k]; ok {
			p.IsLocked = true
			p.PendingOps = append(p.PendingOps, txID)
		}
	}
	c.invalidateCache()
	return nil
}

func (c *Coordinator) unlockPositions(txID string, keys []positionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		if c.locks[k] == txID {
			delete(c.locks, k)
		}
		if p, ok := c.positions[k]; ok {
			p.IsLocked = false
			p.PendingOps = removeString(p.PendingOps, txID)
		}
	}
	c.invalidateCache()
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// checkRiskLimits blocks entry into executing while any RiskLimit is
// Violated (spec §8 property 5, risk ceiling).
func (c *Coordinator) checkRiskLimits() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rl := range c.riskLimits {
		if rl.Violated {
			return errs.New(errs.RiskLimitViolated, fmt.Sprintf("risk limit %s/%s is violated", rl.Kind, rl.Scope))
		}
	}
	return nil
}

// applyMove updates in-memory position balances to reflect one executed
// rebalancer move.
func (c *Coordinator) applyMove(mv liquidity.Move) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := positionKey{mv.FromChain, mv.Asset}
	to := positionKey{mv.ToChain, mv.Asset}
	now := time.Now()

	if p, ok := c.positions[from]; ok {
		p.ValueUSD = p.ValueUSD.Sub(mv.AmountUSD)
		p.LastUpdate = now
	}
	if p, ok := c.positions[to]; ok {
		p.ValueUSD = p.ValueUSD.Add(mv.AmountUSD)
		p.LastUpdate = now
	} else {
		c.positions[to] = &AssetPosition{Chain: mv.ToChain, Asset: mv.Asset, ValueUSD: mv.AmountUSD, LastUpdate: now}
	}
	c.invalidateCache()
}

// Rebalance constructs a plan via LiquidityOptimizer, validates it against
// RiskLimits, and runs it via ExecutionPlanner (spec §4.12).
func (c *Coordinator) Rebalance(ctx context.Context, target map[domain.ChainID]float64) (*CoordinatedTransaction, error) {
	portfolio := c.GetPortfolio()
	positions := make([]liquidity.Position, len(portfolio.Positions))
	for i, p := range portfolio.Positions {
		positions[i] = liquidity.Position{Chain: p.Chain, Asset: p.Asset, ValueUSD: p.ValueUSD}
	}

	plan := c.optimizer.Optimize(positions, target)

	chains, assets := chainsAndAssets(plan.Moves)
	tx := c.newTransaction(TxRebalance, chains, assets, domain.PriorityMedium)

	if err := c.admit(ctx, tx); err != nil {
		return tx, err
	}
	defer c.release()

	c.setState(tx, TxCoordinating)

	if len(plan.Moves) == 0 {
		c.setState(tx, TxCompleted)
		return tx, nil
	}

	keys := positionKeysFor(plan.Moves)
	if err := c.lockPositions(tx.ID, keys); err != nil {
		c.setState(tx, TxFailed)
		return tx, err
	}
	defer c.unlockPositions(tx.ID, keys)

	if err := c.checkRiskLimits(); err != nil {
		c.setState(tx, TxFailed)
		return tx, err
	}

	var candidates []rebalancer.BridgeCandidate
	if c.bridges != nil {
		for _, mv := range plan.Moves {
			candidates = append(candidates, c.bridges.Candidates(mv.Asset)...)
		}
	}
	execPlan, err := c.planner.Plan(plan.Moves, candidates)
	if err != nil {
		c.setState(tx, TxFailed)
		return tx, err
	}
	tx.RollbackPlan = &execPlan

	c.setState(tx, TxExecuting)

	results, err := c.planner.Run(ctx, execPlan, func(ctx context.Context, op rebalancer.Op) error {
		c.applyMove(op.Move)
		return nil
	})
	tx.Transactions = results
	if err != nil {
		c.setState(tx, TxFailed)
		return tx, err
	}

	c.setState(tx, TxCompleted)
	return tx, nil
}

func chainsAndAssets(moves []liquidity.Move) ([]domain.ChainID, []domain.AssetID) {
	chainSeen := map[domain.ChainID]bool{}
	assetSeen := map[domain.AssetID]bool{}
	var chains []domain.ChainID
	var assets []domain.AssetID
	for _, mv := range moves {
		if !chainSeen[mv.FromChain] {
			chainSeen[mv.FromChain] = true
			chains = append(chains, mv.FromChain)
		}
		if !chainSeen[mv.ToChain] {
			chainSeen[mv.ToChain] = true
			chains = append(chains, mv.ToChain)
		}
		if !assetSeen[mv.Asset] {
			assetSeen[mv.Asset] = true
			assets = append(assets, mv.Asset)
		}
	}
	return chains, assets
}

func positionKeysFor(moves []liquidity.Move) []positionKey {
	seen := map[positionKey]bool{}
	var keys []positionKey
	for _, mv := range moves {
		for _, k := range [2]positionKey{{mv.FromChain, mv.Asset}, {mv.ToChain, mv.Asset}} {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// ArbitrageExecution is ExecuteArbitrage's result.
type ArbitrageExecution struct {
	TransactionID  string
	Opportunity    domain.ArbitrageOpportunity
	SizedAmountUSD money.Amount
	Steps          []StepResult
	State          TxState
}

// StepResult is the outcome of one ExecutionStep.
type StepResult struct {
	StepID  string
	Success bool
	Err     error
}

// ExecuteArbitrage sizes, locks, and drives execution of one
// ArbitrageOpportunity (spec §4.12): the sized amount is the minimum of 5%
// of portfolio value, 10x expected profit, and a risk-based cap.
func (c *Coordinator) ExecuteArbitrage(ctx context.Context, opp domain.ArbitrageOpportunity, maxSize money.Amount, exec StepExecuteFunc) (ArbitrageExecution, error) {
	portfolio := c.GetPortfolio()
	sized := sizePosition(portfolio.TotalValueUSD, opp, maxSize)

	priority := domain.PriorityMedium
	if opp.RiskScore >= 70 {
		priority = domain.PriorityHigh
	}
	tx := c.newTransaction(TxArbitrage, []domain.ChainID{opp.SourceChain, opp.TargetChain}, []domain.AssetID{opp.Asset}, priority)
	result := ArbitrageExecution{TransactionID: tx.ID, Opportunity: opp, SizedAmountUSD: sized}

	if err := c.admit(ctx, tx); err != nil {
		return result, err
	}
	defer c.release()

	c.setState(tx, TxCoordinating)

	keys := []positionKey{{opp.SourceChain, opp.Asset}, {opp.TargetChain, opp.Asset}}
	if err := c.lockPositions(tx.ID, keys); err != nil {
		c.setState(tx, TxFailed)
		result.State = TxFailed
		return result, err
	}
	defer c.unlockPositions(tx.ID, keys)

	if err := c.checkRiskLimits(); err != nil {
		c.setState(tx, TxFailed)
		result.State = TxFailed
		return result, err
	}

	if len(opp.ExecutionPaths) == 0 {
		c.setState(tx, TxFailed)
		result.State = TxFailed
		return result, errs.New(errs.NoPath, "opportunity has no execution path to run")
	}

	c.setState(tx, TxExecuting)

	path := opp.ExecutionPaths[0]
	stages, err := stageSteps(path.Steps)
	if err != nil {
		c.setState(tx, TxFailed)
		result.State = TxFailed
		return result, err
	}

	var steps []StepResult
	succeeded := 0
	for _, stage := range stages {
		for _, step := range stage {
			stepErr := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
				return exec(ctx, step)
			})
			steps = append(steps, StepResult{StepID: step.ID, Success: stepErr == nil, Err: stepErr})
			if stepErr == nil {
				succeeded++
			}
		}
	}
	result.Steps = steps

	if succeeded < len(path.Steps) {
		c.setState(tx, TxFailed)
		result.State = TxFailed
		return result, errs.New(errs.DeadlineExceeded, "arbitrage execution path did not complete")
	}

	c.setState(tx, TxCompleted)
	result.State = TxCompleted
	return result, nil
}

// sizePosition caps an arbitrage's execution amount at the minimum of 5%
// of portfolio value, 10x expected profit, and a risk-based cap that
// shrinks as RiskScore rises, then applies any caller-supplied ceiling
// (spec §4.12 sizing).
func sizePosition(totalValueUSD money.Amount, opp domain.ArbitrageOpportunity, maxSize money.Amount) money.Amount {
	portfolioCap := totalValueUSD.Mul(money.FromFloat(0.05))
	profitCap := opp.ExpectedProfit.Mul(money.FromFloat(10))
	riskCap := riskBasedCap(totalValueUSD, opp.RiskScore)

	size := portfolioCap
	if profitCap.LessThan(size) {
		size = profitCap
	}
	if riskCap.LessThan(size) {
		size = riskCap
	}
	if maxSize.Sign() > 0 && maxSize.LessThan(size) {
		size = maxSize
	}
	if size.Sign() < 0 {
		return money.Zero
	}
	return size
}

func riskBasedCap(total money.Amount, riskScore float64) money.Amount {
	frac := 0.05 * (1 - riskScore/100)
	if frac < 0.01 {
		frac = 0.01
	}
	return total.Mul(money.FromFloat(frac))
}

// stageSteps topologically sorts an ExecutionPath's steps into
// dependency-respecting stages, the same Kahn's-algorithm shape
// rebalancer.stageOps uses for liquidity moves, applied here to
// ExecutionSteps so independent steps within one transaction may
// complete out of order (spec §5 ordering guarantees).
func stageSteps(steps []domain.ExecutionStep) ([][]domain.ExecutionStep, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	byID := make(map[string]domain.ExecutionStep, len(steps))
	remaining := make(map[string][]string, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		remaining[s.ID] = append([]string(nil), s.Dependencies...)
	}

	var stages [][]domain.ExecutionStep
	done := make(map[string]bool, len(steps))
	for len(done) < len(steps) {
		var ready []string
		for id, deps := range remaining {
			if done[id] {
				continue
			}
			allResolved := true
			for _, dep := range deps {
				if !done[dep] {
					allResolved = false
					break
				}
			}
			if allResolved {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, errs.New(errs.InvariantViolated, "execution path has a dependency cycle")
		}
		sort.Strings(ready)

		var stage []domain.ExecutionStep
		for _, id := range ready {
			stage = append(stage, byID[id])
			done[id] = true
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// EmergencyStop moves the coordinator to stopped at once, so admit refuses
// new work, and fails every queued transaction (its admit call returns
// ResourceBusy). It then waits up to 60s, or until ctx is done, for
// already-admitted transactions to release their slots. Admitted
// transactions, whether coordinating or executing, are not cancelled: they
// run on the caller's own goroutine via Rebalance/ExecuteArbitrage and
// finish on their own.
func (c *Coordinator) EmergencyStop(ctx context.Context, reason string) error {
	c.mu.Lock()
	c.status = StatusStopped
	for _, q := range c.queue {
		q.tx.State = TxFailed
		q.tx.EndedAt = time.Now()
		close(q.ready)
	}
	c.queue = nil
	active := c.active
	c.mu.Unlock()

	c.logger.Warn("emergency stop requested", zap.String("reason", reason))

	if active == 0 {
		return nil
	}
	deadline := time.NewTimer(60 * time.Second)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline.C:
			return errs.New(errs.DeadlineExceeded, "emergency stop timed out waiting for executing transactions")
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.mu.Lock()
			remaining := c.active
			c.mu.Unlock()
			if remaining == 0 {
				return nil
			}
		}
	}
}

// Resume transitions the coordinator back to running after an
// EmergencyStop, accepting new work again.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusRunning
}

// StatusOf reports the coordinator's own running/stopped lifecycle.
func (c *Coordinator) StatusOf() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
