package supervisor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/config"
	"github.com/wonjunchoi-arc/blind-sub000/internal/metrics"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// Controller 驱动 Supervisor → Worker → Evaluator 状态机.
type Controller struct {
	registry    *Registry
	router      Router
	evaluator   Evaluator
	checkpoints CheckpointStore
	cfg         config.SupervisorConfig
	logger      *zap.Logger
	collector   *metrics.Collector
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithCheckpointStore 挂接检查点存储.
func WithCheckpointStore(store CheckpointStore) ControllerOption {
	return func(c *Controller) { c.checkpoints = store }
}

// WithControllerMetrics 挂接指标收集器.
func WithControllerMetrics(m *metrics.Collector) ControllerOption {
	return func(c *Controller) { c.collector = m }
}

// NewController 创建状态机控制器.
func NewController(registry *Registry, router Router, evaluator Evaluator, cfg config.SupervisorConfig, logger *zap.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		registry:  registry,
		router:    router,
		evaluator: evaluator,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "supervisor")),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.checkpoints == nil {
		c.checkpoints = NewMemoryCheckpointStore(logger)
	}
	return c
}

// RunResult 一次会话的最终产出.
type RunResult struct {
	SessionID string          `json:"session_id"`
	Answer    string          `json:"answer"`
	Worker    string          `json:"worker"`
	Verdict   *types.Verdict  `json:"verdict,omitempty"`
	Retries   int             `json:"retries"`
	Messages  []types.Message `json:"messages"`
	Elapsed   time.Duration   `json:"elapsed"`
}

// Run 处理一个问题直至终止。
//
// 路由恰好选中一个 worker；之后的重试都打给同一个 worker，
// 重试轮的任务描述是原问题加第一条净化过的改进建议。worker
// 总调用数不超过 max_retry_count+1。worker 报错回到 supervisor
// 裁决，不经过评估器。终止前清除消息序列里的评估器判定.
func (c *Controller) Run(ctx context.Context, question, sessionID string) (*RunResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, types.ErrEmptyQuery
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	state := NewState(sessionID, question)
	c.save(ctx, state)

	// 路由决策：恰好一个 worker
	rctx, cancel := c.nodeCtx(ctx)
	name, err := c.router.Route(rctx, question, c.registry.Names())
	cancel()
	if err != nil {
		return nil, err
	}
	worker, err := c.registry.Get(name)
	if err != nil {
		return nil, err
	}
	state.Worker = name
	state.Append(types.NewToolMessage("supervisor", "handoff to "+name))
	c.save(ctx, state)

	start := time.Now()
	for attempt := 0; ; attempt++ {
		state.Phase = PhaseWorker
		wctx, cancel := c.nodeCtx(ctx)
		answer, _, err := worker.Execute(wctx, state.TaskDescription)
		cancel()
		if err != nil {
			// worker 报错回 supervisor，不进评估器
			state.Phase = PhaseSupervisor
			state.WorkerErr = err.Error()
			state.Append(types.NewToolMessage("supervisor", "worker error: "+err.Error()))
			c.logger.Warn("worker failed",
				zap.String("worker", name),
				zap.Int("attempt", attempt),
				zap.Error(err))
			c.save(ctx, state)

			if attempt >= c.cfg.MaxRetryCount {
				return c.finish(ctx, state, start), types.ErrNoResponse
			}
			state.RetryCount++
			c.collector.Retry(name)
			continue
		}

		state.WorkerErr = ""
		state.LastAnswer = answer
		state.Append(types.NewAssistantMessage(name, answer))
		c.save(ctx, state)

		state.Phase = PhaseEvaluator
		ectx, cancel := c.nodeCtx(ctx)
		verdict := c.evaluator.Evaluate(ectx, question, answer)
		cancel()
		state.LastVerdict = &verdict
		state.Append(types.NewToolMessage("quality_evaluator", verdict.Marshal()))
		c.save(ctx, state)

		state.Phase = PhaseSupervisor
		if verdict.ShouldRetry && attempt < c.cfg.MaxRetryCount {
			state.RetryCount++
			state.TaskDescription = BuildRetryDescription(question, verdict)
			c.collector.Retry(name)
			c.logger.Info("quality retry",
				zap.String("worker", name),
				zap.Int("retry", state.RetryCount),
				zap.Float64("score", verdict.OverallScore))
			c.save(ctx, state)
			continue
		}

		result := c.finish(ctx, state, start)
		return result, nil
	}
}

// finish 终止会话：清除评估器消息、落盘终态.
func (c *Controller) finish(ctx context.Context, state *State, start time.Time) *RunResult {
	state.ScrubEvaluatorMessages()
	state.Phase = PhaseDone
	c.save(ctx, state)

	elapsed := time.Since(start)
	c.logger.Info("session finished",
		zap.String("session_id", state.SessionID),
		zap.String("worker", state.Worker),
		zap.Int("retries", state.RetryCount),
		zap.Duration("elapsed", elapsed))

	return &RunResult{
		SessionID: state.SessionID,
		Answer:    state.LastAnswer,
		Worker:    state.Worker,
		Verdict:   state.LastVerdict,
		Retries:   state.RetryCount,
		Messages:  state.Messages,
		Elapsed:   elapsed,
	}
}

// History 返回会话的检查点历史.
func (c *Controller) History(ctx context.Context, sessionID string) ([]*State, error) {
	return c.checkpoints.History(ctx, sessionID)
}

// nodeCtx 给单次节点外呼套上超时；未配置超时则原样透传.
func (c *Controller) nodeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.NodeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.NodeTimeout)
}

func (c *Controller) save(ctx context.Context, state *State) {
	if err := c.checkpoints.Save(ctx, state); err != nil {
		c.logger.Warn("checkpoint save failed",
			zap.String("session_id", state.SessionID), zap.Error(err))
	}
}
