package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kieranvance/pulsetrader/internal/agent"
	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

// Cadences maps each timeframe to how often its tick fires.
type Cadences map[models.Timeframe]time.Duration

// TimeframeWorker is one timeframe's tick, satisfying pkg/worker.Worker:
// run C6's pipeline, then feed what it computed into C10's agent cycle.
// cmd/pipeline registers one of these per timeframe on a worker.WorkerGroup.
type TimeframeWorker struct {
	timeframe models.Timeframe
	pipeline  *Runner
	agents    *agent.Runner
}

// NewTimeframeWorker builds the tick for one timeframe.
func NewTimeframeWorker(timeframe models.Timeframe, pipeline *Runner, agents *agent.Runner) *TimeframeWorker {
	return &TimeframeWorker{timeframe: timeframe, pipeline: pipeline, agents: agents}
}

// Name identifies this worker in pkg/worker's start/stop logging.
func (w *TimeframeWorker) Name() string {
	return fmt.Sprintf("pipeline-%s", w.timeframe)
}

// Run executes one pipeline run for this timeframe, then an agent cycle
// over whatever symbols it computed.
func (w *TimeframeWorker) Run(ctx context.Context) error {
	summary, err := w.pipeline.Run(ctx, w.timeframe)
	if err != nil {
		return fmt.Errorf("pipeline run for %s: %w", w.timeframe, err)
	}
	if summary == nil {
		return nil
	}

	candles := make(map[string]agent.CandleData, len(summary.Symbols))
	for _, sym := range summary.Symbols {
		candles[sym.Symbol] = agent.CandleData{Close: sym.Close, High: sym.High, Low: sym.Low}
	}

	results, err := w.agents.Run(ctx, w.timeframe, candles)
	if err != nil {
		return fmt.Errorf("agent cycle for %s: %w", w.timeframe, err)
	}
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("agent cycle produced an error",
				zap.Int("agent_id", r.AgentID), zap.String("timeframe", string(w.timeframe)), zap.Error(r.Err))
		}
	}
	return nil
}
