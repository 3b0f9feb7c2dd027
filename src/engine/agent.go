package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"guardian-agent/src/broker"
	"guardian-agent/src/contracts"
	"guardian-agent/src/logger"
)

// consumerGroup identifies the engine's consumer group on the event topic.
const consumerGroup = "guardian-engine"

// Agent consumes pipeline events from the broker and feeds them to the
// engine, publishing outcome records for downstream consumers.
type Agent struct {
	engine  *Engine
	bus     broker.Broker
	log     logger.Logger
	workers int
}

// NewAgent creates an Agent running up to workers concurrent Process calls.
func NewAgent(engine *Engine, bus broker.Broker, log logger.Logger, workers int) *Agent {
	if workers < 1 {
		workers = 1
	}
	return &Agent{engine: engine, bus: bus, log: log, workers: workers}
}

// Run consumes events until the context is cancelled. In-flight events run
// to completion; the lease TTL covers anything cut off harder than that.
func (a *Agent) Run(ctx context.Context) error {
	events, err := a.bus.Subscribe(ctx, contracts.TopicPipelineEvents, consumerGroup)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", contracts.TopicPipelineEvents, err)
	}
	a.log.Info("engine consuming %s with %d workers", contracts.TopicPipelineEvents, a.workers)

	g := new(errgroup.Group)
	g.SetLimit(a.workers)

	for msg := range events {
		var event contracts.PipelineEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			a.log.Error("dropping malformed event at offset %d: %v", msg.Offset, err)
			continue
		}

		g.Go(func() error {
			records, err := a.engine.Process(ctx, event)
			if err != nil {
				a.log.Error("processing pipeline %d: %v", event.PipelineID, err)
				return nil
			}
			a.publishOutcomes(ctx, records)
			return nil
		})
	}

	g.Wait()
	a.log.Info("engine intake stopped")
	return nil
}

func (a *Agent) publishOutcomes(ctx context.Context, records []contracts.OutcomeRecord) {
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			a.log.Error("encoding outcome %s: %v", rec.Key, err)
			continue
		}
		key := strconv.FormatInt(rec.Event.PipelineID, 10)
		if err := a.bus.Publish(ctx, contracts.TopicOutcomes, key, payload); err != nil {
			a.log.Error("publishing outcome %s: %v", rec.Key, err)
		}
	}
}
