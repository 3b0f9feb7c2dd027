package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"guardian-agent/src/broker"
	"guardian-agent/src/contracts"
	"guardian-agent/src/logger"
)

func TestAgentConsumesAndPublishesOutcomes(t *testing.T) {
	h := newHarness(t, nil)
	h.gl.traces[101] = "Error: connect ECONNRESET\n"

	bus := broker.NewInMemoryBroker()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outcomes, err := bus.Subscribe(ctx, contracts.TopicOutcomes, "test")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	agent := NewAgent(h.engine, bus, logger.NewSilentLogger(), 2)
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	// Give the agent a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)

	payload, _ := json.Marshal(pipelineEvent(101))
	if err := bus.Publish(ctx, contracts.TopicPipelineEvents, "42", payload); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-outcomes:
		var rec contracts.OutcomeRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			t.Fatalf("unmarshal outcome: %v", err)
		}
		if rec.Plan.Kind != contracts.PlanRetry {
			t.Errorf("plan = %s, want retry", rec.Plan.Kind)
		}
		if rec.Outcome.Status != contracts.OutcomeSucceeded {
			t.Errorf("status = %s (detail %q)", rec.Outcome.Status, rec.Outcome.Detail)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no outcome published")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop after cancel")
	}
}

func TestAgentDropsMalformedEvents(t *testing.T) {
	h := newHarness(t, nil)

	bus := broker.NewInMemoryBroker()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agent := NewAgent(h.engine, bus, logger.NewSilentLogger(), 1)
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if err := bus.Publish(ctx, contracts.TopicPipelineEvents, "", []byte("not json")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if h.gl.writes() != 0 {
		t.Errorf("platform writes = %d, want 0 for malformed event", h.gl.writes())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop after cancel")
	}
}
