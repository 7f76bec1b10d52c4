package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/runtime"
)

// tickerSource is a minimal runtime.Source used by the serve command to
// exercise the worker end to end when no external query has been
// registered: it acquires one buffer every tick, stamps a counter into
// its sequence number, and emits it until ctx is cancelled or told to
// stop.
type tickerSource struct {
	pool     *buffer.Pool
	interval time.Duration

	stopped chan struct{}
}

func newTickerSource(pool *buffer.Pool, interval time.Duration) *tickerSource {
	return &tickerSource{pool: pool, interval: interval, stopped: make(chan struct{})}
}

func (s *tickerSource) Open(ctx context.Context, emit func(buffer.Buffer) error) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var counter uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopped:
			return nil
		case <-ticker.C:
			buf, err := s.pool.AcquireWithin(s.interval)
			if err != nil {
				continue
			}
			buf.SetSequenceNumber(counter)
			buf.SetCreationTimestamp(uint64(time.Now().UnixNano()))
			buf.SetNumberOfTuples(1)
			counter++
			if err := emit(buf); err != nil {
				return err
			}
		}
	}
}

func (s *tickerSource) Close(t runtime.TerminationType) error {
	close(s.stopped)
	return nil
}

// logSink is a terminal runtime.Sink that logs every buffer it
// consumes, standing in for a real network/storage sink the worker has
// no business implementing (spec §1: sinks are a collaborator's
// interface).
type logSink struct {
	log *slog.Logger
}

func (s *logSink) Consume(buf buffer.Buffer) (runtime.ConsumeResult, error) {
	s.log.Debug("sink consumed buffer",
		"sequence", buf.SequenceNumber(),
		"tuples", buf.NumberOfTuples())
	buf.Release()
	return runtime.ConsumeOk, nil
}

func (s *logSink) Close(t runtime.TerminationType) error {
	s.log.Info("sink closed", "termination", t.String())
	return nil
}

// buildDemoPlan wires one passthrough pipeline: tickerSource -> identity
// stage -> logSink. It exists purely so the serve command has something
// running to report status for; real plans arrive via Manager.RegisterQuery
// from an out-of-scope planning/binding layer (spec §1).
func buildDemoPlan(pool *buffer.Pool, log *slog.Logger, interval time.Duration) runtime.PlanSpec {
	identity := runtime.NewPipeline("demo-identity", runtime.StageFunc(
		func(buf buffer.Buffer, ctx *runtime.PipelineExecutionContext) (runtime.StageStatus, error) {
			if err := ctx.Emit(buf); err != nil {
				return runtime.NeedsBackpressure, err
			}
			return runtime.Ok, nil
		},
	))
	sink := runtime.NewSinkHandle("demo-sink", &logSink{log: log})
	identity.AddSink(sink)

	source := runtime.NewSourceHandle("demo-source", newTickerSource(pool, interval), identity)

	return runtime.PlanSpec{
		Sources:   []*runtime.SourceHandle{source},
		Pipelines: []*runtime.Pipeline{identity},
		Sinks:     []*runtime.SinkHandle{sink},
	}
}
