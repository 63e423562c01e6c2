// Package executor plays scenarios against a running climate stack.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/saaga0h/jeeves-climate/e2e/internal/checker"
	"github.com/saaga0h/jeeves-climate/e2e/internal/observer"
	"github.com/saaga0h/jeeves-climate/e2e/internal/reporter"
	"github.com/saaga0h/jeeves-climate/e2e/internal/scenario"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
	"github.com/saaga0h/jeeves-climate/pkg/postgres"
	"github.com/saaga0h/jeeves-climate/pkg/redis"
)

// Runner orchestrates scenario execution
type Runner struct {
	mqtt     mqtt.Client
	redis    redis.Client
	postgres *checker.PostgresChecker
	logger   *slog.Logger

	// Unit is the length of one scenario time step
	Unit time.Duration
	// StartupDelay is waited after the initial state is published
	StartupDelay time.Duration

	observer *observer.Observer
}

// NewRunner creates a runner on connected clients. pg may be nil, in which
// case Postgres expectations fail.
func NewRunner(mqttClient mqtt.Client, redisClient redis.Client, pg postgres.Client, logger *slog.Logger) *Runner {
	r := &Runner{
		mqtt:         mqttClient,
		redis:        redisClient,
		logger:       logger,
		Unit:         time.Second,
		StartupDelay: 5 * time.Second,
	}
	if pg != nil {
		r.postgres = checker.NewPostgresChecker(pg, logger)
	}
	return r
}

type stepKind int

const (
	stepEvent stepKind = iota
	stepWait
	stepCheck
)

type step struct {
	time  int
	kind  stepKind
	event scenario.StateEvent
	wait  scenario.WaitPeriod
	layer string
	exp   scenario.Expectation
}

// plan orders everything by time; at equal times events go first and
// checks last
func plan(s *scenario.Scenario) []step {
	var steps []step
	for _, ev := range s.Events {
		steps = append(steps, step{time: ev.Time, kind: stepEvent, event: ev})
	}
	for _, w := range s.Wait {
		steps = append(steps, step{time: w.Time, kind: stepWait, wait: w})
	}

	layers := make([]string, 0, len(s.Expectations))
	for layer := range s.Expectations {
		layers = append(layers, layer)
	}
	sort.Strings(layers)
	for _, layer := range layers {
		for _, exp := range s.Expectations[layer] {
			steps = append(steps, step{time: exp.Time, kind: stepCheck, layer: layer, exp: exp})
		}
	}

	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].time != steps[j].time {
			return steps[i].time < steps[j].time
		}
		return steps[i].kind < steps[j].kind
	})
	return steps
}

// Run executes a scenario
func (r *Runner) Run(ctx context.Context, s *scenario.Scenario) (*scenario.TestResult, []reporter.TimelineEvent, error) {
	r.logger.Info("Starting scenario", "name", s.Name, "controller", s.Setup.Controller)

	r.observer = observer.NewObserver(r.mqtt, observer.DefaultFilter, r.logger)
	if err := r.observer.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start observer: %w", err)
	}

	player := NewPlayer(r.mqtt, r.logger)

	entities := make([]string, 0, len(s.Setup.InitialState))
	for entity := range s.Setup.InitialState {
		entities = append(entities, entity)
	}
	sort.Strings(entities)
	for _, entity := range entities {
		if err := player.PublishState(entity, s.Setup.InitialState[entity], nil); err != nil {
			return nil, nil, fmt.Errorf("failed to publish initial state: %w", err)
		}
	}

	if r.StartupDelay > 0 {
		r.logger.Info("Waiting for agents to settle", "delay", r.StartupDelay)
		select {
		case <-time.After(r.StartupDelay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	start := time.Now()
	result := &scenario.TestResult{Scenario: s, Name: s.Name, StartTime: start}
	var timeline []reporter.TimelineEvent

	for _, st := range plan(s) {
		if err := WaitUntil(ctx, start, st.time, r.Unit); err != nil {
			return nil, nil, err
		}
		elapsed := Elapsed(start)

		switch st.kind {
		case stepEvent:
			desc := fmt.Sprintf("%s = %v (%s)", st.event.Entity, st.event.State, st.event.Description)
			r.logger.Info("Publishing event", "elapsed", fmt.Sprintf("%.2fs", elapsed), "event", desc)
			if err := player.PublishEvent(st.event); err != nil {
				return nil, nil, fmt.Errorf("failed to publish event: %w", err)
			}
			timeline = append(timeline, reporter.TimelineEvent{Elapsed: elapsed, Layer: "state", Description: desc})

		case stepWait:
			r.logger.Info("Wait", "elapsed", fmt.Sprintf("%.2fs", elapsed), "description", st.wait.Description)
			timeline = append(timeline, reporter.TimelineEvent{Elapsed: elapsed, Layer: "wait", Description: st.wait.Description})

		case stepCheck:
			res := r.check(ctx, st.layer, st.exp)
			result.Expectations = append(result.Expectations, res)
			if res.Passed {
				result.PassedCount++
				r.logger.Info("Check passed", "elapsed", fmt.Sprintf("%.2fs", elapsed), "layer", st.layer, "target", st.exp.Target())
			} else {
				result.FailedCount++
				r.logger.Warn("Check failed", "elapsed", fmt.Sprintf("%.2fs", elapsed), "layer", st.layer, "target", st.exp.Target(), "reason", res.Reason)
			}
			timeline = append(timeline, reporter.TimelineEvent{
				Elapsed:     elapsed,
				Layer:       st.layer,
				Description: st.exp.Target(),
				Success:     res.Passed,
				IsCheck:     true,
			})
		}
	}

	result.EndTime = time.Now()
	result.Passed = result.FailedCount == 0
	return result, timeline, nil
}

func (r *Runner) check(ctx context.Context, layer string, exp scenario.Expectation) scenario.ExpectationResult {
	var ok bool
	var reason string
	var actual interface{}

	switch {
	case exp.PostgresQuery != "":
		if r.postgres == nil {
			reason = "postgres is not configured"
			break
		}
		ok, reason, actual = r.postgres.Check(ctx, exp)
	case exp.RedisKey != "":
		ok, reason, actual = checker.CheckRedis(ctx, r.redis, exp)
	default:
		ok, reason, actual = checker.CheckMessages(exp, r.observer.Messages())
	}

	return scenario.ExpectationResult{
		Layer:       layer,
		Expectation: exp,
		Passed:      ok,
		Reason:      reason,
		Actual:      actual,
	}
}

// SaveCapture saves the MQTT traffic of the last run
func (r *Runner) SaveCapture(filename string) error {
	if r.observer == nil {
		return fmt.Errorf("no scenario has run")
	}
	return r.observer.SaveCapture(filename)
}
