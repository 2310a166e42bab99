package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/recipes/pkg/recipe"
)

// Event is a notification about an execution or one of its steps.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Type        string         `json:"type"`
	Source      string         `json:"source"`
	ExecutionID string         `json:"execution_id,omitempty"`
	StepName    string         `json:"step_name,omitempty"`
	Position    *int           `json:"position,omitempty"`
	Message     string         `json:"message"`
	Level       string         `json:"level"`
	Data        map[string]any `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeExecutionSubmitted = "execution.submitted"
	EventTypeStepExecuting      = "step.executing"
	EventTypeStepExecuted       = "step.executed"
	EventTypeExecutionComplete  = "execution.complete"
	EventTypeExecutionFailed    = "execution.failed"
	EventTypeExecutionCancelled = "execution.cancelled"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles delivered events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, synchronously or from a
// background goroutine. Subscribers see events in publish order.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	if cfg.EnableAsync && cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if !ep.config.EnableAsync {
		ep.deliverEvent(event)
		return nil
	}

	if ep.ctx.Err() != nil {
		return fmt.Errorf("event publisher stopped")
	}

	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, event %s dropped", event.Type)
	}
}

// RecipeStepExecuting publishes a step.executing event.
func (ep *EventPublisher) RecipeStepExecuting(_ context.Context, executionID string, rc *recipe.Context) error {
	position := rc.Position
	return ep.Publish(Event{
		Type:        EventTypeStepExecuting,
		Source:      "executor",
		ExecutionID: executionID,
		StepName:    rc.RecipeStep.Name,
		Position:    &position,
		Message:     fmt.Sprintf("Executing step %s of execution %s", rc.RecipeStep.Name, executionID),
		Level:       EventLevelInfo,
	})
}

// RecipeStepExecuted publishes a step.executed event.
func (ep *EventPublisher) RecipeStepExecuted(_ context.Context, executionID string, rc *recipe.Context) error {
	position := rc.Position
	return ep.Publish(Event{
		Type:        EventTypeStepExecuted,
		Source:      "executor",
		ExecutionID: executionID,
		StepName:    rc.RecipeStep.Name,
		Position:    &position,
		Message:     fmt.Sprintf("Executed step %s of execution %s", rc.RecipeStep.Name, executionID),
		Level:       EventLevelInfo,
	})
}

// ExecutionComplete publishes an execution.complete event.
func (ep *EventPublisher) ExecutionComplete(_ context.Context, executionID string) error {
	return ep.Publish(Event{
		Type:        EventTypeExecutionComplete,
		Source:      "executor",
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Recipe execution %s completed", executionID),
		Level:       EventLevelInfo,
	})
}

// PublishExecutionSubmitted publishes an execution.submitted event.
func (ep *EventPublisher) PublishExecutionSubmitted(executionID, recipeName, source string, steps int) error {
	return ep.Publish(Event{
		Type:        EventTypeExecutionSubmitted,
		Source:      source,
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Recipe %q submitted as execution %s", recipeName, executionID),
		Level:       EventLevelInfo,
		Data: map[string]any{
			"recipe": recipeName,
			"steps":  steps,
		},
	})
}

// PublishExecutionFailed publishes an execution.failed event.
func (ep *EventPublisher) PublishExecutionFailed(executionID, stepName, reason string) error {
	return ep.Publish(Event{
		Type:        EventTypeExecutionFailed,
		Source:      "driver",
		ExecutionID: executionID,
		StepName:    stepName,
		Message:     fmt.Sprintf("Recipe execution %s failed: %s", executionID, reason),
		Level:       EventLevelError,
		Data: map[string]any{
			"reason": reason,
		},
	})
}

// PublishExecutionCancelled publishes an execution.cancelled event.
func (ep *EventPublisher) PublishExecutionCancelled(executionID string, drained int) error {
	return ep.Publish(Event{
		Type:        EventTypeExecutionCancelled,
		Source:      "driver",
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Recipe execution %s cancelled", executionID),
		Level:       EventLevelWarning,
		Data: map[string]any{
			"drained": drained,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents batches buffered events and delivers them in order.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				flush()
			}

		case <-tick:
			flush()

		case <-ep.ctx.Done():
			// Deliver whatever is still buffered before stopping.
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all matching subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByExecutionID creates a filter that only allows events for one execution.
func FilterByExecutionID(executionID string) EventFilter {
	return func(event Event) bool {
		return event.ExecutionID == executionID
	}
}
