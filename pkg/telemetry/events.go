package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a reconciliation timeline event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID.
	RunID string `json:"run_id,omitempty"`

	// Resource is the target partition as cpc/name.
	Resource string `json:"resource,omitempty"`

	// Operation is the remote operation, if applicable.
	Operation string `json:"operation,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeRunStarted         = "run.started"
	EventTypeRunCompleted       = "run.completed"
	EventTypeRunFailed          = "run.failed"
	EventTypePlanComputed       = "plan.computed"
	EventTypeOperationStarted   = "operation.started"
	EventTypeOperationCompleted = "operation.completed"
	EventTypeOperationFailed    = "operation.failed"
	EventTypePolicyViolation    = "policy.violation"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles delivered events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, synchronously or from a
// background goroutine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	mu          sync.RWMutex
	wg          sync.WaitGroup
	closeOnce   sync.Once
	done        chan struct{}
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	ep := &EventPublisher{config: cfg, done: make(chan struct{})}
	if cfg.Enabled && cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}
	return ep
}

// Publish delivers an event to all matching subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	if ep.buffer == nil {
		ep.deliver(event)
		return nil
	}
	select {
	case <-ep.done:
		return fmt.Errorf("event publisher stopped")
	default:
	}
	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, event %s dropped", event.Type)
	}
}

// Subscribe adds a subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{subscriber: subscriber, filter: filter})
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliver(event)
		case <-ep.done:
			for {
				select {
				case event := <-ep.buffer:
					ep.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliver(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains buffered events and stops the background goroutine.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	ep.closeOnce.Do(func() { close(ep.done) })

	finished := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID, resource, state string, checkMode bool) error {
	return ep.Publish(Event{
		Type:     EventTypeRunStarted,
		RunID:    runID,
		Resource: resource,
		Message:  fmt.Sprintf("reconciling %s to %s", resource, state),
		Data:     map[string]interface{}{"state": state, "check_mode": checkMode},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, resource string, changed bool, duration time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeRunCompleted,
		RunID:    runID,
		Resource: resource,
		Message:  fmt.Sprintf("reconciled %s (changed=%t)", resource, changed),
		Data:     map[string]interface{}{"changed": changed, "duration": duration.Seconds()},
	})
}

// PublishRunFailed publishes a run failed event.
func (ep *EventPublisher) PublishRunFailed(runID, resource string, err error) error {
	return ep.Publish(Event{
		Type:     EventTypeRunFailed,
		RunID:    runID,
		Resource: resource,
		Message:  err.Error(),
		Level:    EventLevelError,
	})
}

// PublishPlanComputed publishes the operation sequence of a plan.
func (ep *EventPublisher) PublishPlanComputed(runID, resource string, operations []string) error {
	msg := "no operations needed"
	if len(operations) > 0 {
		msg = "planned " + strings.Join(operations, ", ")
	}
	return ep.Publish(Event{
		Type:     EventTypePlanComputed,
		RunID:    runID,
		Resource: resource,
		Message:  msg,
		Data:     map[string]interface{}{"operations": operations},
	})
}

// PublishOperation publishes the start or outcome of a remote operation.
func (ep *EventPublisher) PublishOperation(eventType, runID, resource, operation string, err error) error {
	e := Event{
		Type:      eventType,
		RunID:     runID,
		Resource:  resource,
		Operation: operation,
		Message:   fmt.Sprintf("%s %s", operation, resource),
	}
	if err != nil {
		e.Level = EventLevelError
		e.Message = err.Error()
	}
	return ep.Publish(e)
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(runID, resource, policy, severity, message string) error {
	level := EventLevelWarning
	if severity == "error" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:     EventTypePolicyViolation,
		RunID:    runID,
		Resource: resource,
		Message:  message,
		Level:    level,
		Data:     map[string]interface{}{"policy": policy, "severity": severity},
	})
}

// FilterByLevel creates a filter that only allows events of a level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{EventLevelInfo: 0, EventLevelWarning: 1, EventLevelError: 2}
	floor := levels[minLevel]
	return func(event Event) bool {
		return levels[event.Level] >= floor
	}
}

// FilterByType creates a filter that only allows events of the given types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(event Event) bool {
		return set[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events of one run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
