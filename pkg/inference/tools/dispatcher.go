package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-go-golems/autocot/pkg/toolcode"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Dispatcher executes tool invocations against a Registry. Failures never
// escape as Go errors: every outcome is a ToolResult.
type Dispatcher struct {
	registry *Registry
	config   Config
	parser   ArgParser
}

// slotSet serializes same-name invocations of one DispatchAll call.
type slotSet struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newSlotSet() *slotSet {
	return &slotSet{slots: map[string]chan struct{}{}}
}

type DispatcherOption func(*Dispatcher)

func WithConfig(cfg Config) DispatcherOption {
	return func(d *Dispatcher) {
		d.config = cfg
	}
}

func WithArgParser(p ArgParser) DispatcherOption {
	return func(d *Dispatcher) {
		d.parser = p
	}
}

func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		config:   DefaultConfig(),
		parser:   DefaultArgParser,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// DispatchAll runs the invocations and returns their results in input order.
// Invocations of the same tool run one after the other, distinct tools run in
// parallel (bounded by MaxParallel when set). Separate calls share nothing,
// so concurrent conversations never wait on each other.
func (d *Dispatcher) DispatchAll(ctx context.Context, invocations []toolcode.Invocation) []ToolResult {
	results := make([]ToolResult, len(invocations))
	if len(invocations) == 0 {
		return results
	}

	slots := newSlotSet()
	eg := &errgroup.Group{}
	if d.config.MaxParallel > 0 {
		eg.SetLimit(d.config.MaxParallel)
	}
	for i, inv := range invocations {
		i, inv := i, inv
		eg.Go(func() error {
			res := d.run(ctx, slots, inv)
			res.Index = i
			results[i] = res
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

// Dispatch runs a single invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, inv toolcode.Invocation) ToolResult {
	return d.run(ctx, newSlotSet(), inv)
}

func (d *Dispatcher) run(ctx context.Context, slots *slotSet, inv toolcode.Invocation) ToolResult {
	start := time.Now()
	res := d.dispatch(ctx, slots, inv)
	res.Duration = time.Since(start)

	ev := log.Debug()
	if !res.OK() {
		ev = log.Warn().Str("error_type", res.ErrorType)
	}
	ev.Str("tool", inv.Name).
		Str("status", string(res.Status)).
		Dur("duration", res.Duration).
		Msg("tools: invocation finished")
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, slots *slotSet, inv toolcode.Invocation) ToolResult {
	if inv.SplitError != "" {
		return errorResult(inv, ErrorTypeValidation, "argument parse failure: "+inv.SplitError)
	}
	def, ok := d.registry.Lookup(inv.Name)
	if !ok {
		return errorResult(inv, ErrorTypeNotFound, "unknown tool: "+inv.Name)
	}
	if !d.config.IsToolAllowed(inv.Name) {
		return errorResult(inv, ErrorTypeNotAllowed, "tool not allowed: "+inv.Name)
	}

	args, err := d.parser.Parse(inv.RawArgs)
	if err == nil {
		var payload []byte
		payload, err = BindArguments(def, args)
		if err == nil {
			return d.execute(ctx, slots, def, inv, payload)
		}
	}
	return errorResult(inv, ErrorTypeValidation, "argument parse failure: "+err.Error())
}

type outcome struct {
	value interface{}
	err   error
}

func (d *Dispatcher) execute(ctx context.Context, slots *slotSet, def *ToolDefinition, inv toolcode.Invocation, args []byte) ToolResult {
	if err := ctx.Err(); err != nil {
		return d.contextResult(inv, err)
	}
	if err := slots.acquire(ctx, def.Name, d.config.Timeout); err != nil {
		return d.contextResult(inv, err)
	}

	runCtx := ctx
	cancel := func() {}
	if d.config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.config.Timeout)
	}
	defer cancel()
	bodyCtx := WithCurrentInvocation(WithRegistry(runCtx, d.registry), inv)

	done := make(chan outcome, 1)
	go func() {
		// the slot is held until the body returns, even after a timeout
		defer slots.release(def.Name)
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &panicError{value: r}}
			}
		}()
		v, err := def.Function.Execute(bodyCtx, args)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && runCtx.Err() != nil &&
			(errors.Is(o.err, context.DeadlineExceeded) || errors.Is(o.err, context.Canceled)) {
			return d.contextResult(inv, runCtx.Err())
		}
		if o.err != nil {
			errType := ErrorTypeExecution
			var pe *panicError
			if errors.As(o.err, &pe) {
				errType = ErrorTypePanic
			}
			return errorResult(inv, errType, o.err.Error())
		}
		text, err := renderValue(o.value)
		if err != nil {
			return errorResult(inv, ErrorTypeExecution, "could not render result: "+err.Error())
		}
		return okResult(inv, truncateOutput(text, d.config.MaxOutputBytes))
	case <-runCtx.Done():
		log.Warn().Str("tool", def.Name).Dur("timeout", d.config.Timeout).Msg("tools: invocation did not finish in time")
		return d.contextResult(inv, runCtx.Err())
	}
}

func (d *Dispatcher) contextResult(inv toolcode.Invocation, err error) ToolResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return errorResult(inv, ErrorTypeTimeout, "timeout")
	}
	return errorResult(inv, ErrorTypeCanceled, "canceled")
}

func (s *slotSet) slot(name string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.slots[name]
	if !ok {
		c = make(chan struct{}, 1)
		s.slots[name] = c
	}
	return c
}

// acquire waits for the per-tool slot. A previous call still running past its
// own timeout makes the wait bounded by the same timeout.
func (s *slotSet) acquire(ctx context.Context, name string, timeout time.Duration) error {
	c := s.slot(name)
	select {
	case c <- struct{}{}:
		return nil
	default:
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case c <- struct{}{}:
		return nil
	case <-waitCtx.Done():
		return waitCtx.Err()
	}
}

func (s *slotSet) release(name string) {
	<-s.slot(name)
}

type panicError struct {
	value interface{}
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// FormatResult renders a result for logs and terminals.
func FormatResult(r ToolResult) string {
	if r.OK() {
		return fmt.Sprintf("%s -> %s", r.Invocation.Name, r.Value)
	}
	return fmt.Sprintf("%s -> error (%s): %s", r.Invocation.Name, r.ErrorType, r.Value)
}
