package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/room4-2/callbridge/logging"
	"github.com/room4-2/callbridge/tools"
	"github.com/room4-2/callbridge/voicelive"
)

// Dispatcher executes tool calls off the event loop. Handlers run in
// supervised goroutines; once started they are never force-cancelled, even
// when the turn that requested them gets interrupted. Every invocation,
// including failures, submits a function result followed by a continuation
// request so the model is never left waiting on a call it made.
type Dispatcher struct {
	reg   *tools.Registry
	up    Upstream
	turns *TurnTracker
	log   *logging.Logger

	ctx context.Context
	wg  sync.WaitGroup
}

func NewDispatcher(ctx context.Context, reg *tools.Registry, up Upstream, turns *TurnTracker, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		reg:   reg,
		up:    up,
		turns: turns,
		log:   log,
		ctx:   ctx,
	}
}

// Dispatch handles one completed function-call request. Argument and lookup
// failures resolve synchronously on the event loop; only real handler work
// leaves it.
//
// A call whose originating turn was cancelled and already replaced by a new
// one is stale: the caller abandoned that utterance, so the handler must not
// run. Handlers already in flight when the cancel lands are a different
// case; they finish and deliver their result (see submit).
func (d *Dispatcher) Dispatch(ev *voicelive.FunctionArgsDone) {
	originTurn := ev.ResponseID

	if d.turns.WasCancelled(originTurn) {
		if active := d.turns.Active(); active != nil && active.ID != originTurn {
			d.log.Info().Str("function", ev.Name).Str("origin", originTurn).
				Msg("stale tool call discarded")
			metricStaleEvents.WithLabelValues("tool_call").Inc()
			return
		}
	}

	var args map[string]any
	if ev.Arguments != "" {
		if err := sonic.Unmarshal([]byte(ev.Arguments), &args); err != nil {
			d.log.Warn().Str("function", ev.Name).Err(err).Msg("unparseable function arguments")
			metricToolCalls.WithLabelValues("bad_arguments").Inc()
			d.submit(ev.CallID, originTurn, tools.Result{
				Output: tools.FailureOutput("Invalid function arguments received"),
			})
			return
		}
	}

	handler, ok := d.reg.Lookup(ev.Name)
	if !ok {
		d.log.Warn().Str("function", ev.Name).Msg("unknown function requested")
		metricToolCalls.WithLabelValues("unknown").Inc()
		d.submit(ev.CallID, originTurn, tools.Result{
			Output: tools.FailureOutput(fmt.Sprintf("Function %q not found", ev.Name)),
		})
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		started := time.Now()
		res, err := handler(d.ctx, args)
		metricToolLatency.Observe(time.Since(started).Seconds())
		if err != nil {
			d.log.Warn().Str("function", ev.Name).Err(err).Msg("tool handler failed")
			metricToolCalls.WithLabelValues("error").Inc()
			res = tools.Result{Output: tools.FailureOutput("Tool execution failed")}
		} else {
			metricToolCalls.WithLabelValues("ok").Inc()
		}
		d.submit(ev.CallID, originTurn, res)
	}()
}

// submit sends the function result and then, unless suppressed, requests the
// continuation response. Result before continuation is a hard ordering
// requirement of the protocol.
//
// The continuation is suppressed only when the originating turn was
// cancelled and the conversation has already moved on to a new active turn.
// A result landing into an idle session still gets its continuation; the
// caller is waiting for the answer.
func (d *Dispatcher) submit(callID, originTurn string, res tools.Result) {
	if err := d.up.SendToolOutput(callID, res.Output); err != nil {
		d.log.Warn().Str("call", callID).Err(err).Msg("tool result submit failed")
		return
	}

	if d.turns.WasCancelled(originTurn) {
		if active := d.turns.Active(); active != nil && active.ID != originTurn {
			d.log.Info().Str("call", callID).Str("origin", originTurn).
				Msg("continuation suppressed, conversation moved on")
			return
		}
	}

	if err := d.up.SendResponseCreate(res.FollowUp); err != nil {
		d.log.Warn().Str("call", callID).Err(err).Msg("continuation request failed")
	}
}

// Wait blocks until in-flight handlers finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
