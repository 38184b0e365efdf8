package orchestrator

import (
	"context"
	"fmt"

	"github.com/hay-kot/scrub/internal/agent"
	"github.com/hay-kot/scrub/internal/core/verify"
)

// runVerify discovers verification commands and drives the bounded
// fix-retry loop. No commands discovered means verification is not
// applicable and the run skips straight to review.
func (o *Orchestrator) runVerify(ctx context.Context) {
	o.setPhase(PhaseVerifying)
	o.setVerifyState(&VerifyState{Status: VerifyDiscovering, MaxAttempts: o.cfg.Verification.MaxRetries})

	discovery := verify.Discover(o.dir)
	if len(discovery.Commands) == 0 {
		o.store.Log("no verification commands found, skipping verification")
		o.setVerifyState(nil)
		o.runReview(ctx)
		return
	}

	o.store.Log("discovered %d verification commands from %v", len(discovery.Commands), discovery.Sources)
	o.setVerifyState(&VerifyState{
		Commands:    discovery.Commands,
		Attempt:     1,
		MaxAttempts: o.cfg.Verification.MaxRetries,
		Status:      VerifyRunning,
		Sources:     discovery.Sources,
	})

	o.verifyLoop(ctx, o.client.NewSession(o.cfg.Models.Verification))
}

// verifyLoop runs sequential gated passes until everything passes, the
// retry budget is exhausted, or a fix attempt itself fails. On exhaustion
// the state parks at VerifyFailed awaiting an explicit user decision.
func (o *Orchestrator) verifyLoop(ctx context.Context, session agent.Session) {
	for {
		failed, ok := o.runPass(ctx)
		if ok {
			o.updateVerifyStatus(VerifyPassed)
			state := o.Verification()
			if state == nil {
				return // torn down mid-pass
			}
			if err := o.store.AppendVerification(verifySummary(*state)); err != nil {
				o.log.Error().Err(err).Msg("persist verification pass")
			}
			o.store.Log("verification passed on attempt %d", state.Attempt)
			o.runReview(ctx)
			return
		}

		state := o.Verification()
		if state == nil {
			return // torn down mid-pass
		}
		if err := o.store.AppendVerification(verifySummary(*state)); err != nil {
			o.log.Error().Err(err).Msg("persist verification pass")
		}

		if state.Attempt >= state.MaxAttempts {
			o.store.Log("verification failed after %d attempts, awaiting decision", state.Attempt)
			o.updateVerifyStatus(VerifyFailed)
			return
		}

		o.updateVerifyStatus(VerifyFixing)
		o.store.Log("verification attempt %d failed (%s), asking agent to fix", state.Attempt, failed.Name)

		prompt, err := verifyFixPrompt(failed, state.Attempt, state.MaxAttempts)
		if err == nil {
			err = session.Submit(ctx, prompt, o.onAgentUpdate)
		}
		if err != nil {
			// A failed fix attempt burns the loop, not the whole app.
			o.store.Log("verification fix attempt errored: %v", err)
			o.updateVerifyStatus(VerifyFailed)
			return
		}

		o.mu.Lock()
		if o.verifyState == nil {
			o.mu.Unlock()
			return
		}
		verify.Reset(o.verifyState.Commands)
		o.verifyState.Attempt++
		o.verifyState.CurrentIndex = 0
		o.verifyState.Status = VerifyRunning
		o.mu.Unlock()
		o.publish(Event{Kind: EventVerify})
	}
}

// runPass executes commands strictly in discovery order. The first required
// failure halts the pass: later commands stay pending. Optional failures
// are marked skipped and never block. Returns the failing command and
// whether the whole pass passed.
func (o *Orchestrator) runPass(ctx context.Context) (verify.Command, bool) {
	count := func() int {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.verifyState == nil {
			return 0
		}
		return len(o.verifyState.Commands)
	}()

	for i := 0; i < count; i++ {
		cmd, ok := o.markRunning(i)
		if !ok {
			return verify.Command{}, false
		}

		result := o.executor.Run(ctx, o.dir, cmd.Command)

		if result.Success {
			o.finishCommand(i, verify.StatusPassed, result)
			continue
		}
		if cmd.Optional {
			o.finishCommand(i, verify.StatusSkipped, result)
			o.store.Log("optional check %s failed, skipping", cmd.Name)
			continue
		}

		o.finishCommand(i, verify.StatusFailed, result)
		failed, _ := o.commandAt(i)
		return failed, false
	}

	return verify.Command{}, count > 0
}

func (o *Orchestrator) markRunning(i int) (verify.Command, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.alive || o.verifyState == nil || i >= len(o.verifyState.Commands) {
		return verify.Command{}, false
	}
	o.verifyState.Commands[i].Status = verify.StatusRunning
	o.verifyState.CurrentIndex = i
	cmd := o.verifyState.Commands[i]

	o.publish(Event{Kind: EventVerify, Text: fmt.Sprintf("%s running", cmd.Name)})
	return cmd, true
}

func (o *Orchestrator) finishCommand(i int, status verify.CommandStatus, result verify.Result) {
	o.mu.Lock()
	if o.verifyState != nil && i < len(o.verifyState.Commands) {
		c := &o.verifyState.Commands[i]
		c.Status = status
		c.Output = result.Output
		c.ExitCode = result.ExitCode
		c.Duration = result.Duration
	}
	o.mu.Unlock()

	o.publish(Event{Kind: EventVerify})
}

func (o *Orchestrator) commandAt(i int) (verify.Command, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.verifyState == nil || i >= len(o.verifyState.Commands) {
		return verify.Command{}, false
	}
	return o.verifyState.Commands[i], true
}

func (o *Orchestrator) setVerifyState(state *VerifyState) {
	o.mu.Lock()
	o.verifyState = state
	o.mu.Unlock()
	o.publish(Event{Kind: EventVerify})
}

func (o *Orchestrator) updateVerifyStatus(status VerifyStatus) {
	o.mu.Lock()
	if o.verifyState != nil {
		o.verifyState.Status = status
	}
	o.mu.Unlock()
	o.publish(Event{Kind: EventVerify})
}

// Decide resolves the verification-failed gate. Retry restarts the loop
// from attempt 1 with fresh statuses; skip proceeds to review; quit is
// handled by the caller tearing the program down.
func (o *Orchestrator) Decide(ctx context.Context, d Decision) {
	state := o.Verification()
	if state == nil || state.Status != VerifyFailed {
		return
	}

	switch d {
	case DecisionRetry:
		o.store.Log("user chose retry, restarting verification")
		o.mu.Lock()
		if o.verifyState == nil {
			o.mu.Unlock()
			return
		}
		verify.Reset(o.verifyState.Commands)
		o.verifyState.Attempt = 1
		o.verifyState.CurrentIndex = 0
		o.verifyState.Status = VerifyRunning
		o.mu.Unlock()
		o.publish(Event{Kind: EventVerify})
		go o.verifyLoop(ctx, o.client.NewSession(o.cfg.Models.Verification))
	case DecisionSkip:
		o.store.Log("user chose to skip verification")
		go o.runReview(ctx)
	case DecisionQuit:
		o.store.Log("user chose to quit at verification gate")
	}
}
