package statemachine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rethinkdns/substate/pkg/statemachine"
)

const (
	Draft     = statemachine.StringState("draft")
	InReview  = statemachine.StringState("in_review")
	Approved  = statemachine.StringState("approved")
	Published = statemachine.StringState("published")
)

const (
	Submit  = statemachine.StringEvent("submit")
	Approve = statemachine.StringEvent("approve")
	Publish = statemachine.StringEvent("publish")
	Reject  = statemachine.StringEvent("reject")
)

func TestStateMachine(t *testing.T) {
	t.Parallel()

	t.Run("Basic Transitions", func(t *testing.T) {
		t.Parallel()
		sm := statemachine.MustNew(Draft,
			statemachine.WithTransition(Draft, InReview, Submit),
			statemachine.WithTransition(InReview, Approved, Approve),
		)

		if sm.Current() != Draft {
			t.Fatalf("Expected initial state to be %s, got %s", Draft, sm.Current())
		}

		ctx := context.Background()

		if !sm.CanFire(ctx, Submit, nil) {
			t.Fatal("Expected CanFire to return true for Submit event in Draft state")
		}

		if err := sm.Fire(ctx, Submit, nil); err != nil {
			t.Fatalf("Failed to fire Submit event: %v", err)
		}
		if sm.Current() != InReview {
			t.Fatalf("Expected state to be %s, got %s", InReview, sm.Current())
		}

		if err := sm.Fire(ctx, Approve, nil); err != nil {
			t.Fatalf("Failed to fire Approve event: %v", err)
		}
		if sm.Current() != Approved {
			t.Fatalf("Expected state to be %s, got %s", Approved, sm.Current())
		}

		if err := sm.Reset(); err != nil {
			t.Fatalf("Failed to reset state machine: %v", err)
		}
		if sm.Current() != Draft {
			t.Fatalf("Expected state to be %s after reset, got %s", Draft, sm.Current())
		}
	})

	t.Run("Unknown Event Is A NoOp", func(t *testing.T) {
		t.Parallel()
		var invalidCalls int
		sm := statemachine.MustNew(Draft,
			statemachine.WithTransition(Draft, InReview, Submit),
			statemachine.OnInvalidTransition(func(ctx context.Context, current statemachine.State, event statemachine.Event) {
				invalidCalls++
			}),
		)
		sm.UpdateData("payload")

		err := sm.Fire(context.Background(), Publish, nil)
		if !statemachine.IsNoTransitionAvailableError(err) {
			t.Fatalf("Expected ErrNoTransitionAvailable, got: %v", err)
		}
		if sm.Current() != Draft {
			t.Fatalf("State changed on unknown event: %s", sm.Current())
		}
		if sm.Data() != "payload" {
			t.Fatalf("Data changed on unknown event: %v", sm.Data())
		}
		if sm.LastError() != nil {
			t.Fatalf("LastError set on unknown event: %v", sm.LastError())
		}
		if len(sm.History()) != 0 {
			t.Fatalf("History recorded on unknown event: %d entries", len(sm.History()))
		}
		if invalidCalls != 1 {
			t.Fatalf("Expected 1 invalid-transition hook call, got %d", invalidCalls)
		}
	})

	t.Run("Guard Rejection Behaves Like Unknown Event", func(t *testing.T) {
		t.Parallel()
		var invalidCalls int
		deny := func(ctx context.Context, from statemachine.State, event statemachine.Event, data any) bool {
			return false
		}
		sm := statemachine.MustNew(Draft,
			statemachine.WithTransition(Draft, InReview, Submit, statemachine.WithGuard(deny)),
			statemachine.OnInvalidTransition(func(ctx context.Context, current statemachine.State, event statemachine.Event) {
				invalidCalls++
			}),
		)

		ctx := context.Background()
		if sm.CanFire(ctx, Submit, nil) {
			t.Fatal("Expected CanFire to return false for guarded transition")
		}
		err := sm.Fire(ctx, Submit, nil)
		if !statemachine.IsTransitionRejectedError(err) {
			t.Fatalf("Expected ErrTransitionRejected, got: %v", err)
		}
		if sm.Current() != Draft || len(sm.History()) != 0 || sm.LastError() != nil {
			t.Fatal("Guard rejection must leave state, history and last error untouched")
		}
		if invalidCalls != 1 {
			t.Fatalf("Expected 1 invalid-transition hook call, got %d", invalidCalls)
		}
	})

	t.Run("Guard Branching Picks First Passing Transition", func(t *testing.T) {
		t.Parallel()
		pass := func(ctx context.Context, from statemachine.State, event statemachine.Event, data any) bool {
			return data == "go"
		}
		sm := statemachine.MustNew(Draft,
			statemachine.WithTransition(Draft, Approved, Submit, statemachine.WithGuard(pass)),
			statemachine.WithTransition(Draft, InReview, Submit),
		)

		sm.UpdateData("go")
		if err := sm.Fire(context.Background(), Submit, nil); err != nil {
			t.Fatalf("Fire failed: %v", err)
		}
		if sm.Current() != Approved {
			t.Fatalf("Expected guard-selected state %s, got %s", Approved, sm.Current())
		}
	})

	t.Run("Action Failure Blocks Advancement", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("storage down")
		var failedCalls int
		sm := statemachine.MustNew(Draft,
			statemachine.WithTransition(Draft, InReview, Submit,
				statemachine.WithAction(func(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
					return boom
				}),
			),
			statemachine.OnTransitionFailed(func(ctx context.Context, from statemachine.State, event statemachine.Event, err error) {
				failedCalls++
			}),
		)

		err := sm.Fire(context.Background(), Submit, nil)
		if !statemachine.IsActionFailedError(err) {
			t.Fatalf("Expected ErrActionFailed, got: %v", err)
		}
		if !errors.Is(err, boom) {
			t.Fatalf("Expected cause to be preserved, got: %v", err)
		}
		if sm.Current() != Draft {
			t.Fatalf("State advanced despite action failure: %s", sm.Current())
		}
		if sm.LastError() == nil {
			t.Fatal("LastError not set after action failure")
		}
		history := sm.History()
		if len(history) != 1 || history[0].Success {
			t.Fatalf("Expected one failure record, got: %+v", history)
		}
		if failedCalls != 1 {
			t.Fatalf("Expected 1 transition-failed hook call, got %d", failedCalls)
		}

		// A later successful transition clears the error slot.
		sm2 := statemachine.MustNew(Draft, statemachine.WithTransition(Draft, InReview, Submit))
		_ = sm2.Fire(context.Background(), Submit, nil)
		if sm2.LastError() != nil {
			t.Fatalf("LastError not cleared after success: %v", sm2.LastError())
		}
	})

	t.Run("Action Panic Is Recovered", func(t *testing.T) {
		t.Parallel()
		sm := statemachine.MustNew(Draft,
			statemachine.WithTransition(Draft, InReview, Submit,
				statemachine.WithAction(func(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
					panic("nope")
				}),
			),
		)

		err := sm.Fire(context.Background(), Submit, nil)
		if !statemachine.IsActionFailedError(err) {
			t.Fatalf("Expected ErrActionFailed for panicking action, got: %v", err)
		}
		if sm.Current() != Draft {
			t.Fatalf("State advanced despite panicking action: %s", sm.Current())
		}
		if sm.LastError() == nil {
			t.Fatal("LastError not set after panicking action")
		}

		// The failure record names the attempted target, same as when the
		// action returns an error.
		records := sm.History()
		if len(records) != 1 {
			t.Fatalf("Expected 1 history record, got %d", len(records))
		}
		if records[0].Success {
			t.Fatal("Panicking action recorded as success")
		}
		if records[0].To != InReview.Name() {
			t.Fatalf("Failure record targets %s, want %s", records[0].To, InReview.Name())
		}
	})

	t.Run("Data Replacement On Fire", func(t *testing.T) {
		t.Parallel()
		var seen any
		sm := statemachine.MustNew(Draft,
			statemachine.WithInitialData("old"),
			statemachine.WithTransition(Draft, InReview, Submit,
				statemachine.WithAction(func(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
					seen = data
					return nil
				}),
			),
		)

		if err := sm.Fire(context.Background(), Submit, "new"); err != nil {
			t.Fatalf("Fire failed: %v", err)
		}
		if seen != "new" {
			t.Fatalf("Action saw stale data: %v", seen)
		}
		if sm.Data() != "new" {
			t.Fatalf("Data not replaced: %v", sm.Data())
		}
	})

	t.Run("State Changed Hook", func(t *testing.T) {
		t.Parallel()
		var gotFrom, gotTo statemachine.State
		sm := statemachine.MustNew(Draft,
			statemachine.WithTransition(Draft, InReview, Submit),
			statemachine.OnStateChanged(func(ctx context.Context, from, to statemachine.State, event statemachine.Event) {
				gotFrom, gotTo = from, to
			}),
		)

		if err := sm.Fire(context.Background(), Submit, nil); err != nil {
			t.Fatalf("Fire failed: %v", err)
		}
		if gotFrom != Draft || gotTo != InReview {
			t.Fatalf("Hook saw %v -> %v", gotFrom, gotTo)
		}
	})

	t.Run("ValidEvents", func(t *testing.T) {
		t.Parallel()
		sm := statemachine.MustNew(Draft,
			statemachine.WithTransition(Draft, InReview, Submit),
			statemachine.WithTransition(Draft, Draft, Reject),
			statemachine.WithTransition(InReview, Approved, Approve),
		)

		events := sm.ValidEvents()
		if len(events) != 2 {
			t.Fatalf("Expected 2 valid events in Draft, got %v", events)
		}
	})
}

func TestHistoryBounded(t *testing.T) {
	t.Parallel()

	// Self-loop so we can fire an arbitrary number of successful transitions.
	sm := statemachine.MustNew(Draft,
		statemachine.WithTransition(Draft, Draft, Submit),
	)

	ctx := context.Background()
	const n = 150
	for range n {
		if err := sm.Fire(ctx, Submit, nil); err != nil {
			t.Fatalf("Fire failed: %v", err)
		}
	}

	history := sm.History()
	if len(history) != statemachine.DefaultHistoryCapacity {
		t.Fatalf("Expected history capped at %d, got %d", statemachine.DefaultHistoryCapacity, len(history))
	}

	stats := sm.Stats()
	if stats.Total != statemachine.DefaultHistoryCapacity {
		t.Fatalf("Stats.Total = %d, want %d", stats.Total, statemachine.DefaultHistoryCapacity)
	}
	if stats.SuccessRate != 1.0 {
		t.Fatalf("SuccessRate = %f, want 1.0", stats.SuccessRate)
	}
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	sm := statemachine.MustNew(Draft,
		statemachine.WithHistoryCapacity(3),
		statemachine.WithTransition(Draft, InReview, Submit),
		statemachine.WithTransition(InReview, Draft, Reject),
	)

	ctx := context.Background()
	events := []statemachine.Event{Submit, Reject, Submit, Reject, Submit}
	for _, ev := range events {
		if err := sm.Fire(ctx, ev, nil); err != nil {
			t.Fatalf("Fire(%s) failed: %v", ev.Name(), err)
		}
	}

	history := sm.History()
	if len(history) != 3 {
		t.Fatalf("Expected 3 retained records, got %d", len(history))
	}
	// The three most recent: submit, reject, submit.
	want := []string{"submit", "reject", "submit"}
	for i, rec := range history {
		if rec.Event != want[i] {
			t.Fatalf("history[%d].Event = %s, want %s", i, rec.Event, want[i])
		}
	}
}

func TestStatsDistributions(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	sm := statemachine.MustNew(Draft,
		statemachine.WithTransition(Draft, InReview, Submit),
		statemachine.WithTransition(InReview, Draft, Reject),
		statemachine.WithTransition(Draft, Published, Publish,
			statemachine.WithAction(func(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
				return boom
			}),
		),
	)

	ctx := context.Background()
	_ = sm.Fire(ctx, Submit, nil)  // success -> in_review
	_ = sm.Fire(ctx, Reject, nil)  // success -> draft
	_ = sm.Fire(ctx, Publish, nil) // failure

	stats := sm.Stats()
	if stats.Total != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Fatalf("Unexpected stats: %+v", stats)
	}
	if got := fmt.Sprintf("%.2f", stats.SuccessRate); got != "0.67" {
		t.Fatalf("SuccessRate = %s, want 0.67", got)
	}
	if stats.ByState["in_review"] != 1 || stats.ByState["draft"] != 1 {
		t.Fatalf("Unexpected ByState: %v", stats.ByState)
	}
	if stats.ByEvent["submit"] != 1 || stats.ByEvent["publish"] != 1 {
		t.Fatalf("Unexpected ByEvent: %v", stats.ByEvent)
	}
}

func TestBuilder(t *testing.T) {
	t.Parallel()

	t.Run("Fluent Construction", func(t *testing.T) {
		t.Parallel()
		sm, err := statemachine.NewBuilder(Draft).
			From(Draft).When(Submit).To(InReview).Add().
			From(InReview).When(Approve).To(Approved).Add().
			Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		ctx := context.Background()
		if err := sm.Fire(ctx, Submit, nil); err != nil {
			t.Fatalf("Fire failed: %v", err)
		}
		if err := sm.Fire(ctx, Approve, nil); err != nil {
			t.Fatalf("Fire failed: %v", err)
		}
		if sm.Current() != Approved {
			t.Fatalf("Expected %s, got %s", Approved, sm.Current())
		}
	})

	t.Run("Guards And Actions", func(t *testing.T) {
		t.Parallel()
		var ran bool
		sm, err := statemachine.NewBuilder(Draft).
			From(Draft).When(Submit).To(InReview).
			GuardedBy(func(ctx context.Context, from statemachine.State, event statemachine.Event, data any) bool {
				return true
			}).
			Do(func(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
				ran = true
				return nil
			}).
			Add().
			Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		if err := sm.Fire(context.Background(), Submit, nil); err != nil {
			t.Fatalf("Fire failed: %v", err)
		}
		if !ran {
			t.Fatal("Action did not run")
		}
	})

	t.Run("Nil State Is A Build Error", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.NewBuilder(Draft).
			From(Draft).When(Submit).Add(). // To never set
			Build()
		if err == nil {
			t.Fatal("Expected error for incomplete transition")
		}
	})
}

func TestDeterminism(t *testing.T) {
	t.Parallel()

	// Every declared (state, event) pair with a passing guard must land in
	// exactly the declared target, regardless of how often it is replayed.
	type edge struct {
		from  statemachine.State
		event statemachine.Event
		to    statemachine.State
	}
	edges := []edge{
		{Draft, Submit, InReview},
		{InReview, Approve, Approved},
		{Approved, Publish, Published},
		{Published, Reject, Draft},
	}

	var opts []statemachine.Option
	for _, e := range edges {
		opts = append(opts, statemachine.WithTransition(e.from, e.to, e.event))
	}

	ctx := context.Background()
	for range 5 {
		sm := statemachine.MustNew(Draft, opts...)
		for _, e := range edges {
			if sm.Current() != e.from {
				t.Fatalf("Expected %s before %s, got %s", e.from, e.event, sm.Current())
			}
			if err := sm.Fire(ctx, e.event, nil); err != nil {
				t.Fatalf("Fire(%s) failed: %v", e.event.Name(), err)
			}
			if sm.Current() != e.to {
				t.Fatalf("Fire(%s) landed in %s, want %s", e.event.Name(), sm.Current(), e.to)
			}
		}
	}
}
