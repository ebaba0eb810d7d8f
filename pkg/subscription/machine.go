package subscription

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rethinkdns/substate/pkg/async"
	"github.com/rethinkdns/substate/pkg/broadcast"
	"github.com/rethinkdns/substate/pkg/logger"
	"github.com/rethinkdns/substate/pkg/statemachine"
)

// Machine drives the subscription lifecycle. It owns a state machine engine
// configured with the full transition table, persists every completed
// transition through its SyncService, pushes proxy side effects to the
// RPNManager as background tasks and broadcasts state changes to
// subscribers.
//
// All public trigger methods are safe for concurrent use. Invalid events,
// meaning events the current state has no transition for, are ignored and
// return nil; only action failures surface as errors.
type Machine struct {
	engine statemachine.StateMachine
	sync   *SyncService
	rpn    RPNManager
	log    *slog.Logger
	states *broadcast.MemoryBroadcaster[State]

	bgCtx    context.Context
	bgCancel context.CancelFunc
	closed   atomic.Bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Machine) {
		if log != nil {
			m.log = log
		}
	}
}

// WithRPN sets the proxy manager receiving activation side effects.
func WithRPN(rpn RPNManager) Option {
	return func(m *Machine) {
		if rpn != nil {
			m.rpn = rpn
		}
	}
}

// New creates a subscription machine in the Uninitialized state. It panics
// if sync is nil, as this is a programming error. Call Initialize to load
// persisted state, and Close when done.
func New(syncSvc *SyncService, opts ...Option) *Machine {
	if syncSvc == nil {
		panic("subscription: sync service is required")
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	m := &Machine{
		sync:     syncSvc,
		rpn:      NoopRPN{},
		log:      slog.Default(),
		states:   broadcast.NewMemoryBroadcaster[State](8),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	// Tag every log line with the machine instance; tests and multi-account
	// setups run several machines in one process.
	m.log = m.log.With(slog.String("machine_id", uuid.NewString()))
	m.engine = statemachine.MustNew(StateUninitialized, m.transitions()...)
	return m
}

// transitions builds the full lifecycle table. Actions run before the state
// advances, so a failed persistence step leaves the machine where it was.
func (m *Machine) transitions() []statemachine.Option {
	hasPurchase := statemachine.WithGuard(func(_ context.Context, _ statemachine.State, event statemachine.Event, _ any) bool {
		ev, ok := event.(Event)
		return ok && ev.Purchase != nil && ev.Purchase.PurchaseToken != ""
	})

	return []statemachine.Option{
		statemachine.WithTransition(StateUninitialized, StateInitial, NewEvent(EventInitialize)),

		statemachine.WithTransition(StateInitial, StateInitial, NewEvent(EventInitialize)),
		statemachine.WithTransition(StateInitial, StatePurchaseInitiated, NewEvent(EventPurchaseInitiated),
			statemachine.WithAction(m.actionBeginPurchase)),
		statemachine.WithTransition(StateInitial, StateActive, NewEvent(EventPaymentSuccessful),
			hasPurchase, statemachine.WithAction(m.actionActivate)),
		statemachine.WithTransition(StateInitial, StateCancelled, NewEvent(EventUserCancelled),
			statemachine.WithAction(m.actionCancel)),
		statemachine.WithTransition(StateInitial, StateExpired, NewEvent(EventSubscriptionExpired),
			statemachine.WithAction(m.actionExpire)),
		statemachine.WithTransition(StateInitial, StateError, NewEvent(EventBillingError),
			statemachine.WithAction(m.actionRecordFailure)),
		statemachine.WithTransition(StateInitial, StateInitial, NewEvent(EventSystemCheck),
			statemachine.WithAction(m.actionSystemCheck)),

		statemachine.WithTransition(StatePurchaseInitiated, StatePurchasePending, NewEvent(EventPurchaseCompleted),
			hasPurchase, statemachine.WithAction(m.actionRecordPurchase)),
		statemachine.WithTransition(StatePurchaseInitiated, StateActive, NewEvent(EventPaymentSuccessful),
			hasPurchase, statemachine.WithAction(m.actionActivate)),
		statemachine.WithTransition(StatePurchaseInitiated, StateInitial, NewEvent(EventUserCancelled),
			statemachine.WithAction(m.actionAbandonPurchase)),
		statemachine.WithTransition(StatePurchaseInitiated, StateError, NewEvent(EventPurchaseFailed),
			statemachine.WithAction(m.actionRecordFailure)),
		statemachine.WithTransition(StatePurchaseInitiated, StateError, NewEvent(EventBillingError),
			statemachine.WithAction(m.actionRecordFailure)),

		statemachine.WithTransition(StatePurchasePending, StateActive, NewEvent(EventPaymentSuccessful),
			hasPurchase, statemachine.WithAction(m.actionActivate)),
		statemachine.WithTransition(StatePurchasePending, StateInitial, NewEvent(EventUserCancelled),
			statemachine.WithAction(m.actionAbandonPurchase)),
		statemachine.WithTransition(StatePurchasePending, StateError, NewEvent(EventBillingError),
			statemachine.WithAction(m.actionRecordFailure)),

		statemachine.WithTransition(StateActive, StateCancelled, NewEvent(EventUserCancelled),
			statemachine.WithAction(m.actionCancel)),
		statemachine.WithTransition(StateActive, StateExpired, NewEvent(EventSubscriptionExpired),
			statemachine.WithAction(m.actionExpire)),
		statemachine.WithTransition(StateActive, StateRevoked, NewEvent(EventSubscriptionRevoked),
			statemachine.WithAction(m.actionRevoke)),
		statemachine.WithTransition(StateActive, StateActive, NewEvent(EventPaymentSuccessful),
			hasPurchase, statemachine.WithAction(m.actionActivate)),
		statemachine.WithTransition(StateActive, StateError, NewEvent(EventDatabaseError),
			statemachine.WithAction(m.actionRecordFailure)),

		statemachine.WithTransition(StateCancelled, StateExpired, NewEvent(EventSubscriptionExpired),
			statemachine.WithAction(m.actionExpire)),
		statemachine.WithTransition(StateCancelled, StateRevoked, NewEvent(EventSubscriptionRevoked),
			statemachine.WithAction(m.actionRevoke)),
		statemachine.WithTransition(StateCancelled, StatePurchaseInitiated, NewEvent(EventPurchaseInitiated),
			statemachine.WithAction(m.actionBeginPurchase)),
		statemachine.WithTransition(StateCancelled, StateInitial, NewEvent(EventSystemCheck),
			statemachine.WithAction(m.actionSystemCheck)),

		statemachine.WithTransition(StateExpired, StatePurchaseInitiated, NewEvent(EventPurchaseInitiated),
			statemachine.WithAction(m.actionBeginPurchase)),
		statemachine.WithTransition(StateExpired, StateActive, NewEvent(EventSubscriptionRestored),
			hasPurchase, statemachine.WithAction(m.actionActivate)),
		statemachine.WithTransition(StateExpired, StateInitial, NewEvent(EventSystemCheck),
			statemachine.WithAction(m.actionSystemCheck)),

		statemachine.WithTransition(StateRevoked, StatePurchaseInitiated, NewEvent(EventPurchaseInitiated),
			statemachine.WithAction(m.actionBeginPurchase)),
		statemachine.WithTransition(StateRevoked, StateActive, NewEvent(EventSubscriptionRestored),
			hasPurchase, statemachine.WithAction(m.actionActivate)),
		statemachine.WithTransition(StateRevoked, StateInitial, NewEvent(EventSystemCheck),
			statemachine.WithAction(m.actionSystemCheck)),

		statemachine.WithTransition(StateError, StateInitial, NewEvent(EventErrorRecovered)),
		statemachine.WithTransition(StateError, StatePurchaseInitiated, NewEvent(EventPurchaseInitiated),
			statemachine.WithAction(m.actionBeginPurchase)),
		statemachine.WithTransition(StateError, StateInitial, NewEvent(EventSystemCheck),
			statemachine.WithAction(m.actionSystemCheck)),

		statemachine.OnStateChanged(m.onStateChanged),
		statemachine.OnInvalidTransition(m.onInvalidTransition),
		statemachine.OnTransitionFailed(m.onTransitionFailed),
	}
}

// Initialize moves the machine out of Uninitialized and restores persisted
// state by replaying synthetic events. No state is ever force-set.
func (m *Machine) Initialize(ctx context.Context) error {
	if m.closed.Load() {
		return ErrMachineClosed
	}
	if err := m.fire(ctx, NewEvent(EventInitialize), nil); err != nil {
		return err
	}
	return m.restore(ctx)
}

// StartPurchase begins a purchase flow.
func (m *Machine) StartPurchase(ctx context.Context) error {
	return m.fire(ctx, NewEvent(EventPurchaseInitiated), nil)
}

// CompletePurchase records a purchase the provider has accepted but not yet
// acknowledged.
func (m *Machine) CompletePurchase(ctx context.Context, detail *PurchaseDetail) error {
	if detail == nil {
		return ErrPurchaseDetailRequired
	}
	return m.fire(ctx, NewPurchaseEvent(EventPurchaseCompleted, detail), m.nextData(detail))
}

// PaymentSuccessful activates the subscription for an acknowledged payment.
// It also handles renewals while already active.
func (m *Machine) PaymentSuccessful(ctx context.Context, detail *PurchaseDetail) error {
	if detail == nil {
		return ErrPurchaseDetailRequired
	}
	return m.fire(ctx, NewPurchaseEvent(EventPaymentSuccessful, detail), m.nextData(detail))
}

// PurchaseFailed records a failed purchase attempt.
func (m *Machine) PurchaseFailed(ctx context.Context, cause error, result *BillingResult) error {
	return m.fire(ctx, NewErrorEvent(EventPurchaseFailed, cause, result), nil)
}

// BillingError records a provider-side billing failure.
func (m *Machine) BillingError(ctx context.Context, cause error, result *BillingResult) error {
	return m.fire(ctx, NewErrorEvent(EventBillingError, cause, result), nil)
}

// DatabaseError reports a persistence failure detected outside a
// transition, for example by a background sync, while the subscription is
// active.
func (m *Machine) DatabaseError(ctx context.Context, cause error) error {
	return m.fire(ctx, NewErrorEvent(EventDatabaseError, cause, nil), nil)
}

// UserCancelled handles a user-driven cancellation. From Active the paid
// period keeps running as a grace period; from a purchase flow it abandons
// the purchase.
func (m *Machine) UserCancelled(ctx context.Context) error {
	return m.fire(ctx, NewEvent(EventUserCancelled), nil)
}

// SubscriptionExpired handles the end of the paid period.
func (m *Machine) SubscriptionExpired(ctx context.Context) error {
	return m.fire(ctx, NewEvent(EventSubscriptionExpired), nil)
}

// SubscriptionRevoked handles a provider-side revocation, such as a refund
// or chargeback.
func (m *Machine) SubscriptionRevoked(ctx context.Context, reason string) error {
	ev := NewEvent(EventSubscriptionRevoked)
	ev.Reason = reason
	return m.fire(ctx, ev, nil)
}

// RestoreSubscription reactivates a lapsed subscription from a fresh
// provider purchase.
func (m *Machine) RestoreSubscription(ctx context.Context, detail *PurchaseDetail) error {
	if detail == nil {
		return ErrPurchaseDetailRequired
	}
	return m.fire(ctx, NewPurchaseEvent(EventSubscriptionRestored, detail), m.nextData(detail))
}

// RecoverFromError routes the machine out of the Error state.
func (m *Machine) RecoverFromError(ctx context.Context) error {
	return m.fire(ctx, NewEvent(EventErrorRecovered), nil)
}

// SystemCheck sweeps lapsed rows and routes recoverable states back to
// Initial so the machine can never deadlock.
func (m *Machine) SystemCheck(ctx context.Context) error {
	return m.fire(ctx, NewEvent(EventSystemCheck), nil)
}

// CurrentState returns the lifecycle state.
func (m *Machine) CurrentState() State {
	return State(m.engine.Current().Name())
}

// CurrentData returns the machine's subscription payload, or nil before any
// purchase or restoration populated it.
func (m *Machine) CurrentData() *SubscriptionData {
	data, _ := m.engine.Data().(*SubscriptionData)
	return data
}

// LastError returns the failure recorded by the most recent trigger, or nil.
func (m *Machine) LastError() error {
	return m.engine.LastError()
}

// IsSubscriptionActive reports whether the subscription is paid and usable.
func (m *Machine) IsSubscriptionActive() bool {
	return m.CurrentState().IsActive()
}

// CanMakePurchase reports whether a new purchase flow may start now.
func (m *Machine) CanMakePurchase() bool {
	return m.CurrentState().CanMakePurchase()
}

// HasValidSubscription reports whether the account still has entitlements,
// including the grace period after a cancellation.
func (m *Machine) HasValidSubscription() bool {
	return m.CurrentState().HasValidSubscription()
}

// History returns the machine's transition audit trail, oldest first.
func (m *Machine) History() []statemachine.TransitionRecord {
	return m.engine.History()
}

// Stats aggregates the transition history.
func (m *Machine) Stats() statemachine.Stats {
	return m.engine.Stats()
}

// ValidEvents returns the event names accepted in the current state.
func (m *Machine) ValidEvents() []string {
	return m.engine.ValidEvents()
}

// SubscribeStates returns a subscriber receiving every state change until
// ctx is done, the subscriber is closed or the machine is closed. Slow
// consumers are dropped rather than blocking the machine.
func (m *Machine) SubscribeStates(ctx context.Context) broadcast.Subscriber[State] {
	return m.states.Subscribe(ctx)
}

// Close cancels background tasks and closes the state stream. The machine
// rejects further triggers afterwards.
func (m *Machine) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.bgCancel()
	return m.states.Close()
}

// fire delivers an event to the engine. Invalid input is routine and
// swallowed here; the invalid-transition hook has already logged it.
func (m *Machine) fire(ctx context.Context, ev Event, data *SubscriptionData) error {
	if m.closed.Load() {
		return ErrMachineClosed
	}
	var payload any
	if data != nil {
		payload = data
	}
	if err := m.engine.Fire(ctx, ev, payload); err != nil {
		if statemachine.IsInvalidInputError(err) {
			return nil
		}
		return err
	}
	return nil
}

// nextData builds the payload for an event carrying a purchase, keeping the
// persisted row from the previous payload, if any.
func (m *Machine) nextData(detail *PurchaseDetail) *SubscriptionData {
	data := &SubscriptionData{Purchase: detail, UpdatedAt: time.Now()}
	if cur := m.CurrentData(); cur != nil {
		data.Status = cur.Status
	}
	return data
}

// restore loads the persisted row, derives the recommended state and
// replays the synthetic event that normally produces it.
func (m *Machine) restore(ctx context.Context) error {
	restored, err := m.sync.LoadStateFromDatabase(ctx)
	if err != nil {
		m.log.ErrorContext(ctx, "failed to load persisted subscription", logger.Error(err))
		return err
	}
	if restored == nil || restored.Status == nil {
		return nil
	}

	detail := purchaseFromStatus(restored.Status)
	m.engine.UpdateData(&SubscriptionData{
		Status:    restored.Status,
		Purchase:  detail,
		UpdatedAt: restored.LastTransitionAt,
	})

	reason := "restored from database"
	replay := func(ev Event) error {
		ev.Reason = reason
		return m.fire(ctx, ev, nil)
	}

	switch restored.State {
	case StateActive:
		return replay(NewPurchaseEvent(EventPaymentSuccessful, detail))
	case StateCancelled:
		return replay(NewEvent(EventUserCancelled))
	case StateExpired:
		return replay(NewEvent(EventSubscriptionExpired))
	case StateRevoked:
		return replay(NewEvent(EventSubscriptionRevoked))
	case StatePurchasePending:
		if err := replay(NewEvent(EventPurchaseInitiated)); err != nil {
			return err
		}
		return replay(NewPurchaseEvent(EventPurchaseCompleted, detail))
	default:
		return nil
	}
}

func purchaseFromStatus(row *SubscriptionStatus) *PurchaseDetail {
	return &PurchaseDetail{
		ProductID:     row.ProductID,
		PlanID:        row.PlanID,
		PurchaseToken: row.PurchaseToken,
		AccountID:     row.AccountID,
		Payload:       row.Payload,
		BillingExpiry: row.BillingExpiry,
	}
}

func domainStates(from, to statemachine.State) (State, State) {
	return State(from.Name()), State(to.Name())
}

func domainEvent(event statemachine.Event) Event {
	ev, _ := event.(Event)
	return ev
}

func subData(data any) *SubscriptionData {
	d, _ := data.(*SubscriptionData)
	return d
}

// --- transition actions ---

// actionBeginPurchase only marks the flow as started; nothing is persisted
// until the provider hands back a purchase.
func (m *Machine) actionBeginPurchase(ctx context.Context, from, to statemachine.State, _ statemachine.Event, _ any) error {
	m.log.InfoContext(ctx, "purchase flow started", logger.Transition(from.Name(), to.Name()))
	return nil
}

// actionRecordPurchase upserts the provider purchase and records the move
// into the pending state.
func (m *Machine) actionRecordPurchase(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
	ev := domainEvent(event)
	d := subData(data)

	row, err := m.sync.SavePurchaseDetail(ctx, ev.Purchase)
	if err != nil {
		return err
	}
	if d != nil {
		d.Status = row
		d.Purchase = ev.Purchase
	}

	fromState, toState := domainStates(from, to)
	if err := m.sync.SaveStateTransition(ctx, fromState, toState, d, TransitionReason(ev)); err != nil {
		return err
	}

	detail := ev.Purchase
	async.Fire(m.bgCtx, detail, func(ctx context.Context, p *PurchaseDetail) error {
		return m.rpn.ProcessPurchase(ctx, p, StatusAckPending)
	}, m.bgErrorLogger(ctx, "rpn process purchase"))
	return nil
}

// actionActivate persists the purchase, resolves expiry and session token
// from the provider payload, records the transition and enables the proxy
// in the background.
func (m *Machine) actionActivate(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
	ev := domainEvent(event)
	d := subData(data)

	row, err := m.sync.SavePurchaseDetail(ctx, ev.Purchase)
	if err != nil {
		return err
	}

	billing := row.BillingExpiry
	if expiry, err := m.rpn.ExpiryFromPayload(ev.Purchase.Payload); err == nil && !expiry.IsZero() {
		billing = expiry
	}
	if !ev.Purchase.BillingExpiry.IsZero() {
		billing = ev.Purchase.BillingExpiry
	}
	if token, err := m.rpn.SessionTokenFromPayload(ev.Purchase.Payload); err == nil && token != "" {
		row.SessionToken = token
	}
	if !billing.Equal(row.BillingExpiry) {
		if err := m.sync.UpdateSubscriptionExpiry(ctx, row.ID, billing, row.AccountExpiry); err != nil {
			return err
		}
		row.BillingExpiry = billing
	}

	if d != nil {
		d.Status = row
		d.Purchase = ev.Purchase
	}

	fromState, toState := domainStates(from, to)
	if err := m.sync.SaveStateTransition(ctx, fromState, toState, d, TransitionReason(ev)); err != nil {
		return err
	}

	detail := ev.Purchase
	async.Fire(m.bgCtx, detail, func(ctx context.Context, p *PurchaseDetail) error {
		if err := m.rpn.ProcessPurchase(ctx, p, StatusActive); err != nil {
			return err
		}
		return m.rpn.Activate(ctx, p)
	}, m.bgErrorLogger(ctx, "rpn activate"))
	return nil
}

// actionCancel records a cancellation. Paid time keeps running, so the
// proxy stays up until expiry.
func (m *Machine) actionCancel(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
	fromState, toState := domainStates(from, to)
	return m.sync.SaveStateTransition(ctx, fromState, toState, subData(data), TransitionReason(domainEvent(event)))
}

// actionAbandonPurchase returns an unfinished purchase flow to Initial.
func (m *Machine) actionAbandonPurchase(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
	ev := domainEvent(event)
	reason := ev.Reason
	if reason == "" {
		reason = "purchase abandoned by user"
	}
	ev.Reason = reason
	fromState, toState := domainStates(from, to)
	return m.sync.SaveStateTransition(ctx, fromState, toState, subData(data), TransitionReason(ev))
}

// actionExpire records the end of the paid period and tears the proxy down
// in the background.
func (m *Machine) actionExpire(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
	ev := domainEvent(event)
	fromState, toState := domainStates(from, to)
	if err := m.sync.SaveStateTransition(ctx, fromState, toState, subData(data), TransitionReason(ev)); err != nil {
		return err
	}
	async.Fire(m.bgCtx, TransitionReason(ev), m.rpn.Deactivate, m.bgErrorLogger(ctx, "rpn deactivate"))
	return nil
}

// actionRevoke flags the row as revoked with the provider's reason and
// tears the proxy down in the background.
func (m *Machine) actionRevoke(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
	ev := domainEvent(event)
	reason := ev.Reason
	if reason == "" {
		reason = "revoked by billing provider"
	}

	d := subData(data)
	if d != nil && d.Status != nil {
		fromState, _ := domainStates(from, to)
		if err := m.sync.MarkSubscriptionRevoked(ctx, d.Status.ID, fromState.StatusCode(), reason); err != nil {
			return err
		}
		d.Status.Status = StatusRevoked
		d.UpdatedAt = time.Now()
	}

	async.Fire(m.bgCtx, reason, m.rpn.Deactivate, m.bgErrorLogger(ctx, "rpn deactivate"))
	return nil
}

// actionRecordFailure audits a failure. The audit is best effort: an
// unreachable store must not keep the machine out of the Error state.
func (m *Machine) actionRecordFailure(ctx context.Context, from, _ statemachine.State, event statemachine.Event, _ any) error {
	ev := domainEvent(event)
	fromState := State(from.Name())
	if err := m.sync.SavePurchaseFailureHistory(ctx, fromState, TransitionReason(ev)); err != nil {
		m.log.WarnContext(ctx, "failed to record purchase failure", logger.Error(err))
	}
	return nil
}

// actionSystemCheck sweeps lapsed rows. The sweep is best effort; the
// machine must reach Initial even when the store is unreachable.
func (m *Machine) actionSystemCheck(ctx context.Context, _, _ statemachine.State, _ statemachine.Event, _ any) error {
	count, err := m.sync.PerformSystemCheck(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "system check sweep failed", logger.Error(err))
		return nil
	}
	m.log.DebugContext(ctx, "system check completed", slog.Int64("expired", count))
	return nil
}

// --- engine hooks; these run under the engine lock and must not re-enter it ---

func (m *Machine) onStateChanged(ctx context.Context, from, to statemachine.State, event statemachine.Event) {
	m.log.InfoContext(ctx, "subscription state changed",
		logger.Transition(from.Name(), to.Name()),
		logger.Event(event.Name()),
	)
	_ = m.states.Broadcast(ctx, State(to.Name()))
}

func (m *Machine) onInvalidTransition(ctx context.Context, current statemachine.State, event statemachine.Event) {
	m.log.DebugContext(ctx, "event ignored in current state",
		logger.State(current.Name()),
		logger.Event(event.Name()),
	)
}

func (m *Machine) onTransitionFailed(ctx context.Context, from statemachine.State, event statemachine.Event, err error) {
	m.log.ErrorContext(ctx, "subscription transition failed",
		logger.State(from.Name()),
		logger.Event(event.Name()),
		logger.Error(err),
	)
}

func (m *Machine) bgErrorLogger(ctx context.Context, task string) func(error) {
	return func(err error) {
		m.log.WarnContext(ctx, "background task failed",
			slog.String("task", task),
			logger.Error(err),
		)
	}
}
