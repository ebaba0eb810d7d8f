// Package subscription implements the subscription lifecycle for the
// device: a typed state machine over the purchase, activation, grace,
// expiry and revocation flow, kept in sync with a persistent store and
// restored across restarts by replaying synthetic events.
//
// The Machine is the single entry point. External inputs, billing provider
// webhooks, user actions and periodic system checks, arrive as events; the
// transition table decides what they mean in the current state. Persistence
// runs inside transition actions, before the state advances, so a failed
// write leaves the machine where it was and the database never claims a
// state the machine did not reach. Proxy side effects are fire-and-forget
// background tasks and can neither block nor revert a transition.
//
// Basic usage:
//
//	store := subscription.NewMemStore()
//	history := subscription.NewMemHistoryStore()
//	svc := subscription.NewSyncService(store, history)
//
//	m := subscription.New(svc, subscription.WithRPN(rpn))
//	defer m.Close()
//
//	if err := m.Initialize(ctx); err != nil {
//		return err
//	}
//	if m.CanMakePurchase() {
//		_ = m.StartPurchase(ctx)
//	}
//
// Events the current state has no transition for are ignored: the trigger
// method returns nil and the machine stays put. Only action failures, a
// persistence write that did not go through, surface as errors.
package subscription
