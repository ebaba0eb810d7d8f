// Package broadcast provides a small generic publish/subscribe hub used to
// announce state changes to zero or more observers.
//
// The contract is deliberately loose: delivery is best-effort and
// non-blocking. A subscriber that cannot keep up misses values instead of
// stalling the publisher, which makes Broadcast safe to call from hot paths
// such as state machine hooks. Consumers needing the authoritative current
// value should combine a subscription with a synchronous getter.
//
//	hub := broadcast.NewMemoryBroadcaster[string](8)
//	sub := hub.Subscribe(ctx)
//	go func() {
//	    for v := range sub.Receive() {
//	        fmt.Println("observed:", v)
//	    }
//	}()
//	_ = hub.Broadcast(ctx, "active")
package broadcast
