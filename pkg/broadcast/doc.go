// Package broadcast provides type-safe, topic-filtered message fan-out.
//
//	b := broadcast.NewMemoryBroadcaster[Event](16)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx, "twofactor.enabled", "twofactor.locked_out")
//	defer sub.Close()
//
//	for msg := range sub.Receive() {
//		handle(msg.Topic, msg.Data)
//	}
//
// A subscriber is removed when its context is cancelled, when its buffer is full at
// publish time, or when the broadcaster is closed. Broadcast never blocks.
package broadcast
