// Package multitopic provides a client-side multi-topic consumer: a fan-in
// aggregator presenting one uniform message stream over many per-topic and
// per-partition subscriptions.
//
// The consumer manages a dynamic set of child single-topic consumers (grown
// at runtime for partition increases and pattern discovery), multiplexes
// their streams into a single FIFO with backpressure, serves interleaved
// single-message and bounded batch receives with cancellation, and routes
// acknowledgements, negative acks, seeks and redelivery back to the owning
// children. A deadline tracker redelivers messages not acknowledged in time.
//
// # Quick Start
//
//	cfg := multitopic.Config{SubscriptionName: "orders-sub"}
//	consumer, err := multitopic.NewConsumer(&cfg, lookup, factory,
//	    multitopic.PartitionedTopic{Topic: "persistent://tnt/ns/orders"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := consumer.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer consumer.Close(context.Background())
//
//	for {
//	    msg, err := consumer.Receive(ctx)
//	    if err != nil {
//	        break
//	    }
//	    process(msg)
//	    _ = consumer.Ack(ctx, msg.ID)
//	}
//
// # Design
//
// All consumer state lives behind one core loop goroutine; public methods
// post events and await one-shot replies, so no locks guard the queues and
// waiter lists. The poller paces itself against the core through a permit
// that is withheld from the moment the incoming queue fills to
// ReceiverQueueSize until it drains to its resume threshold.
//
// The transport layer is abstracted behind the types.ChildConsumer,
// types.ChildFactory and types.LookupService interfaces; this package
// contains no wire protocol.
//
// No ordering is promised across topics. Partition counts only ever grow;
// shrinking is refused.
package multitopic
