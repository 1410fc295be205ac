package multitopic

import "context"

// poll pulls from the merged stream and hands each result to the core loop,
// then waits for the permit before the next pull. The permit wait is the
// backpressure mechanism: the core withholds it once the incoming queue
// reaches ReceiverQueueSize and releases it when the queue has drained to the
// resume threshold.
//
// The poller owns no consumer state. Its context is cancelled by
// stopConsumer; after cancellation it emits nothing.
func (c *Consumer) poll(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := c.merged.Next(ctx)
		if err != nil {
			return
		}
		permit := make(chan struct{}, 1)
		select {
		case c.mailbox <- evMessageReceived{res: res, permit: permit}:
		case <-ctx.Done():
			return
		}
		select {
		case <-permit:
		case <-ctx.Done():
			return
		}
	}
}
