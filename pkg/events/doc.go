/*
Package events provides in-process pub/sub for deployment lifecycle events.

Every orchestrator operation publishes its progress (deploy started, build
succeeded, health failed, switch completed, rollback started...) to a
Broker. Subscribers receive events on buffered channels; a slow subscriber
is skipped rather than allowed to block a deploy.

Consumers today are the metrics collectors (counting outcomes) and the
serve command's status payload, which keeps a Ring of recent events.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for event := range sub {
			fmt.Printf("%s %s %s\n", event.Timestamp, event.Type, event.Color)
		}
	}()

	broker.Publish(&events.Event{
		Type:  events.EventSwitchCompleted,
		Color: types.ColorGreen,
	})

Delivery is best-effort fan-out. The durable audit trail is the state
store's history bucket, not this broker.
*/
package events
