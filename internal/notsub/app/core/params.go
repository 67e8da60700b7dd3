package core

type SubscriberParams struct {
	Subscriber string
	Prefetch   int
}

// QueueName is the subscriber's own queue on the notifications fanout.
func (p SubscriberParams) QueueName() string {
	return "notifications." + p.Subscriber
}
