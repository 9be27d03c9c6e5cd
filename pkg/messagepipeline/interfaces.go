package messagepipeline

import (
	"context"
)

// MessageConsumer is a message source such as an MQTT subscription. It hands
// received messages to the pipeline through Messages.
type MessageConsumer interface {
	// Messages returns the channel pipeline workers receive from.
	Messages() <-chan Message
	// Start connects to the source and begins delivering messages.
	Start(ctx context.Context) error
	// Stop ceases consumption and closes the Messages channel.
	Stop(ctx context.Context) error
	// Done is closed once the consumer has completely shut down.
	Done() <-chan struct{}
}

// MessageTransformer turns a raw Message into a structured payload of type T.
//
// Returning skip=true acknowledges the message without processing it further;
// use it for messages that were rejected and already reported.
type MessageTransformer[T any] func(ctx context.Context, msg *Message) (payload *T, skip bool, err error)

// StreamProcessor handles transformed payloads one at a time. A returned
// error causes the pipeline to Nack the original message.
type StreamProcessor[T any] func(ctx context.Context, original Message, payload *T) error
