package messagepipeline_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-mqttinflux/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamTestPayload struct {
	Data string
}

func newTestStreamingService(
	t *testing.T,
	cfg messagepipeline.StreamingServiceConfig,
	processor messagepipeline.StreamProcessor[streamTestPayload],
) (*messagepipeline.StreamingService[streamTestPayload], *MockMessageConsumer) {
	consumer := NewMockMessageConsumer(10)
	t.Cleanup(consumer.Close)

	transformer := func(ctx context.Context, msg *messagepipeline.Message) (*streamTestPayload, bool, error) {
		switch string(msg.Payload) {
		case "skip":
			return nil, true, nil
		case "transform_error":
			return nil, false, errors.New("transformation failed")
		}
		return &streamTestPayload{Data: string(msg.Payload)}, false, nil
	}

	service, err := messagepipeline.NewStreamingService[streamTestPayload](cfg, consumer, transformer, processor, zerolog.Nop())
	require.NoError(t, err)
	return service, consumer
}

func newTestMessage(payload string, ack, nack func()) messagepipeline.Message {
	return messagepipeline.Message{
		MessageData: messagepipeline.MessageData{Payload: []byte(payload)},
		Attributes:  map[string]string{messagepipeline.TopicAttribute: "test/device/SENSOR"},
		Ack:         ack,
		Nack:        nack,
	}
}

func TestNewStreamingService_Validation(t *testing.T) {
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error { return nil }
	transformer := func(ctx context.Context, msg *messagepipeline.Message) (*streamTestPayload, bool, error) { return nil, true, nil }
	consumer := NewMockMessageConsumer(0)

	_, err := messagepipeline.NewStreamingService[streamTestPayload](messagepipeline.StreamingServiceConfig{}, nil, transformer, processor, zerolog.Nop())
	assert.Error(t, err)
	_, err = messagepipeline.NewStreamingService[streamTestPayload](messagepipeline.StreamingServiceConfig{}, consumer, nil, processor, zerolog.Nop())
	assert.Error(t, err)
	_, err = messagepipeline.NewStreamingService[streamTestPayload](messagepipeline.StreamingServiceConfig{}, consumer, transformer, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestStreamingService_Lifecycle(t *testing.T) {
	// Arrange
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		return nil
	}
	service, consumer := newTestStreamingService(t, messagepipeline.StreamingServiceConfig{}, processor)

	serviceCtx, serviceCancel := context.WithCancel(context.Background())
	defer serviceCancel()

	// Act
	err := service.Start(serviceCtx)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, consumer.GetStartCount())

	// Act
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	err = service.Stop(stopCtx)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, consumer.GetStopCount())
}

func TestStreamingService_StartError(t *testing.T) {
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		return nil
	}
	service, consumer := newTestStreamingService(t, messagepipeline.StreamingServiceConfig{}, processor)
	consumer.SetStartError(errors.New("broker unreachable"))

	err := service.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")
}

func TestStreamingService_ProcessMessage_Success(t *testing.T) {
	// Arrange
	var processorCalled atomic.Int32
	var receivedPayload *streamTestPayload
	var mu sync.Mutex

	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		mu.Lock()
		receivedPayload = payload
		mu.Unlock()
		processorCalled.Add(1)
		return nil
	}
	service, consumer := newTestStreamingService(t, messagepipeline.StreamingServiceConfig{}, processor)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, service.Start(ctx))

	var ackCalled atomic.Bool
	// Act
	consumer.Push(newTestMessage("original", func() { ackCalled.Store(true) }, func() { t.Error("Nack was called unexpectedly") }))

	// Assert
	require.Eventually(t, func() bool {
		return processorCalled.Load() == 1
	}, time.Second, 10*time.Millisecond, "Processor was not called in time")

	mu.Lock()
	assert.Equal(t, "original", receivedPayload.Data)
	mu.Unlock()

	require.Eventually(t, ackCalled.Load, time.Second, 10*time.Millisecond, "Ack was not called")
}

func TestStreamingService_ProcessMessage_TransformerError(t *testing.T) {
	// Arrange
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		t.Error("Processor should not be called when transformer fails")
		return nil
	}
	service, consumer := newTestStreamingService(t, messagepipeline.StreamingServiceConfig{}, processor)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, service.Start(ctx))

	var nackCalled atomic.Bool
	// Act
	consumer.Push(newTestMessage("transform_error", func() { t.Error("Ack was called unexpectedly") }, func() { nackCalled.Store(true) }))

	// Assert
	require.Eventually(t, nackCalled.Load, time.Second, 10*time.Millisecond, "Nack was not called on transformer error")
}

func TestStreamingService_ProcessMessage_Skip(t *testing.T) {
	// Arrange
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		t.Error("Processor should not be called for a skipped message")
		return nil
	}
	service, consumer := newTestStreamingService(t, messagepipeline.StreamingServiceConfig{}, processor)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, service.Start(ctx))

	var ackCalled atomic.Bool
	// Act
	consumer.Push(newTestMessage("skip", func() { ackCalled.Store(true) }, func() { t.Error("Nack was called unexpectedly") }))

	// Assert
	require.Eventually(t, ackCalled.Load, time.Second, 10*time.Millisecond, "Ack was not called for skipped message")
}

func TestStreamingService_ProcessMessage_ProcessorError(t *testing.T) {
	// Arrange
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		return errors.New("sink rejected write")
	}
	service, consumer := newTestStreamingService(t, messagepipeline.StreamingServiceConfig{}, processor)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, service.Start(ctx))

	var nackCalled atomic.Bool
	// Act
	consumer.Push(newTestMessage("data", func() { t.Error("Ack was called unexpectedly") }, func() { nackCalled.Store(true) }))

	// Assert
	require.Eventually(t, nackCalled.Load, time.Second, 10*time.Millisecond, "Nack was not called on processor error")
}

func TestStreamingService_SingleWorkerPreservesOrder(t *testing.T) {
	// Arrange
	var mu sync.Mutex
	var seen []string
	processor := func(ctx context.Context, original messagepipeline.Message, payload *streamTestPayload) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen = append(seen, payload.Data)
		mu.Unlock()
		return nil
	}
	service, consumer := newTestStreamingService(t, messagepipeline.StreamingServiceConfig{}, processor)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, service.Start(ctx))

	// Act
	want := make([]string, 10)
	for i := range want {
		want[i] = strconv.Itoa(i)
		consumer.Push(newTestMessage(want[i], nil, nil))
	}

	// Assert
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(want)
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, want, seen)
	mu.Unlock()
}
