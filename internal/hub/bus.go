package hub

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bus is the cross-node broadcast layer. A publish to a room must reach every
// subscriber of that room on every gateway node. Publishes are at-most-once;
// reconnecting clients recover gaps through history pagination.
type Bus interface {
	Publish(ctx context.Context, room string, payload []byte) error
	NewSubscriber(ctx context.Context) Subscriber
}

// Subscriber is one connection's view of the bus: a dynamic room set and a
// single ordered stream of payloads.
type Subscriber interface {
	Join(room string) error
	Leave(room string) error
	Messages() <-chan []byte
	Close() error
}

// RedisBus keys redis pub/sub channels by room name. Each connection holds
// its own PubSub, so a node dropping off the bus takes only its own
// connections with it.
type RedisBus struct {
	sugar       *zap.SugaredLogger
	redisClient *redis.Client
}

func NewRedisBus(sugar *zap.SugaredLogger, redisClient *redis.Client) *RedisBus {
	return &RedisBus{sugar: sugar, redisClient: redisClient}
}

func (b *RedisBus) Publish(ctx context.Context, room string, payload []byte) error {
	publish := func() error {
		return b.redisClient.Publish(ctx, room, payload).Err()
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(publish, policy)
}

func (b *RedisBus) NewSubscriber(ctx context.Context) Subscriber {
	pubsub := b.redisClient.Subscribe(ctx)

	sub := &redisSubscriber{
		ctx:      ctx,
		pubsub:   pubsub,
		messages: make(chan []byte, sendBuffer),
	}
	go sub.pump()
	return sub
}

type redisSubscriber struct {
	ctx      context.Context
	pubsub   *redis.PubSub
	messages chan []byte
}

func (s *redisSubscriber) pump() {
	defer close(s.messages)
	channel := s.pubsub.Channel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-channel:
			if !ok {
				return
			}
			select {
			case s.messages <- []byte(msg.Payload):
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *redisSubscriber) Join(room string) error {
	return s.pubsub.Subscribe(s.ctx, room)
}

func (s *redisSubscriber) Leave(room string) error {
	return s.pubsub.Unsubscribe(s.ctx, room)
}

func (s *redisSubscriber) Messages() <-chan []byte {
	return s.messages
}

func (s *redisSubscriber) Close() error {
	return s.pubsub.Close()
}

// LocalBus is the self-contained replacement: one process, plain maps. Also
// what the tests run against.
type LocalBus struct {
	sugar *zap.SugaredLogger

	mutex sync.RWMutex
	rooms map[string]map[*localSubscriber]struct{}
}

func NewLocalBus(sugar *zap.SugaredLogger) *LocalBus {
	return &LocalBus{
		sugar: sugar,
		rooms: make(map[string]map[*localSubscriber]struct{}),
	}
}

func (b *LocalBus) Publish(ctx context.Context, room string, payload []byte) error {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for sub := range b.rooms[room] {
		select {
		case sub.messages <- payload:
		default:
			// at-most-once: a subscriber that can't keep up loses the frame
			b.sugar.Warnf("Dropping broadcast to a slow subscriber of room %s", room)
		}
	}
	return nil
}

func (b *LocalBus) NewSubscriber(ctx context.Context) Subscriber {
	return &localSubscriber{
		bus:      b,
		messages: make(chan []byte, sendBuffer),
		joined:   make(map[string]struct{}),
	}
}

type localSubscriber struct {
	bus      *LocalBus
	messages chan []byte

	mutex  sync.Mutex
	joined map[string]struct{}
	closed bool
}

func (s *localSubscriber) Join(room string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.joined[room] = struct{}{}

	s.bus.mutex.Lock()
	defer s.bus.mutex.Unlock()
	if s.bus.rooms[room] == nil {
		s.bus.rooms[room] = make(map[*localSubscriber]struct{})
	}
	s.bus.rooms[room][s] = struct{}{}
	return nil
}

func (s *localSubscriber) Leave(room string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.joined, room)

	s.bus.mutex.Lock()
	defer s.bus.mutex.Unlock()
	s.bus.removeLocked(room, s)
	return nil
}

func (s *localSubscriber) Messages() <-chan []byte {
	return s.messages
}

func (s *localSubscriber) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.bus.mutex.Lock()
	for room := range s.joined {
		s.bus.removeLocked(room, s)
	}
	s.bus.mutex.Unlock()

	close(s.messages)
	return nil
}

func (b *LocalBus) removeLocked(room string, sub *localSubscriber) {
	if subs, ok := b.rooms[room]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.rooms, room)
		}
	}
}
