// Package ebus is the event bus connecting a diagnostic session to its
// consumers. The session publishes typed events; any number of
// subscribers (UI, logger, report writer) receive them without the
// session knowing about them.
package ebus

import (
	"errors"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type Topic string

const (
	TopicStatus   Topic = "status"
	TopicProgress Topic = "progress"
	TopicValue    Topic = "value"
	TopicResult   Topic = "result"
	TopicError    Topic = "error"
)

// Event carries primitive arguments so consumers stay decoupled from
// session internals. Text is set for status and error events, Value
// for progress and live values, Doc for the final result document.
type Event struct {
	Topic Topic
	Name  string
	Text  string
	Value float64
	Doc   any
}

var ErrBusFull = errors.New("publish channel full")

// Bus is a constructed event bus. Create one with New and share it by
// injection; there is no process-wide instance.
type Bus struct {
	subs      map[Topic][]chan Event
	subsMutex sync.Mutex

	subsAll      []chan Event
	subsAllMutex sync.Mutex

	inChan       chan Event
	unsubChan    chan chan Event
	unsubAllChan chan chan Event
	quitChan     chan struct{}

	cache     *ttlcache.Cache[Topic, Event]
	closeOnce sync.Once
}

func New() *Bus {
	b := &Bus{
		subs:         make(map[Topic][]chan Event),
		inChan:       make(chan Event, 100),
		unsubChan:    make(chan chan Event, 100),
		unsubAllChan: make(chan chan Event, 100),
		quitChan:     make(chan struct{}),
		cache: ttlcache.New[Topic, Event](
			ttlcache.WithTTL[Topic, Event](1 * time.Minute),
		),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	for {
		select {
		case <-b.quitChan:
			return
		case ev := <-b.inChan:
			b.cache.Set(ev.Topic, ev, ttlcache.DefaultTTL)
			b.subsAllMutex.Lock()
			for _, sub := range b.subsAll {
				select {
				case sub <- ev:
				default:
				}
			}
			b.subsAllMutex.Unlock()
			b.subsMutex.Lock()
			for _, sub := range b.subs[ev.Topic] {
				select {
				case sub <- ev:
				default:
				}
			}
			b.subsMutex.Unlock()
		case unsub := <-b.unsubAllChan:
			b.subsAllMutex.Lock()
			for i, sub := range b.subsAll {
				if sub == unsub {
					b.subsAll = append(b.subsAll[:i], b.subsAll[i+1:]...)
					close(sub)
					break
				}
			}
			b.subsAllMutex.Unlock()
		case unsub := <-b.unsubChan:
			b.subsMutex.Lock()
		outer:
			for topic, subz := range b.subs {
				for i, sub := range subz {
					if sub == unsub {
						b.subs[topic] = append(subz[:i], subz[i+1:]...)
						close(unsub)
						if len(b.subs[topic]) == 0 {
							delete(b.subs, topic)
						}
						break outer
					}
				}
			}
			b.subsMutex.Unlock()
		}
	}
}

// Publish is non-blocking; a full bus drops the event and reports
// ErrBusFull rather than stalling the session worker.
func (b *Bus) Publish(ev Event) error {
	select {
	case b.inChan <- ev:
		return nil
	default:
		return ErrBusFull
	}
}

// Subscribe returns a channel of events for one topic. The last event
// published on the topic, if still cached, is replayed first.
func (b *Bus) Subscribe(topic Topic) chan Event {
	respChan := make(chan Event, 100)
	b.subsMutex.Lock()
	b.subs[topic] = append(b.subs[topic], respChan)
	b.subsMutex.Unlock()
	if itm := b.cache.Get(topic); itm != nil {
		respChan <- itm.Value()
	}
	return respChan
}

// SubscribeAll returns a channel receiving every event, replaying the
// cached last event per topic first.
func (b *Bus) SubscribeAll() chan Event {
	respChan := make(chan Event, 100)
	b.subsAllMutex.Lock()
	b.subsAll = append(b.subsAll, respChan)
	b.subsAllMutex.Unlock()

	b.cache.Range(func(item *ttlcache.Item[Topic, Event]) bool {
		respChan <- item.Value()
		return true
	})
	return respChan
}

// SubscribeFunc runs f for every event on topic and returns an
// unsubscribe function.
func (b *Bus) SubscribeFunc(topic Topic, f func(Event)) func() {
	respChan := b.Subscribe(topic)
	go func() {
		for ev := range respChan {
			f(ev)
		}
	}()
	return func() {
		b.Unsubscribe(respChan)
	}
}

func (b *Bus) Unsubscribe(channel chan Event) {
	b.unsubChan <- channel
}

func (b *Bus) UnsubscribeAll(channel chan Event) {
	b.unsubAllChan <- channel
}

// Close stops the dispatch loop. Subscriber channels are not closed;
// Close is for teardown, not for signalling end of stream.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.quitChan)
	})
}
