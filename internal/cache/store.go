// Package cache persists the merged workflow collection per user.
package cache

// Op is the kind of change made to a key.
type Op int

const (
	OpSet Op = iota
	OpClear
)

// Event reports a change to a key. Delivery is best effort.
type Event struct {
	Key string
	Op  Op
}

// Store is a string-keyed blob store. Implementations must be safe for
// concurrent use and publish an Event after every Set and Clear.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Clear(key string) error
	Keys(prefix string) ([]string, error)
	Subscribe() <-chan Event
	Unsubscribe(ch <-chan Event)
}
