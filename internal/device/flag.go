// Package device assembles the gateway and the remote from their parts and
// drives them from a single control loop. Events from other goroutines, such
// as signals or console input, only set flags that the loop consumes.
package device

// Flag is a sticky event flag with one producer and one consumer. Setting it
// repeatedly before it is taken records a single event.
type Flag struct {
	c chan struct{}
}

func NewFlag() *Flag {
	return &Flag{c: make(chan struct{}, 1)}
}

// Set raises the flag. It never blocks.
func (f *Flag) Set() {
	select {
	case f.c <- struct{}{}:
	default:
	}
}

// Take reports whether the flag was raised and lowers it
func (f *Flag) Take() bool {
	select {
	case <-f.c:
		return true
	default:
		return false
	}
}
