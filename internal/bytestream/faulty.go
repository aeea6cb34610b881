package bytestream

import "errors"

// ErrPowerLoss is returned by Faulty once its write budget is spent
var ErrPowerLoss = errors.New("simulated power loss")

// Faulty passes reads through and lets only the first budget bytes of all
// writes reach the underlying stream. It models a device losing power part
// way through a write.
type Faulty struct {
	Stream
	budget int
}

func NewFaulty(s Stream, budget int) *Faulty {
	return &Faulty{Stream: s, budget: budget}
}

func (f *Faulty) Write(p []byte) (int, error) {
	if f.budget >= len(p) {
		f.budget -= len(p)
		return f.Stream.Write(p)
	}

	n, err := f.Stream.Write(p[:f.budget])
	f.budget = 0
	if err != nil {
		return n, err
	}
	return n, ErrPowerLoss
}

// Exhausted reports whether the power has been cut
func (f *Faulty) Exhausted() bool {
	return f.budget == 0
}
