// Package replay provides the fixed size experience store used for learning.
package replay

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	ErrNotEnoughSamples = errors.New("not enough samples")
	ErrShapeMismatch    = errors.New("state dimension mismatch")
	ErrInvalidCapacity  = errors.New("capacity must be positive")
)

// Transition is one step of experience.
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Terminal  bool
}

// Batch is a set of sampled transitions in column layout.
type Batch struct {
	States     [][]float64
	Actions    []int
	Rewards    []float64
	NextStates [][]float64
	Terminals  []bool
}

func (b *Batch) Len() int { return len(b.Actions) }

// Buffer is a ring of transitions. Once full the oldest entries are
// overwritten. States are copied on Store and on Sample so callers never
// share memory with the buffer.
// Buffer is not safe for concurrent use.
type Buffer struct {
	capacity   int
	stateDim   int
	states     []float64 // capacity*stateDim
	nextStates []float64
	actions    []int
	rewards    []float64
	terminals  []bool
	counter    int
}

func NewBuffer(capacity, stateDim int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &Buffer{
		capacity:   capacity,
		stateDim:   stateDim,
		states:     make([]float64, capacity*stateDim),
		nextStates: make([]float64, capacity*stateDim),
		actions:    make([]int, capacity),
		rewards:    make([]float64, capacity),
		terminals:  make([]bool, capacity),
	}, nil
}

// Store writes t into the next slot.
func (b *Buffer) Store(t Transition) error {
	if len(t.State) != b.stateDim || len(t.NextState) != b.stateDim {
		return fmt.Errorf("%w: want %d, got %d/%d",
			ErrShapeMismatch, b.stateDim, len(t.State), len(t.NextState))
	}
	idx := b.counter % b.capacity
	copy(b.stateRow(b.states, idx), t.State)
	copy(b.stateRow(b.nextStates, idx), t.NextState)
	b.actions[idx] = t.Action
	b.rewards[idx] = t.Reward
	b.terminals[idx] = t.Terminal
	b.counter++
	return nil
}

// Len is the number of stored transitions.
func (b *Buffer) Len() int { return min(b.counter, b.capacity) }

// Counter is the number of Store calls since creation.
func (b *Buffer) Counter() int { return b.counter }

func (b *Buffer) Capacity() int { return b.capacity }

func (b *Buffer) StateDim() int { return b.stateDim }

// Sample draws n transitions uniformly with replacement.
func (b *Buffer) Sample(n int, rng *rand.Rand) (*Batch, error) {
	size := b.Len()
	if n <= 0 || size < n {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrNotEnoughSamples, n, size)
	}
	batch := &Batch{
		States:     make([][]float64, n),
		Actions:    make([]int, n),
		Rewards:    make([]float64, n),
		NextStates: make([][]float64, n),
		Terminals:  make([]bool, n),
	}
	for i := range n {
		idx := rng.IntN(size)
		batch.States[i] = b.cloneRow(b.states, idx)
		batch.NextStates[i] = b.cloneRow(b.nextStates, idx)
		batch.Actions[i] = b.actions[idx]
		batch.Rewards[i] = b.rewards[idx]
		batch.Terminals[i] = b.terminals[idx]
	}
	return batch, nil
}

// Snapshot returns the stored transitions from oldest to newest.
func (b *Buffer) Snapshot() []Transition {
	size := b.Len()
	ret := make([]Transition, size)
	start := 0
	if b.counter > b.capacity {
		start = b.counter % b.capacity
	}
	for i := range size {
		idx := (start + i) % b.capacity
		ret[i] = Transition{
			State:     b.cloneRow(b.states, idx),
			Action:    b.actions[idx],
			Reward:    b.rewards[idx],
			NextState: b.cloneRow(b.nextStates, idx),
			Terminal:  b.terminals[idx],
		}
	}
	return ret
}

func (b *Buffer) stateRow(data []float64, idx int) []float64 {
	return data[idx*b.stateDim : (idx+1)*b.stateDim]
}

func (b *Buffer) cloneRow(data []float64, idx int) []float64 {
	ret := make([]float64, b.stateDim)
	copy(ret, b.stateRow(data, idx))
	return ret
}
