package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call int

const (
	fail call = iota
	succeed
)

func replay(b *Breaker, calls ...call) (opened, closed int) {
	for _, c := range calls {
		var change StateChange
		if c == fail {
			_, change = b.RecordFailure()
		} else {
			_, change = b.RecordSuccess()
		}
		if change.Opened {
			opened++
		}
		if change.Closed {
			closed++
		}
	}
	return opened, closed
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		calls      []call
		wantState  State
		wantOpened int
		wantClosed int
	}{
		{
			name:      "new breaker is closed",
			wantState: StateClosed,
		},
		{
			name:      "defaults tolerate four sink failures",
			calls:     []call{fail, fail, fail, fail},
			wantState: StateClosed,
		},
		{
			name:       "fifth consecutive failure opens",
			calls:      []call{fail, fail, fail, fail, fail},
			wantState:  StateOpen,
			wantOpened: 1,
		},
		{
			name:      "a success between failures resets the count",
			opts:      []Option{WithFailureThreshold(3)},
			calls:     []call{fail, fail, succeed, fail, fail},
			wantState: StateClosed,
		},
		{
			name:       "failures while open do not reopen",
			opts:       []Option{WithFailureThreshold(1)},
			calls:      []call{fail, fail, fail},
			wantState:  StateOpen,
			wantOpened: 1,
		},
		{
			name:       "closes after enough probes succeed",
			opts:       []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			calls:      []call{fail, succeed, succeed},
			wantState:  StateClosed,
			wantOpened: 1,
			wantClosed: 1,
		},
		{
			name:       "a failed probe restarts the success count",
			opts:       []Option{WithFailureThreshold(1), WithSuccessThreshold(3)},
			calls:      []call{fail, succeed, succeed, fail, succeed, succeed},
			wantState:  StateOpen,
			wantOpened: 1,
		},
		{
			name:       "non-positive thresholds keep the defaults",
			opts:       []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)},
			calls:      []call{fail, fail, fail, fail, fail, succeed, succeed, succeed},
			wantState:  StateClosed,
			wantOpened: 1,
			wantClosed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("secondary-audit", tt.opts...)
			opened, closed := replay(b, tt.calls...)
			assert.Equal(t, tt.wantState, b.State())
			assert.Equal(t, tt.wantOpened, opened)
			assert.Equal(t, tt.wantClosed, closed)
		})
	}
}

func TestBreakerFallbackSignals(t *testing.T) {
	b := New("secondary-audit", WithFailureThreshold(2), WithSuccessThreshold(1))

	useFallback, _ := b.RecordFailure()
	assert.False(t, useFallback, "below threshold the primary path is still used")

	useFallback, _ = b.RecordFailure()
	assert.True(t, useFallback)
	require.True(t, b.IsOpen())
	assert.Equal(t, "open", b.State().String())

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.Equal(t, "closed", b.State().String())
}

func TestBreakerReset(t *testing.T) {
	b := New("secondary-audit", WithFailureThreshold(1), WithSuccessThreshold(5))
	replay(b, fail, succeed, succeed)
	require.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, "secondary-audit", b.Name())

	_, change := b.RecordFailure()
	assert.True(t, change.Opened, "counters were cleared with the state")
}
