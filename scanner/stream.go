package scanner

import (
	"context"
	"sync"

	"github.com/srg/venuesense/internal/beacon"
	"github.com/srg/venuesense/internal/groutine"
	"github.com/srg/venuesense/internal/ringchan"
)

// Stream is a cancellable sequence of observations produced by one scan.
//
// C is closed when the scan ends. Err is nil after cancellation or when
// scanning was unavailable, and holds the platform failure otherwise.
type Stream struct {
	observations *ringchan.RingChannel[beacon.Observation]
	cancel       context.CancelFunc
	done         <-chan struct{}

	mu  sync.Mutex
	err error
}

// Observe starts a scan in the background and returns its observation stream.
func (s *Session) Observe(ctx context.Context, opts *ScanOptions) *Stream {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultScanOptions().BufferSize
	}

	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{
		observations: ringchan.New[beacon.Observation](size),
		cancel:       cancel,
	}

	st.done = groutine.Go(ctx, "beacon-scan", func(ctx context.Context) {
		defer st.observations.Close()
		err := s.Scan(ctx, opts, func(obs beacon.Observation) {
			st.observations.Send(obs)
		})
		st.setErr(err)
	})

	return st
}

// C returns the observation channel
func (st *Stream) C() <-chan beacon.Observation {
	return st.observations.C()
}

// Done is closed once the scan has fully stopped
func (st *Stream) Done() <-chan struct{} {
	return st.done
}

// Err returns the scan failure, if any; valid once C is closed
func (st *Stream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Stop cancels the scan and waits for the platform handle to be released.
func (st *Stream) Stop() {
	st.cancel()
	<-st.done
}

func (st *Stream) setErr(err error) {
	st.mu.Lock()
	st.err = err
	st.mu.Unlock()
}
