package cas

import (
	"context"
	"sync"
)

// State is a step of the upload state machine.
type State string

const (
	StateChunking   State = "chunking"
	StateHashing    State = "hashing"
	StateDedupCheck State = "dedup_check"
	StateCommitting State = "committing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Phase is the user-visible grouping of upload states.
type Phase string

const (
	PhaseUploading     Phase = "uploading"
	PhaseDeduplicating Phase = "deduplicating"
	PhaseComplete      Phase = "complete"
	PhaseFailed        Phase = "failed"
)

// Progress is a snapshot of an upload.
type Progress struct {
	State           State
	Phase           Phase
	Percent         int
	ChunksTotal     int
	ChunksDone      int // within the current state
	NewChunks       int
	DuplicateChunks int
}

func (s State) phase() Phase {
	switch s {
	case StateChunking, StateHashing:
		return PhaseUploading
	case StateDedupCheck, StateCommitting:
		return PhaseDeduplicating
	case StateComplete:
		return PhaseComplete
	default:
		return PhaseFailed
	}
}

// percent maps a state and its chunk progress onto 0-100. Hashing covers
// 0-80, the dedup check 80-95 and committing 95-99.
func percent(s State, done, total int) int {
	frac := func(lo, hi int) int {
		if total == 0 {
			return hi
		}
		return lo + (hi-lo)*done/total
	}
	switch s {
	case StateChunking:
		return 0
	case StateHashing:
		return frac(0, 80)
	case StateDedupCheck:
		return frac(80, 95)
	case StateCommitting:
		return 99
	case StateComplete:
		return 100
	}
	return 0
}

// UploadResult is the outcome of a completed upload.
type UploadResult struct {
	FileID          string
	VersionID       string
	Size            int64
	ChunkCount      int
	NewChunks       int
	DuplicateChunks int
}

// Upload is a handle on an in-flight upload. Progress can be polled or
// subscribed to; Cancel aborts the upload if it has not committed yet.
type Upload struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	progress Progress
	subs     []chan Progress
	result   UploadResult
	err      error
}

func newUpload(cancel context.CancelFunc) *Upload {
	return &Upload{
		cancel:   cancel,
		done:     make(chan struct{}),
		progress: Progress{State: StateChunking, Phase: PhaseUploading},
	}
}

// Progress returns the latest progress snapshot.
func (u *Upload) Progress() Progress {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.progress
}

// Subscribe returns a channel that receives progress updates. Slow readers
// only see the most recent snapshot. The channel is closed once the upload
// completes or fails.
func (u *Upload) Subscribe() <-chan Progress {
	ch := make(chan Progress, 1)

	u.mu.Lock()
	defer u.mu.Unlock()

	ch <- u.progress
	select {
	case <-u.done:
		close(ch)
	default:
		u.subs = append(u.subs, ch)
	}
	return ch
}

// Cancel asks the upload to stop. It has no effect after completion.
func (u *Upload) Cancel() {
	u.cancel()
}

// Done is closed when the upload reaches a terminal state.
func (u *Upload) Done() <-chan struct{} {
	return u.done
}

// Wait blocks until the upload finishes.
func (u *Upload) Wait() (UploadResult, error) {
	<-u.done
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.result, u.err
}

// enter moves the upload into a new state.
func (u *Upload) enter(s State, total int) {
	u.update(func(p *Progress) {
		p.State = s
		p.ChunksTotal = total
		p.ChunksDone = 0
	})
}

// chunkDone records one processed chunk in the current state.
func (u *Upload) chunkDone(stored, duplicate bool) {
	u.update(func(p *Progress) {
		p.ChunksDone++
		if stored {
			p.NewChunks++
		}
		if duplicate {
			p.DuplicateChunks++
		}
	})
}

func (u *Upload) update(fn func(*Progress)) {
	u.mu.Lock()
	defer u.mu.Unlock()

	fn(&u.progress)
	u.progress.Phase = u.progress.State.phase()
	if u.progress.State != StateFailed {
		u.progress.Percent = percent(u.progress.State, u.progress.ChunksDone, u.progress.ChunksTotal)
	}
	for _, ch := range u.subs {
		publish(ch, u.progress)
	}
}

// finish records the outcome and closes all subscriptions.
func (u *Upload) finish(res UploadResult, err error) {
	u.update(func(p *Progress) {
		if err != nil {
			p.State = StateFailed
			return
		}
		p.State = StateComplete
		p.ChunksTotal = res.ChunkCount
		p.ChunksDone = res.ChunkCount
	})

	u.mu.Lock()
	u.result = res
	u.err = err
	for _, ch := range u.subs {
		close(ch)
	}
	u.subs = nil
	close(u.done)
	u.mu.Unlock()
}

// publish replaces any unread snapshot in ch with p.
func publish(ch chan Progress, p Progress) {
	select {
	case ch <- p:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}
