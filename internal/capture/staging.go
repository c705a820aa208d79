package capture

import "github.com/smallnest/ringbuffer"

// StagingBuffer decouples the capture engine's read cadence from the
// transport session's fixed-size chunk writes: captured bytes accumulate
// here until a full chunk is available. Grounded on the teacher module's
// own myaudio analysis buffers (internal/myaudio/analysis_buffer_bench_test.go),
// which stage captured PCM in a ringbuffer.RingBuffer ahead of the
// sliding-window analysis read; this applies the same staging pattern to
// the outbound side of the pipeline instead of the inbound one.
type StagingBuffer struct {
	rb *ringbuffer.RingBuffer
}

// NewStagingBuffer allocates a staging buffer with room for capacityBytes
// of pending audio. The orchestrator resizes this as the adaptive buffer
// sizer's recommendation changes (spec.md §4.4).
func NewStagingBuffer(capacityBytes int) *StagingBuffer {
	if capacityBytes <= 0 {
		capacityBytes = minBufferBytes
	}
	return &StagingBuffer{rb: ringbuffer.New(capacityBytes)}
}

// Push appends newly captured bytes. A short write (n < len(data)) means
// the buffer is saturated; the caller drops the remainder rather than
// blocking the capture path, per spec.md's best-effort delivery semantics.
func (s *StagingBuffer) Push(data []byte) (int, error) {
	return s.rb.Write(data)
}

// TryDrain pops exactly chunkBytes if that many are staged, reporting
// false without consuming anything otherwise.
func (s *StagingBuffer) TryDrain(chunkBytes int) ([]byte, bool) {
	if s.rb.Length() < chunkBytes {
		return nil, false
	}
	buf := make([]byte, chunkBytes)
	n, err := s.rb.Read(buf)
	if err != nil || n != chunkBytes {
		return nil, false
	}
	return buf, true
}

// Buffered reports how many bytes are currently staged.
func (s *StagingBuffer) Buffered() int {
	return s.rb.Length()
}

// Resize replaces the backing ring buffer, carrying forward any bytes that
// still fit. Shrinking below the currently staged amount drops the oldest
// excess (the adaptive sizer only shrinks under memory/signal pressure,
// where dropping stale audio is preferable to blocking capture).
func (s *StagingBuffer) Resize(capacityBytes int) {
	if capacityBytes <= 0 {
		capacityBytes = minBufferBytes
	}
	next := ringbuffer.New(capacityBytes)
	pending := s.rb.Length()
	if pending > 0 {
		buf := make([]byte, pending)
		n, _ := s.rb.Read(buf)
		if n > capacityBytes {
			buf = buf[n-capacityBytes:]
		} else {
			buf = buf[:n]
		}
		_, _ = next.Write(buf)
	}
	s.rb = next
}
