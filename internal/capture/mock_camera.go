package capture

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/depth"
)

// MockFrame is a recorded color image with its optional depth map.
type MockFrame struct {
	Color *gocv.Mat
	Depth *depth.Map
}

// MockCamera plays back pre-recorded frames for testing
type MockCamera struct {
	frames  []MockFrame
	index   int
	loop    bool
	mu      sync.Mutex
	running bool
}

// NewMockCamera creates a camera replaying frames, optionally in a loop.
func NewMockCamera(frames []MockFrame, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		loop:   loop,
	}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	if len(c.frames) == 0 {
		return nil, fmt.Errorf("no frames available")
	}

	if c.index >= len(c.frames) {
		if c.loop {
			c.index = 0
		} else {
			return nil, fmt.Errorf("no more frames")
		}
	}

	// Clone so the recording isn't modified; depth maps are shared read-only.
	rec := c.frames[c.index]
	c.index++

	return &Frame{Color: rec.Color.Clone(), Depth: rec.Depth, Timestamp: time.Now()}, nil
}

func (c *MockCamera) SetFPS(fps int) {}
func (c *MockCamera) FPS() int       { return 15 }
func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetFrames replaces the frame sequence
func (c *MockCamera) SetFrames(frames []MockFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.index = 0
}

// Reset restarts playback from the beginning
func (c *MockCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}
