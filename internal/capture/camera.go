// Package capture reads aligned color and depth frames from the station
// camera using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/depth"
)

// Default camera settings
const (
	DefaultFPS          = 5
	DefaultWidth        = 640
	DefaultHeight       = 480
	DefaultMaxDisparity = 95
	// DisparityFloor is the scaled disparity below which samples are discarded.
	DisparityFloor = 128
)

// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// Frame is one color image with the depth map aligned to it. Depth is nil
// when the camera has no depth stream.
type Frame struct {
	Color     gocv.Mat
	Depth     *depth.Map
	Timestamp time.Time
}

// Close releases the color image.
func (f *Frame) Close() error {
	return f.Color.Close()
}

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*Frame, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Config selects the capture devices.
type Config struct {
	ColorDevice int
	// DepthDevice streams disparity aligned with the color device. Negative
	// disables depth.
	DepthDevice  int
	Width        int
	Height       int
	MaxDisparity float64
}

// DefaultConfig returns a color-only configuration for device 0.
func DefaultConfig() Config {
	return Config{
		ColorDevice:  0,
		DepthDevice:  -1,
		Width:        DefaultWidth,
		Height:       DefaultHeight,
		MaxDisparity: DefaultMaxDisparity,
	}
}

// cameraImpl manages video capture from the color and disparity devices.
type cameraImpl struct {
	config  Config
	color   *gocv.VideoCapture
	depth   *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera creates a new Camera. The default FPS is 5 for performance reasons.
func NewCamera(config Config) Camera {
	return &cameraImpl{
		config: config,
		fps:    DefaultFPS,
	}
}

// Open opens the capture devices.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	color, err := c.openDevice(c.config.ColorDevice)
	if err != nil {
		return fmt.Errorf("open color device %d: %w", c.config.ColorDevice, err)
	}
	if c.config.DepthDevice >= 0 {
		d, err := c.openDevice(c.config.DepthDevice)
		if err != nil {
			color.Close()
			return fmt.Errorf("open depth device %d: %w", c.config.DepthDevice, err)
		}
		c.depth = d
	}

	c.color = color
	c.running = true
	return nil
}

func (c *cameraImpl) openDevice(id int) (*gocv.VideoCapture, error) {
	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, err
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
	return capture, nil
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.color != nil {
		err = c.color.Close()
		c.color = nil
	}
	if c.depth != nil {
		if derr := c.depth.Close(); err == nil {
			err = derr
		}
		c.depth = nil
	}
	c.running = false
	return err
}

// ReadFrame reads one color frame and, when configured, its disparity.
// The caller is responsible for closing the returned Frame.
func (c *cameraImpl) ReadFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.color == nil {
		return nil, ErrCameraNotOpen
	}

	mat, err := read(c.color)
	if err != nil {
		return nil, err
	}
	frame := &Frame{Color: mat, Timestamp: time.Now()}

	if c.depth != nil {
		disp, err := read(c.depth)
		if err != nil {
			frame.Close()
			return nil, fmt.Errorf("depth: %w", err)
		}
		defer disp.Close()
		frame.Depth, err = DisparityToMap(disp, image.Pt(mat.Cols(), mat.Rows()), c.config.MaxDisparity)
		if err != nil {
			frame.Close()
			return nil, err
		}
	}
	return frame, nil
}

func read(capture *gocv.VideoCapture) (gocv.Mat, error) {
	mat := gocv.NewMat()
	if ok := capture.Read(&mat); !ok {
		mat.Close()
		return mat, errors.New("failed to read frame from camera")
	}
	if mat.Empty() {
		mat.Close()
		return mat, errors.New("captured frame is empty")
	}
	return mat, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	for _, capture := range []*gocv.VideoCapture{c.color, c.depth} {
		if capture != nil {
			capture.Set(gocv.VideoCaptureFPS, float64(fps))
		}
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// DisparityToMap converts a disparity image into a depth map of the given
// size, scaled with ScaleDisparity.
func DisparityToMap(disp gocv.Mat, size image.Point, maxDisparity float64) (*depth.Map, error) {
	if disp.Empty() {
		return nil, errors.New("empty disparity image")
	}
	gray := gocv.NewMat()
	defer gray.Close()
	if disp.Channels() > 1 {
		gocv.CvtColor(disp, &gray, gocv.ColorBGRToGray)
	} else {
		disp.CopyTo(&gray)
	}
	if gray.Cols() != size.X || gray.Rows() != size.Y {
		gocv.Resize(gray, &gray, size, 0, 0, gocv.InterpolationNearestNeighbor)
	}

	values := gocv.NewMat()
	defer values.Close()
	gray.ConvertTo(&values, gocv.MatTypeCV64F)
	raw, err := values.DataPtrFloat64()
	if err != nil {
		return nil, fmt.Errorf("read disparity: %w", err)
	}
	data := make([]float64, len(raw))
	copy(data, raw)
	ScaleDisparity(data, maxDisparity)
	return depth.NewMap(values.Cols(), values.Rows(), data)
}

// ScaleDisparity maps raw disparity to 0-255 in place and zeroes samples
// below DisparityFloor.
func ScaleDisparity(data []float64, maxDisparity float64) {
	for i, v := range data {
		s := math.Floor(v * 255 / maxDisparity)
		if s > 255 {
			s = 255
		}
		if s < DisparityFloor {
			s = 0
		}
		data[i] = s
	}
}
