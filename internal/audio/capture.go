package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// Device is a source of fixed-size PCM-16 mono frames. Frames are
// delivered on the Frames channel; transient capture problems surface
// on ReadErrors without stopping the device.
type Device interface {
	Start() error
	Stop() error
	Close() error
	Frames() <-chan []byte
	ReadErrors() <-chan error
}

// Config contains capture device parameters
type Config struct {
	SampleRate int
	Channels   int
	FrameSize  int    // samples per frame delivered on Frames
	DeviceName string // empty selects the default capture device
}

// captureDevice wraps a malgo capture device. The OS callback delivers
// arbitrarily sized buffers; they are repackaged into exact FrameSize
// frames before delivery.
type captureDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	frames     chan []byte
	readErrors chan error
	frameBytes int

	// Callback state, touched only from the audio thread
	pending []byte

	// Statistics
	framesDelivered uint64
	framesDropped   uint64

	started bool
	mu      sync.Mutex
}

// NewDevice opens a capture device for the given parameters. An error
// here means audio is unavailable; callers are expected to degrade to
// an audio-disabled mode rather than fail the whole service.
func NewDevice(config Config) (Device, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.Channels != 1 {
		return nil, fmt.Errorf("only mono capture is supported, got %d channels", config.Channels)
	}

	if config.FrameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", config.FrameSize)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	d := &captureDevice{
		ctx:        ctx,
		frames:     make(chan []byte, 32),
		readErrors: make(chan error, 4),
		frameBytes: config.FrameSize * 2,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(config.Channels)
	deviceConfig.SampleRate = uint32(config.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(config.FrameSize)

	if config.DeviceName != "" {
		id, err := findDeviceID(ctx, config.DeviceName)
		if err != nil {
			ctx.Uninit()
			ctx.Free()
			return nil, err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			d.onData(data)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to open capture device: %w", err)
	}

	d.device = device
	return d, nil
}

// findDeviceID matches a configured device name against the available
// capture devices.
func findDeviceID(ctx *malgo.AllocatedContext, name string) (malgo.DeviceID, error) {
	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	for _, dev := range devices {
		if strings.Contains(strings.ToLower(dev.Name()), strings.ToLower(name)) {
			return dev.ID, nil
		}
	}

	return malgo.DeviceID{}, fmt.Errorf("capture device %q not found", name)
}

// onData runs on the OS audio thread. It repackages whatever buffer
// size the driver hands us into exact frames and must never block, so
// frames are dropped when the channel is full.
func (d *captureDevice) onData(data []byte) {
	d.pending = append(d.pending, data...)

	for len(d.pending) >= d.frameBytes {
		frame := make([]byte, d.frameBytes)
		copy(frame, d.pending[:d.frameBytes])
		d.pending = d.pending[d.frameBytes:]

		select {
		case d.frames <- frame:
			d.framesDelivered++
		default:
			d.framesDropped++
		}
	}
}

// Start begins capturing. Starting an already started device is a no-op.
func (d *captureDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}

	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	d.started = true
	return nil
}

// Stop halts capturing. Stopping an already stopped device is a no-op.
func (d *captureDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}

	d.started = false
	d.pending = nil
	return nil
}

// Close releases the device and the audio context.
func (d *captureDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}

	if d.ctx != nil {
		d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}

	return nil
}

func (d *captureDevice) Frames() <-chan []byte {
	return d.frames
}

func (d *captureDevice) ReadErrors() <-chan error {
	return d.readErrors
}
