package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/narevent/REA/algorithms/common"
	"github.com/narevent/REA/logging"
	"github.com/narevent/REA/session"
)

// ErrDeviceNotFound is returned when a named input device does not exist
var ErrDeviceNotFound = errors.New("input device not found")

var _ session.Source = (*Microphone)(nil)

// Config describes the capture stream
type Config struct {
	SampleRate  int    `json:"sample_rate"`
	CaptureSize int    `json:"capture_size"` // samples retained for each analysis buffer
	Hop         int    `json:"hop"`          // new samples required between buffers
	Device      string `json:"device"`       // input device name, empty for the system default
}

// Microphone is a session.Source backed by a mono float32 capture device
type Microphone struct {
	config Config
	stream *session.StreamSource
	logger logging.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	scratch []float32
}

// NewMicrophone creates an unopened microphone source; the device is opened by Start
func NewMicrophone(config Config) *Microphone {
	return &Microphone{
		config: config,
		stream: session.NewStreamSource(config.CaptureSize, config.Hop),
		logger: logging.WithFields(logging.Fields{
			"component": "microphone",
			"device":    config.Device,
		}),
	}
}

// Start opens and starts the capture device
func (m *Microphone) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}
	if err := m.stream.Start(ctx); err != nil {
		return err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		m.logger.Debug("malgo", logging.Fields{"message": message})
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = 1
	config.SampleRate = uint32(m.config.SampleRate)

	if m.config.Device != "" {
		info, err := findDevice(mctx, m.config.Device)
		if err != nil {
			releaseContext(mctx)
			return err
		}
		config.Capture.DeviceID = info.ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: m.onData,
	}

	device, err := malgo.InitDevice(mctx.Context, config, callbacks)
	if err != nil {
		releaseContext(mctx)
		return fmt.Errorf("init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		releaseContext(mctx)
		return fmt.Errorf("start device: %w", err)
	}

	m.ctx = mctx
	m.device = device

	m.logger.Info("Microphone started", logging.Fields{
		"sample_rate": m.config.SampleRate,
		"hop":         m.config.Hop,
	})
	return nil
}

// onData runs on the audio thread
func (m *Microphone) onData(_, input []byte, _ uint32) {
	if len(input) == 0 {
		return
	}
	m.scratch = common.Float32FromLE(input, m.scratch)
	// a closed stream only means the session ended first
	_, _ = m.stream.WriteFloat32(m.scratch)
}

// Next returns the latest capture buffer
func (m *Microphone) Next(ctx context.Context, dst []float64) error {
	return m.stream.Next(ctx, dst)
}

// Close stops the device and releases the audio context
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.device != nil {
		err = m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		releaseContext(m.ctx)
		m.ctx = nil
	}
	m.stream.Close()

	return err
}

// InputDevices lists the names of the available capture devices
func InputDevices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer releaseContext(mctx)

	list, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(list))
	for i := range list {
		names = append(names, list[i].Name())
	}
	return names, nil
}

func findDevice(mctx *malgo.AllocatedContext, name string) (*malgo.DeviceInfo, error) {
	list, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Name() == name {
			info := list[i]
			return &info, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

func releaseContext(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}
