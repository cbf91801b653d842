package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MuteGate is a synchronized single-writer/multi-reader flag gating
// transmission of capture frames. It never gates capture itself or the
// visualization tap. The capture callback reads it live rather than
// closing over a value captured at setup time.
type MuteGate struct {
	muted atomic.Bool
}

// SetMuted sets the gate. Single writer: the user-facing mute action.
func (g *MuteGate) SetMuted(muted bool) { g.muted.Store(muted) }

// Muted reads the gate. Safe from the capture callback.
func (g *MuteGate) Muted() bool { return g.muted.Load() }

// CaptureConfig configures the microphone pipeline.
type CaptureConfig struct {
	// SampleRate of the capture device. Default 16000.
	SampleRate int

	// Channels of the capture device. Default 1.
	Channels int

	// FrameMillis is the fixed frame size in milliseconds. Default 20.
	FrameMillis int
}

func (c *CaptureConfig) defaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.FrameMillis <= 0 {
		c.FrameMillis = 20
	}
}

// Capture acquires the microphone and frames raw float samples at the
// input rate. Every frame feeds the tap; when the mute gate is open the
// frame is clamped, quantized to int16 LE PCM, and handed to onFrame.
// onFrame must not block: capture processing never waits on network I/O.
type Capture struct {
	cfg     CaptureConfig
	mute    *MuteGate
	tap     *Tap
	onFrame func(pcm []byte)
	log     *slog.Logger

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	closeOnce sync.Once
}

// NewCapture acquires the microphone and starts capturing. Acquisition
// failure is fatal to session start and wrapped as ErrDeviceAcquisition;
// the core attempts no retry. tap may be nil.
func NewCapture(cfg CaptureConfig, mute *MuteGate, tap *Tap, onFrame func(pcm []byte)) (*Capture, error) {
	cfg.defaults()
	if mute == nil {
		mute = &MuteGate{}
	}

	c := &Capture{
		cfg:     cfg,
		mute:    mute,
		tap:     tap,
		onFrame: onFrame,
		log:     slog.Default().With("component", "audio.capture"),
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", ErrDeviceAcquisition, err)
	}
	c.malgoCtx = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(cfg.FrameMillis)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.processFrame(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		return nil, fmt.Errorf("%w: init device: %v", ErrDeviceAcquisition, err)
	}
	c.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		return nil, fmt.Errorf("%w: start device: %v", ErrDeviceAcquisition, err)
	}

	c.log.Info("microphone acquired",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frame_ms", cfg.FrameMillis,
	)
	return c, nil
}

// Mute returns the capture's mute gate.
func (c *Capture) Mute() *MuteGate { return c.mute }

// processFrame is the per-frame fan-out: tap always, transmit only when
// unmuted. raw is float32 LE as delivered by the device.
func (c *Capture) processFrame(raw []byte) {
	samples := BytesToFloat32(raw)
	if len(samples) == 0 {
		return
	}
	pcm := FloatToPCM16(samples)

	if c.tap != nil {
		c.tap.PushInput(PCM16ToInt16(pcm))
	}
	if !c.mute.Muted() && c.onFrame != nil {
		c.onFrame(pcm)
	}
}

// Close stops capture and releases the microphone handle exactly once.
// Safe to call repeatedly.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		if c.device != nil {
			_ = c.device.Stop()
			c.device.Uninit()
		}
		if c.malgoCtx != nil {
			_ = c.malgoCtx.Uninit()
		}
		c.log.Info("microphone released")
	})
	return nil
}
