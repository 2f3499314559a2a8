package ov9281

import "fmt"

// SetStreaming starts or stops the sensor's continuous output.
// Starting powers the sensor, programs the active mode, applies the
// current control values and raises the streaming bit; any failure on
// that path powers the sensor back down and leaves it idle. Stopping
// always succeeds: a failed standby write is only logged and the
// power reference is dropped regardless.
func (o *OV9281) SetStreaming(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if on == o.streaming {
		return nil
	}
	if on {
		return o.startStream()
	}
	o.stopStream()
	return nil
}

// Streaming reports whether the sensor is producing frames.
func (o *OV9281) Streaming() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.streaming
}

func (o *OV9281) startStream() error {
	if err := o.power.acquire(); err != nil {
		return err
	}

	if err := o.writeRegs(o.mode.Regs); err != nil {
		o.power.release()
		return fmt.Errorf("failed to program mode registers: %w", err)
	}

	// Controls may have been set while the sensor was unpowered.
	if err := o.ctrls.pushAll(o); err != nil {
		o.power.release()
		return fmt.Errorf("failed to apply controls: %w", err)
	}

	if err := o.writeReg(RegCtrlMode, reg8, uint32(ModeStreaming)); err != nil {
		o.power.release()
		return fmt.Errorf("failed to start stream: %w", err)
	}

	o.streaming = true
	o.log.Debug("streaming started", "width", o.mode.Width, "height", o.mode.Height)
	return nil
}

func (o *OV9281) stopStream() {
	if err := o.writeReg(RegCtrlMode, reg8, uint32(ModeSWStandby)); err != nil {
		o.log.Warn("failed to enter software standby", "err", err)
	}
	o.power.release()
	o.streaming = false
	o.log.Debug("streaming stopped")
}
