package sensor

import (
	"io"
	"time"

	"github.com/anicoll/sensor-bridge/internal/pkg/config"
	"go.bug.st/serial"
)

// readTimeout bounds a single Read so Close and the watchdog are never stuck behind it.
const readTimeout = time.Second

// Port is the part of a serial port the reader uses.
type Port interface {
	io.ReadCloser
}

type OpenFunc func(cfg *config.SerialConfig) (Port, error)

func openSerial(cfg *config.SerialConfig) (Port, error) {
	p, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// ListPorts returns the serial port names present on this machine.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
