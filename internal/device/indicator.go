package device

import (
	"fmt"

	gpio "github.com/temoto/gpio-cdev-go"
)

// Indicator is a status output such as an LED.
type Indicator interface {
	Set(on bool) error
	Close() error
}

// NopIndicator discards every update.
type NopIndicator struct{}

func (NopIndicator) Set(bool) error { return nil }
func (NopIndicator) Close() error   { return nil }

// GPIOIndicator drives one output line through the Linux GPIO character
// device.
type GPIOIndicator struct {
	set   gpio.LineSetFunc
	flush func() error
	close []func() error
}

// OpenGPIOIndicator requests line on chip (e.g. "/dev/gpiochip0") as an
// output labelled consumer.
func OpenGPIOIndicator(chip string, line uint32, consumer string) (*GPIOIndicator, error) {
	c, err := gpio.Open(chip, consumer)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", chip, err)
	}
	lines, err := c.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, consumer, line)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("device: request line %d on %s: %w", line, chip, err)
	}
	return &GPIOIndicator{
		set:   lines.SetFunc(line),
		flush: lines.Flush,
		close: []func() error{lines.Close, c.Close},
	}, nil
}

func (g *GPIOIndicator) Set(on bool) error {
	var v byte
	if on {
		v = 1
	}
	g.set(v)
	return g.flush()
}

func (g *GPIOIndicator) Close() error {
	var first error
	for _, f := range g.close {
		if err := f(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
