package audio

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
)

// SelectDevice presents an interactive device picker and returns the selected device.
// If only one device is available, it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no capture devices found", ErrDeviceUnavailable)
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	options := make([]huh.Option[int], len(devices))
	for i, d := range devices {
		label := d.Name
		if IsBluetooth(d.Name) {
			label += "  [⚠ menor calidad de audio]"
		}
		options[i] = huh.NewOption(label, i)
	}

	choice := 0
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Elige el micrófono").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, err
		}
		return nil, fmt.Errorf("device picker: %w", err)
	}
	return &devices[choice], nil
}

// FindDevice looks a device up by exact ID or name.
func FindDevice(ctx Context, query string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i, d := range devices {
		if d.ID == query || d.Name == query {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceUnavailable, query)
}
