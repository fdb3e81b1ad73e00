package domain

import "fmt"

type Command string

const (
	COMMAND_ON  Command = "on"
	COMMAND_OFF Command = "off"
)

func ParseCommand(value string) (Command, error) {
	switch Command(value) {
	case COMMAND_ON:
		return COMMAND_ON, nil
	case COMMAND_OFF:
		return COMMAND_OFF, nil
	}
	return "", fmt.Errorf("invalid command %q", value)
}

// Device is one controllable light, identified by its vendor address and model (SKU).
type Device struct {
	ID    string `json:"device" yaml:"device"`
	Model string `json:"model" yaml:"model"`
}

func (d Device) String() string {
	return fmt.Sprintf("%s(%s)", d.ID, d.Model)
}

type DeviceResult struct {
	Device  Device `json:"device"`
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

type DispatchOutcome struct {
	Command Command        `json:"command"`
	Results []DeviceResult `json:"results"`
}

// Success reports whether every device accepted the command. An outcome without
// devices is successful.
func (o DispatchOutcome) Success() bool {
	for _, r := range o.Results {
		if !r.Success {
			return false
		}
	}
	return true
}

func (o DispatchOutcome) Failed() int {
	failed := 0
	for _, r := range o.Results {
		if !r.Success {
			failed++
		}
	}
	return failed
}
