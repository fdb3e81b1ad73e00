package domain

const (
	TRIGGER_LIGHTS_ON  = "LIGHTS_ON"
	TRIGGER_LIGHTS_OFF = "LIGHTS_OFF"
)

type TriggerKind int

const (
	TriggerNone TriggerKind = iota
	TriggerOn
	TriggerOff
	TriggerOther
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerOn:
		return "on"
	case TriggerOff:
		return "off"
	case TriggerOther:
		return "other"
	default:
		return "none"
	}
}

// Trigger is the event decoded from one line of serial text. Text holds the
// trimmed line for every kind but TriggerNone.
type Trigger struct {
	Kind TriggerKind
	Text string
}

// Command returns the light command for ON/OFF triggers.
func (t Trigger) Command() (Command, bool) {
	switch t.Kind {
	case TriggerOn:
		return COMMAND_ON, true
	case TriggerOff:
		return COMMAND_OFF, true
	}
	return "", false
}
