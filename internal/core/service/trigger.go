package service

import (
	"strings"

	"github.com/berfenger/serial2govee/internal/core/domain"
)

// DecodeTrigger maps one raw serial line to a trigger. Invalid UTF-8 is dropped
// and surrounding whitespace (including CR/LF) is trimmed.
func DecodeTrigger(raw []byte) domain.Trigger {
	text := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
	switch text {
	case "":
		return domain.Trigger{Kind: domain.TriggerNone}
	case domain.TRIGGER_LIGHTS_ON:
		return domain.Trigger{Kind: domain.TriggerOn, Text: text}
	case domain.TRIGGER_LIGHTS_OFF:
		return domain.Trigger{Kind: domain.TriggerOff, Text: text}
	default:
		return domain.Trigger{Kind: domain.TriggerOther, Text: text}
	}
}
