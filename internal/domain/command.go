package domain

type Intent string

const (
	IntentLock         Intent = "lock"
	IntentUnlock       Intent = "unlock"
	IntentArm          Intent = "arm"
	IntentDisarm       Intent = "disarm"
	IntentStatusReport Intent = "status_report"
	IntentUnknown      Intent = "unknown"
)

// RequiresTarget reports whether the intent only makes sense against a device.
func (i Intent) RequiresTarget() bool {
	switch i {
	case IntentLock, IntentUnlock, IntentArm, IntentDisarm:
		return true
	default:
		return false
	}
}

func (i Intent) Valid() bool {
	switch i {
	case IntentLock, IntentUnlock, IntentArm, IntentDisarm, IntentStatusReport, IntentUnknown:
		return true
	default:
		return false
	}
}

// TargetStatus is the device status a successful command with this intent
// leads to.
func (i Intent) TargetStatus() (string, bool) {
	switch i {
	case IntentLock:
		return StatusLocked, true
	case IntentUnlock:
		return StatusUnlocked, true
	case IntentArm:
		return StatusArmed, true
	case IntentDisarm:
		return StatusDisarmed, true
	default:
		return "", false
	}
}

// Command is the structured form of an utterance. Target is empty when no
// device was resolved.
type Command struct {
	Intent  Intent
	Target  DeviceID
	RawText string
}

func (c Command) HasTarget() bool {
	return c.Target != ""
}

// CommandPayload is the JSON published on the command topic.
type CommandPayload struct {
	Intent  string  `json:"intent"`
	Target  *string `json:"target"`
	RawText string  `json:"raw_text"`
}

func (c Command) Payload() CommandPayload {
	p := CommandPayload{
		Intent:  string(c.Intent),
		RawText: c.RawText,
	}
	if c.HasTarget() {
		target := string(c.Target)
		p.Target = &target
	}
	return p
}

func (p CommandPayload) Command() Command {
	cmd := Command{
		Intent:  Intent(p.Intent),
		RawText: p.RawText,
	}
	if p.Target != nil {
		cmd.Target = DeviceID(*p.Target)
	}
	return cmd
}
