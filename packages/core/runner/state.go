package runner

import "github.com/abdul-hamid-achik/hitcall/packages/core/descriptor"

type State int

const (
	StateIdle State = iota
	StateSending
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Capabilities are the optional steps a descriptor enables for an entry.
type Capabilities struct {
	// TokenFile: an access token file is configured, so Authorization is sent.
	TokenFile bool
	// VariableDir: a variable directory is configured.
	VariableDir bool
	// Placeholders: the entry's body goes through placeholder substitution.
	Placeholders bool
}

func CapabilitiesOf(d *descriptor.Descriptor, e *descriptor.Entry) Capabilities {
	hasDir := d.VariableDir != ""
	return Capabilities{
		TokenFile:    d.TokenFile(e) != "",
		VariableDir:  hasDir,
		Placeholders: hasDir && e.Body != nil && e.Method.HasBody(),
	}
}
