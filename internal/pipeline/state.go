package pipeline

// State is a step of one submission attempt.
type State int32

const (
	Idle State = iota
	Validating
	PasswordMismatch
	Invalid
	Packaging
	Sending
	Success
	APIError
	NetworkError
	// Rejected marks a Submit refused because another one was still in flight.
	// The pipeline itself never enters it.
	Rejected
)

var stateNames = [...]string{
	Idle:             "idle",
	Validating:       "validating",
	PasswordMismatch: "password_mismatch",
	Invalid:          "invalid",
	Packaging:        "packaging",
	Sending:          "sending",
	Success:          "success",
	APIError:         "api_error",
	NetworkError:     "network_error",
	Rejected:         "rejected",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
