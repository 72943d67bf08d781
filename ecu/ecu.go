// Package ecu defines the control unit types found across GM-family vehicles
package ecu

import (
	"fmt"
	"strings"
)

// ECU identifies which control unit on the vehicle answered a security
// access request
type ECU int

// This is the list of units commonly subject to seed/key security access
const (
	None ECU = iota
	ECM
	TCM
	BCM
	EBCM
	IPC
	SDM
	HVAC
	Radio
	TDM
	PSCM
	Other
)

//nolint:gochecknoglobals
var names = map[ECU]string{
	None:  "None",
	ECM:   "ECM",
	TCM:   "TCM",
	BCM:   "BCM",
	EBCM:  "EBCM",
	IPC:   "IPC",
	SDM:   "SDM",
	HVAC:  "HVAC",
	Radio: "Radio",
	TDM:   "TDM",
	PSCM:  "PSCM",
	Other: "Other",
}

func (e ECU) String() string {
	return names[e]
}

// Parse returns the ECU matching the name, ignoring case
func Parse(s string) (ECU, error) {
	for e, name := range names {
		if strings.EqualFold(s, name) {
			return e, nil
		}
	}

	return None, fmt.Errorf("unknown ECU %q", s)
}
