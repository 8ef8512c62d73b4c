package eightsleep

import "fmt"

// Side identifies a bed half, or "solo" for a single-occupant pod.
type Side string

const (
	SideSolo  Side = "solo"
	SideLeft  Side = "left"
	SideRight Side = "right"
)

func (s Side) valid() bool {
	return s == SideSolo || s == SideLeft || s == SideRight
}

// StateType is the vendor's on/off intent for a side. "smart" means the
// side actively holds its target level.
type StateType string

const (
	StateSmart StateType = "smart"
	StateOff   StateType = "off"
)

// DeviceProfile is the durable device identity, resolved once per process.
type DeviceProfile struct {
	DeviceID string `json:"deviceId"`
	Side     Side   `json:"side"`
	Owner    bool   `json:"owner"`
}

func (p DeviceProfile) Validate() error {
	if p.DeviceID == "" {
		return fmt.Errorf("profile missing device id")
	}
	if !p.Side.valid() {
		return fmt.Errorf("profile has invalid side %q", p.Side)
	}
	return nil
}

// UserSettings is the per-user remote state: the target level and the
// on/off intent.
type UserSettings struct {
	CurrentLevel int       `json:"currentLevel"`
	CurrentState StateType `json:"currentState"`
}

func (s UserSettings) IntentOn() bool {
	return s.CurrentState == StateSmart
}

// DeviceState is the shared per-device remote state covering both sides.
type DeviceState struct {
	LeftLevel        int    `json:"leftHeatingLevel"`
	RightLevel       int    `json:"rightHeatingLevel"`
	LeftTargetLevel  int    `json:"leftTargetHeatingLevel"`
	RightTargetLevel int    `json:"rightTargetHeatingLevel"`
	Priming          bool   `json:"priming"`
	NeedsPriming     bool   `json:"needsPriming"`
	HasWater         bool   `json:"hasWater"`
	LeftUserID       string `json:"leftUserId"`
	RightUserID      string `json:"rightUserId"`
}

// LevelForSide returns the measured heating level for a bed half. A solo
// pod reports on the left channel.
func (d DeviceState) LevelForSide(side Side) int {
	if side == SideRight {
		return d.RightLevel
	}
	return d.LeftLevel
}

func (d DeviceState) UserIDForSide(side Side) string {
	if side == SideRight {
		return d.RightUserID
	}
	return d.LeftUserID
}
