package domain

import "fmt"

const (
	// ActiveQuestLimit is the normal number of concurrently active quests.
	ActiveQuestLimit = 3
	// EmergencyQuestCeiling is the hard cap reachable via emergency deploy.
	EmergencyQuestCeiling = ActiveQuestLimit + 1
)

// ErrActiveLimit reports a rejected activation.
type ErrActiveLimit struct {
	ActiveCount int
	Emergency   bool
}

func (e ErrActiveLimit) Error() string {
	if e.Emergency {
		return fmt.Sprintf("emergency ceiling reached: %d quests already active (max %d)", e.ActiveCount, EmergencyQuestCeiling)
	}
	return fmt.Sprintf("active quest limit exceeded: %d of %d active, use emergency override", e.ActiveCount, ActiveQuestLimit)
}

// Admission is the outcome of a successful activation check.
type Admission struct {
	IsEmergencyDeploy bool `json:"is_emergency_deploy"`
	ActiveCount       int  `json:"active_count"`
}

// AdmitActivation decides whether one more quest may become active given
// activeCount quests already active.
func AdmitActivation(activeCount int, emergency bool) (Admission, error) {
	if activeCount >= EmergencyQuestCeiling || (activeCount >= ActiveQuestLimit && !emergency) {
		return Admission{}, ErrActiveLimit{ActiveCount: activeCount, Emergency: emergency}
	}
	return Admission{
		IsEmergencyDeploy: activeCount >= ActiveQuestLimit,
		ActiveCount:       activeCount + 1,
	}, nil
}

// AdmissionCeiling is the exclusive upper bound on the current active count
// for an activation to be admitted.
func AdmissionCeiling(emergency bool) int {
	if emergency {
		return EmergencyQuestCeiling
	}
	return ActiveQuestLimit
}
