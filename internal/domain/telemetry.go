package domain

// Heartbeat is the payload of POST /data/heartbeat.
type Heartbeat struct {
	PluginID          int    `json:"pluginId"`
	OS                string `json:"os"`
	Start             int64  `json:"start"`
	Version           string `json:"version"`
	Hostname          string `json:"hostname"`
	SessionCtime      int64  `json:"session_ctime"`
	Timezone          string `json:"timezone"`
	TriggerAnnotation string `json:"trigger_annotation"`
}

// Heartbeat trigger reasons sent outside of login transitions.
const (
	ReasonHourly   = "HOURLY"
	ReasonActivate = "ACTIVATE"
	ReasonManual   = "MANUAL"
)

// Music send outcomes.
const (
	MusicStatusOK   = "ok"
	MusicStatusFail = "fail"
)

// MusicResult is the structured result of sending track data.
type MusicResult struct {
	Status string `json:"status"`
}

// OnboardRequest is the payload of POST /data/onboard.
type OnboardRequest struct {
	Timezone           string `json:"timezone"`
	Username           string `json:"username"`
	CreationAnnotation string `json:"creation_annotation"`
	Hostname           string `json:"hostname"`
}
