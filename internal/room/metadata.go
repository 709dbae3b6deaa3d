package room

import "encoding/json"

// CallInfo is the caller context passed through room metadata.
type CallInfo struct {
	Phone    string `json:"phone"`
	LeadName string `json:"lead_name,omitempty"`
	Campaign string `json:"campaign,omitempty"`
}

// ParseCallInfo decodes caller context from room metadata. Parsing is best
// effort; malformed or empty metadata yields a zero CallInfo rather than an
// error, since a call must proceed even without caller context.
func ParseCallInfo(metadata string) CallInfo {
	var info CallInfo
	if metadata == "" {
		return info
	}
	if err := json.Unmarshal([]byte(metadata), &info); err != nil {
		return CallInfo{}
	}
	return info
}
