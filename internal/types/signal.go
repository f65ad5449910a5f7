package types

import "time"

// Signal is the outcome of one condition branch evaluated for a play index.
type Signal struct {
	// Time is the bar time the conditions were evaluated against.
	Time      time.Time `json:"time" yaml:"time"`
	PlayIndex int64     `json:"play_index" yaml:"play_index"`
	NodeID    string    `json:"node_id" yaml:"node_id"`
	// CaseID is the matched case, or 0 for the else branch.
	CaseID int `json:"case_id" yaml:"case_id"`
	// Reason describes the conditions that matched.
	Reason string `json:"reason" yaml:"reason"`
}

// IsElse reports whether no case matched.
func (s Signal) IsElse() bool {
	return s.CaseID == 0
}
