package models

import "time"

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionEdited   Decision = "edited"
	DecisionRejected Decision = "rejected"
)

type Intervention struct {
	Seq       int
	Timestamp time.Time
	Action    string
	Original  string
	Decision  Decision
	Edited    string
}
