package domain

import "time"

type ProgressStage string

const (
	StagePlanning    ProgressStage = "planning"
	StageSearching   ProgressStage = "searching"
	StagePrefilter   ProgressStage = "prefilter"
	StageFetching    ProgressStage = "fetching"
	StageClassifying ProgressStage = "classifying"
	StageRanking     ProgressStage = "ranking"
	StageAcquiring   ProgressStage = "acquiring"
	StageWaiting     ProgressStage = "waiting"
	StageDone        ProgressStage = "done"
	StageFailed      ProgressStage = "failed"
)

type ProgressEvent struct {
	RunID   string        `json:"runId"`
	Stage   ProgressStage `json:"stage"`
	Percent int           `json:"percent"`
	Message string        `json:"message,omitempty"`
	At      time.Time     `json:"at"`
}
