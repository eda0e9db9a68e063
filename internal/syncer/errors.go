package syncer

import "fmt"

// Stages a channel moves through in one cycle. A ChannelError pins the
// failure to the stage it happened in; the cursor stays untouched for any
// failure before commit.
const (
	StageCursor  = "cursor"
	StageFetch   = "fetch"
	StageBuild   = "build"
	StageDeliver = "deliver"
	StageCommit  = "commit"
)

// ChannelError scopes a failure to one channel and one stage. It never
// aborts other channels in the same cycle.
type ChannelError struct {
	ChannelID   string
	ChannelName string
	Stage       string
	Err         error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s (%s) failed at %s: %v", e.ChannelName, e.ChannelID, e.Stage, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
