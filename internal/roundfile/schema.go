package roundfile

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Scheduler *schedulerBlock  `hcl:"scheduler,block"`
	Documents []*documentBlock `hcl:"document,block"`
	Edits     []*editBlock     `hcl:"edit,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type schedulerBlock struct {
	Workers   *int `hcl:"workers,optional"`
	MaxRounds *int `hcl:"max_rounds,optional"`
}

type documentBlock struct {
	Name   string       `hcl:"name,label"`
	Passes []*passBlock `hcl:"pass,block"`
}

type passBlock struct {
	ID              string         `hcl:"id,label"`
	StartAfter      []string       `hcl:"start_after,optional"`
	CompletionAfter []string       `hcl:"completion_after,optional"`
	CollectTime     string         `hcl:"collect_time,optional"`
	Fail            string         `hcl:"fail,optional"`
	Result          hcl.Expression `hcl:"result,optional"`
}

type editBlock struct {
	Document string `hcl:"document,label"`
	After    string `hcl:"after"`
}
