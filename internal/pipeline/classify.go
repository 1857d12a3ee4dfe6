// Package pipeline drives candidates through resolve, fetch, prompt, invoke
// and parse, one explicit state machine per candidate, on a bounded worker
// pool.
package pipeline

import (
	"errors"

	"github.com/sells-group/bioextract/internal/model"
)

// kinded is implemented by stage errors that know their failure kind.
type kinded interface {
	Kind() model.FailureKind
}

// stageKinds is the fallback kind for untyped errors from each stage.
var stageKinds = map[model.Stage]model.FailureKind{
	model.StageResolve: model.FailTransport,
	model.StageFetch:   model.FailFetch,
	model.StagePrompt:  model.FailPromptTooLong,
	model.StageInvoke:  model.FailTransport,
	model.StageParse:   model.FailParse,
}

// Classify maps a stage error onto a failure kind.
func Classify(stage model.Stage, err error) model.FailureKind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if kind, ok := stageKinds[stage]; ok {
		return kind
	}
	return model.FailTransport
}
