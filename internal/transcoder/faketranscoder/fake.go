// Package faketranscoder is a scriptable transcoder.Engine for tests and
// local development. Outcomes are queued per source URI; submissions are
// recorded so tests can assert idempotency.
package faketranscoder

import (
	"context"
	"fmt"
	"sync"

	"thirdcoast.systems/reelfeed/internal/transcoder"
)

type Engine struct {
	mu          sync.Mutex
	nextRef     int
	submissions []transcoder.SubmitRequest
	jobs        map[string]*job // by job ref
	outcomes    map[string][]outcome
	submitErr   error
}

type job struct {
	req transcoder.SubmitRequest
	sig *transcoder.CompletionSignal
}

type outcome struct {
	status transcoder.SignalStatus
	errMsg string
}

func New() *Engine {
	return &Engine{
		jobs:     make(map[string]*job),
		outcomes: make(map[string][]outcome),
	}
}

// FailSubmissionsWith makes every Submit return err until cleared with nil.
func (e *Engine) FailSubmissionsWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitErr = err
}

// ScriptComplete queues a successful outcome for the next job submitted for
// sourceURI. Without scripting, jobs complete successfully.
func (e *Engine) ScriptComplete(sourceURI string) {
	e.script(sourceURI, outcome{status: transcoder.StatusComplete})
}

// ScriptError queues a failing outcome for the next job submitted for sourceURI.
func (e *Engine) ScriptError(sourceURI, msg string) {
	e.script(sourceURI, outcome{status: transcoder.StatusError, errMsg: msg})
}

func (e *Engine) script(sourceURI string, o outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outcomes[sourceURI] = append(e.outcomes[sourceURI], o)
}

func (e *Engine) Submit(ctx context.Context, req transcoder.SubmitRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.submitErr != nil {
		return "", e.submitErr
	}

	e.nextRef++
	ref := fmt.Sprintf("job-%04d", e.nextRef)
	e.submissions = append(e.submissions, req)

	o := outcome{status: transcoder.StatusComplete}
	if pending := e.outcomes[req.SourceURI]; len(pending) > 0 {
		o = pending[0]
		e.outcomes[req.SourceURI] = pending[1:]
	}

	sig := &transcoder.CompletionSignal{
		JobRef:          ref,
		Status:          o.status,
		ErrorMessage:    o.errMsg,
		DurationSeconds: 12.5,
	}
	if o.status == transcoder.StatusComplete {
		for _, r := range req.Renditions {
			sig.Outputs = append(sig.Outputs, transcoder.Output{
				Tier:        r.Tier,
				ManifestKey: req.OutputPrefix + string(r.Tier) + "/index.m3u8",
			})
		}
	}
	e.jobs[ref] = &job{req: req, sig: sig}
	return ref, nil
}

func (e *Engine) Poll(ctx context.Context, jobRef string) (*transcoder.CompletionSignal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[jobRef]
	if !ok {
		return nil, fmt.Errorf("unknown job ref %q", jobRef)
	}
	return j.sig, nil
}

// Submissions returns every submit call seen so far.
func (e *Engine) Submissions() []transcoder.SubmitRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]transcoder.SubmitRequest(nil), e.submissions...)
}
