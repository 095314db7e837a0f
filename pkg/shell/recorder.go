package shell

import (
	"context"
	"strings"
	"sync"
)

// Recorder is an in-memory Runner for tests. It records every invocation and
// answers from canned responses keyed by the joined argv.
type Recorder struct {
	mu       sync.Mutex
	Calls    []Command
	Outputs  map[string]string
	Failures map[string]error
}

func NewRecorder() *Recorder {
	return &Recorder{
		Outputs:  make(map[string]string),
		Failures: make(map[string]error),
	}
}

// Respond sets the stdout returned for argv.
func (r *Recorder) Respond(output string, argv ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outputs[strings.Join(argv, " ")] = output
}

// Fail makes argv fail with an ExternalProcessError carrying exitCode.
func (r *Recorder) Fail(exitCode int, argv ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures[strings.Join(argv, " ")] = &ExternalProcessError{
		Argv:     append([]string(nil), argv...),
		ExitCode: exitCode,
		Stderr:   "simulated failure",
	}
}

func (r *Recorder) Run(ctx context.Context, cmd Command) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, cmd)
	key := strings.Join(cmd.Argv, " ")
	if err, ok := r.Failures[key]; ok {
		return "", err
	}
	return r.Outputs[key], nil
}

func (r *Recorder) Attach(ctx context.Context, cmd Command) error {
	_, err := r.Run(ctx, cmd)
	return err
}

// Invocations returns the joined argv of every recorded call, in order.
func (r *Recorder) Invocations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		out = append(out, strings.Join(c.Argv, " "))
	}
	return out
}
