package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ScarletRedJoker/jarvis-safety/internal/core"
)

// FakeRunner records commands instead of spawning subprocesses. Tests use it
// to assert that blocked, dry-run, and queued paths never execute anything.
type FakeRunner struct {
	mu sync.Mutex

	// Commands contains every command handed to Run, in order.
	Commands []string

	// Output is returned by Run unless Err is set.
	Output *core.RunOutput

	// Err, when set, is returned by Run as a spawn failure.
	Err error
}

// Run records the command and replies with the scripted result.
func (f *FakeRunner) Run(_ context.Context, command string) (*core.RunOutput, error) {
	f.mu.Lock()
	f.Commands = append(f.Commands, command)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if f.Output != nil {
		out := *f.Output
		return &out, nil
	}
	return &core.RunOutput{Stdout: "ok\n", ExitCode: 0, Duration: time.Millisecond}, nil
}

// Calls returns a copy of the recorded commands.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Commands))
	copy(out, f.Commands)
	return out
}
