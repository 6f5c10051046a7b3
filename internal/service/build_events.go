package service

import (
	"github.com/haatos/cijoe/internal/store"
)

// BuildEvents fans build status changes and live output out to SSE
// clients.
type BuildEvents struct {
	Status *SSEClientMap[store.Build]
	Output *SSEClientMap[string]
}

func NewBuildEvents() *BuildEvents {
	return &BuildEvents{
		Status: NewSSEClientMap[store.Build](),
		Output: NewSSEClientMap[string](),
	}
}

func (e *BuildEvents) PublishStatus(b store.Build) {
	e.Status.SendToClients(b)
}

// Write lets the events act as the live sink of a build's output.
func (e *BuildEvents) Write(p []byte) (int, error) {
	e.Output.SendToClients(string(p))
	return len(p), nil
}
