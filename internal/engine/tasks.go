package engine

import (
	"runtime/debug"
	"sync"

	"offerline/internal/logger"
)

// taskGroup runs detached background work. Callers never wait on a task; Wait
// exists for shutdown and tests.
type taskGroup struct {
	wg  sync.WaitGroup
	log *logger.Logger
}

func newTaskGroup(log *logger.Logger) *taskGroup {
	return &taskGroup{log: log}
}

// Go runs fn on its own goroutine. A panic is logged and handed to onPanic.
func (g *taskGroup) Go(name string, fn func(), onPanic func(recovered any)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.log.Error("background task panic", "task", name, "panic", r, "stack", string(debug.Stack()))
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}

func (g *taskGroup) Wait() {
	g.wg.Wait()
}
