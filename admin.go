package pester

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bobg/mid"
)

// AdminCmd is the payload of the /admin endpoint.
type AdminCmd struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// OnAdmin returns the handler for the /admin endpoint. Supported commands:
// "shutdown" gracefully stops the HTTP server and closes ch; "stats" logs
// the queue depth and the number of tracked threads.
func (s *Service) OnAdmin(httpServer *http.Server, ch chan struct{}) func(context.Context, AdminCmd) error {
	return func(ctx context.Context, cmd AdminCmd) error {
		if cmd.Key != s.AdminKey {
			return mid.CodeErr{C: http.StatusUnauthorized}
		}
		switch cmd.Name {
		case "shutdown":
			// Run the following in a goroutine,
			// so this handler can finish,
			// which is required for the call to Shutdown to finish.
			// (Deadlock otherwise.)
			go func() {
				httpServer.Shutdown(ctx)
				close(ch)
			}()
			return nil

		case "stats":
			tracked, err := s.Threads.All(ctx)
			if err != nil {
				return mid.CodeErr{C: http.StatusInternalServerError, Err: err}
			}
			s.Logger.Info("stats", "queue_depth", s.Queue.Len(), "tracked_threads", len(tracked))
			return nil
		}

		return mid.CodeErr{
			C:   http.StatusBadRequest,
			Err: fmt.Errorf("unknown admin command %s", cmd.Name),
		}
	}
}
