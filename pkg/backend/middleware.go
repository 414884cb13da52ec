package backend

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// OpenStreamFunc opens one round's stream.
type OpenStreamFunc func(ctx context.Context, req *Request) (<-chan StreamEvent, error)

// Middleware wraps an OpenStreamFunc.
// Chain(h, m1, m2, m3) results in m1(m2(m3(h))).
type Middleware func(OpenStreamFunc) OpenStreamFunc

func Chain(handler OpenStreamFunc, middlewares ...Middleware) OpenStreamFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// BackendWithMiddleware runs a middleware chain in front of a backend.
type BackendWithMiddleware struct {
	name    string
	handler OpenStreamFunc
}

var _ Backend = (*BackendWithMiddleware)(nil)

func NewBackendWithMiddleware(b Backend, middlewares ...Middleware) *BackendWithMiddleware {
	return &BackendWithMiddleware{
		name:    b.Name(),
		handler: Chain(b.OpenStream, middlewares...),
	}
}

func (b *BackendWithMiddleware) Name() string {
	return b.name
}

func (b *BackendWithMiddleware) OpenStream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	return b.handler(ctx, req)
}

// NewLoggingMiddleware logs every stream: the request size when it opens and
// delta count, byte count and outcome when it terminates.
func NewLoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next OpenStreamFunc) OpenStreamFunc {
		return func(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
			lg := logger.With().Int("turns", len(req.Turns)).Int("system_prompt_len", len(req.SystemPrompt)).Logger()

			lg.Debug().Msg("stream: opening")
			start := time.Now()
			ch, err := next(ctx, req)
			if err != nil {
				lg.Error().Err(err).Msg("stream: could not open")
				return nil, err
			}

			out := make(chan StreamEvent, streamBuffer)
			go func() {
				defer close(out)
				deltas, bytes := 0, 0
				for ev := range ch {
					switch ev.Kind {
					case EventTextDelta:
						deltas++
						bytes += len(ev.Text)
					case EventStreamEnd:
						lg.Debug().Int("deltas", deltas).Int("bytes", bytes).Dur("duration", time.Since(start)).Msg("stream: ended")
					case EventStreamError:
						lg.Warn().Str("kind", string(ev.Error.Kind)).Err(ev.Error.Err).Int("deltas", deltas).Int("bytes", bytes).Dur("duration", time.Since(start)).Msg("stream: failed")
					}
					out <- ev
				}
			}()
			return out, nil
		}
	}
}

// NewSystemPromptMiddleware makes sure p reaches the backend. An existing
// system prompt on the request is kept and p is appended after a blank line.
func NewSystemPromptMiddleware(p string) Middleware {
	return func(next OpenStreamFunc) OpenStreamFunc {
		return func(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
			if p == "" {
				return next(ctx, req)
			}
			r := *req
			if r.SystemPrompt == "" {
				r.SystemPrompt = p
			} else {
				r.SystemPrompt = r.SystemPrompt + "\n\n" + p
			}
			log.Trace().Int("prompt_len", len(r.SystemPrompt)).Msg("systemprompt: applied")
			return next(ctx, &r)
		}
	}
}
