package actorutil

import (
	"github.com/berfenger/serial2govee/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

type forRequest struct {
	req domain.ActorRequest
}

type ExtendedRequest interface {
	Respond(ctx actor.Context, resp domain.ActorResponse)
	ReplyTo(ctx actor.Context) *actor.PID
}

func ForRequest(r domain.ActorRequest) ExtendedRequest {
	return forRequest{req: r}
}

// Respond sends resp to the explicit ReplyTo ref, else to the sender. Fire and
// forget requests (no ReplyTo, no sender) get no response.
func (r forRequest) Respond(ctx actor.Context, resp domain.ActorResponse) {
	if replyTo := r.ReplyTo(ctx); replyTo != nil {
		ctx.Send(replyTo, resp)
	}
}

func (r forRequest) ReplyTo(ctx actor.Context) *actor.PID {
	if r.req.ReplyTo() != nil {
		return (*actor.PID)(r.req.ReplyTo())
	}
	return ctx.Sender()
}
