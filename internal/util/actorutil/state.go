package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

type ActorWithStates struct {
	Behavior actor.Behavior
	current  []ActorState
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

func NewActorWithStates() ActorWithStates {
	return ActorWithStates{Behavior: actor.NewBehavior()}
}

func (s *ActorWithStates) Become(state ActorState) {
	s.current = []ActorState{state}
	s.Behavior.Become(state.Receive)
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.current = append(s.current, state)
	s.Behavior.BecomeStacked(state.Receive)
}

func (s *ActorWithStates) UnbecomeStacked() {
	if len(s.current) > 1 {
		s.current = s.current[:len(s.current)-1]
	}
	s.Behavior.UnbecomeStacked()
}

// StateName returns the name of the active state, "" before the first Become.
func (s *ActorWithStates) StateName() string {
	if len(s.current) == 0 {
		return ""
	}
	return s.current[len(s.current)-1].Name()
}
