package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_BRIDGE       = "bridge"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// SetLightsRequest asks the bridge to dispatch a command to every device
// outside of the serial trigger flow.
type SetLightsRequest struct {
	ActorRequestMixIn
	Command Command
}

type SetLightsResponse struct {
	ActorResponseMixIn
	Outcome DispatchOutcome
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
