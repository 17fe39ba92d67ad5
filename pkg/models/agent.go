package models

// Agent describes a named remote worker in the fleet roster. Agents are
// reached through the gateway transport; the engine never runs them locally.
type Agent struct {
	// Name is the routing identifier the gateway knows the agent by.
	Name string `json:"name" yaml:"name"`
	// Thinking enables extended thinking for this agent's runs.
	Thinking bool `json:"thinking,omitempty" yaml:"thinking,omitempty"`
	// Notes is free-form operator documentation for the agent.
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`
}
