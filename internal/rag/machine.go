package rag

import "fmt"

// State names one stage of the answering pipeline.
type State string

const (
	StateIdle                State = "idle"
	StateRetrieving          State = "retrieving"
	StateContextSufficient   State = "context_sufficient"
	StateContextInsufficient State = "context_insufficient"
	StateWebFallback         State = "web_fallback"
	StatePromptAssembly      State = "prompt_assembly"
	StateLLMInvocation       State = "llm_invocation"
	StateResponseParsing     State = "response_parsing"
	StateSourceAttribution   State = "source_attribution"
)

// transitions is the full table of legal state changes. Every request walks
// this graph; an edge missing here is a pipeline bug, not an input error.
var transitions = map[State][]State{
	StateIdle:                {StateRetrieving},
	StateRetrieving:          {StateContextSufficient, StateContextInsufficient, StateIdle},
	StateContextSufficient:   {StatePromptAssembly, StateIdle},
	StateContextInsufficient: {StateWebFallback, StatePromptAssembly, StateIdle},
	StateWebFallback:         {StatePromptAssembly, StateIdle},
	StatePromptAssembly:      {StateLLMInvocation},
	StateLLMInvocation:       {StateResponseParsing, StateIdle},
	StateResponseParsing:     {StateSourceAttribution, StateIdle},
	StateSourceAttribution:   {StateIdle},
}

// machine tracks one request's position in the pipeline. Each request owns
// its machine; there is no shared pipeline state across requests.
type machine struct {
	state State
}

func newMachine() *machine {
	return &machine{state: StateIdle}
}

// to advances to next if the transition table allows it.
func (m *machine) to(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid state transition %s -> %s", m.state, next)
}
