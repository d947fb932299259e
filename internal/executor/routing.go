package executor

import "github.com/gorax/flowengine/internal/workflow"

// routePortField is the sentinel key a record may carry so RouteRecord can
// infer the source port without an explicit argument.
const routePortField = "_routePort"

// RoutingContext deposits records produced by one step into the correct
// downstream buffers, by declared output port. Its lifetime is the
// containing step's single execution.
type RoutingContext struct {
	ExecutionID  string
	SourceNodeID string
	OutputPorts  []workflow.OutputPort
	Store        *BufferStore
}

// NewRoutingContext builds a RoutingContext from a StepNode's declared
// output ports.
func NewRoutingContext(executionID, sourceNodeID string, ports []workflow.OutputPort, store *BufferStore) *RoutingContext {
	return &RoutingContext{
		ExecutionID:  executionID,
		SourceNodeID: sourceNodeID,
		OutputPorts:  ports,
		Store:        store,
	}
}

// RouteRecord appends record to every output port whose SourcePort matches
// sourcePort. If sourcePort is empty, the record's _routePort sentinel
// field is consulted. Returns a warning string (no-op) when nothing
// matched, per spec §4.3.
func (r *RoutingContext) RouteRecord(record Record, sourcePort string) (warning string, err error) {
	if sourcePort == "" {
		if v, ok := record[routePortField]; ok {
			if s, ok := v.(string); ok {
				sourcePort = s
			}
		}
	}

	matched := false
	for _, port := range r.OutputPorts {
		if port.SourcePort != sourcePort {
			continue
		}
		matched = true
		if err := r.Store.Append(r.ExecutionID, port.TargetNodeID, port.TargetPort, record); err != nil {
			return "", err
		}
	}
	if !matched {
		return "no output port declared for source port " + sourcePort, nil
	}
	return "", nil
}

// RouteToDefault appends record to the first declared output port (stable
// declaration order). A no-op when no ports are declared (spec §9 Open
// Questions resolves this ambiguity as no-op).
func (r *RoutingContext) RouteToDefault(record Record) error {
	if len(r.OutputPorts) == 0 {
		return nil
	}
	port := r.OutputPorts[0]
	return r.Store.Append(r.ExecutionID, port.TargetNodeID, port.TargetPort, record)
}

// RouteToAllPorts broadcasts record to every declared output port.
func (r *RoutingContext) RouteToAllPorts(record Record) error {
	for _, port := range r.OutputPorts {
		if err := r.Store.Append(r.ExecutionID, port.TargetNodeID, port.TargetPort, record); err != nil {
			return err
		}
	}
	return nil
}
