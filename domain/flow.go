package domain

import (
	"encoding/json"
	"strings"
)

// FlowTypeApplication is the flow type created and returned by the
// BusinessFlow flows API. Other flow types (e.g. shared flows) are filtered
// out by the client.
const FlowTypeApplication = "APPLICATION_FLOW"

// anyEntityName marks the server-side "no restriction" sentinel for
// network applications and users.
const anyEntityName = "Any"

// IDSet is a set of BusinessFlow object IDs.
type IDSet map[string]bool

// NewIDSet builds an IDSet from the given object IDs.
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// ServiceSet is a set of literal services.
type ServiceSet map[LiteralService]bool

// RequestedFlow is a user-declared intent to create an application flow.
//
// The declared fields describe the flow as the user named it. The resolved
// fields are populated by businessflow.Client.ResolveFlow before the flow
// can be compared against existing flows: containment maps from each
// source/destination to the IDs of the network objects containing it, and
// the flattened set of literal services implied by the declared services.
type RequestedFlow struct {
	Name                string
	Sources             []string
	Destinations        []string
	NetworkUsers        []string
	NetworkApplications []string
	NetworkServices     []string
	Comment             string
	CustomFields        []CustomField
	Type                string

	// Resolved state, populated by businessflow.Client.ResolveFlow.
	SourceContainment      map[string]IDSet
	DestinationContainment map[string]IDSet
	AggregatedServices     ServiceSet
}

// CustomField is a custom field attached to a flow on creation.
type CustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewRequestedFlow creates a RequestedFlow with the default APPLICATION
// type. Literal protocol/port service strings are normalized to uppercase;
// BusinessFlow only matches service objects by their uppercase names.
func NewRequestedFlow(name string, sources, destinations, networkUsers, networkApplications, networkServices []string, comment string) *RequestedFlow {
	normalized := make([]string, len(networkServices))
	for i, service := range networkServices {
		if IsProtocolString(service) {
			service = strings.ToUpper(service)
		}
		normalized[i] = service
	}
	return &RequestedFlow{
		Name:                name,
		Sources:             sources,
		Destinations:        destinations,
		NetworkUsers:        networkUsers,
		NetworkApplications: networkApplications,
		NetworkServices:     normalized,
		Comment:             comment,
		Type:                "APPLICATION",
	}
}

// Resolved reports whether the containment maps and aggregated services
// have been populated. Comparison against existing flows requires a
// resolved flow.
func (f *RequestedFlow) Resolved() bool {
	return f.SourceContainment != nil && f.DestinationContainment != nil && f.AggregatedServices != nil
}

// NamedObject is the minimal object-by-name shape the flows API expects.
type NamedObject struct {
	Name string `json:"name"`
}

// NamedObjects wraps each name in a NamedObject.
func NamedObjects(names []string) []NamedObject {
	objects := make([]NamedObject, len(names))
	for i, name := range names {
		objects[i] = NamedObject{Name: name}
	}
	return objects
}

// NewFlowDefinition is the wire shape of a NewFlow as expected by the
// BusinessFlow flows API.
type NewFlowDefinition struct {
	Type                string        `json:"type"`
	Name                string        `json:"name"`
	Sources             []NamedObject `json:"sources"`
	Destinations        []NamedObject `json:"destinations"`
	Users               []string      `json:"users"`
	NetworkApplications []NamedObject `json:"network_applications"`
	Services            []NamedObject `json:"services"`
	Comment             string        `json:"comment"`
	CustomFields        []CustomField `json:"custom_fields"`
}

// FlowDefinition returns the NewFlow payload for this requested flow.
func (f *RequestedFlow) FlowDefinition() NewFlowDefinition {
	customFields := f.CustomFields
	if customFields == nil {
		customFields = []CustomField{}
	}
	return NewFlowDefinition{
		Type:                f.Type,
		Name:                f.Name,
		Sources:             NamedObjects(f.Sources),
		Destinations:        NamedObjects(f.Destinations),
		Users:               f.NetworkUsers,
		NetworkApplications: NamedObjects(f.NetworkApplications),
		Services:            NamedObjects(f.NetworkServices),
		Comment:             f.Comment,
		CustomFields:        customFields,
	}
}

// Flow is a read-only snapshot of a flow defined on the BusinessFlow
// server.
type Flow struct {
	FlowID              json.Number      `json:"flowID"`
	Name                string           `json:"name"`
	FlowType            string           `json:"flowType"`
	Sources             []FlowObject     `json:"sources"`
	Destinations        []FlowObject     `json:"destinations"`
	Services            []FlowService    `json:"services"`
	NetworkApplications FlowEntities     `json:"networkApplications"`
	NetworkUsers        FlowEntities     `json:"networkUsers"`
	Comment             string           `json:"comment"`
	Connectivity        FlowConnectivity `json:"connectivityStatus"`
}

// FlowObject is a network object referenced as a source or destination of
// an existing flow.
type FlowObject struct {
	ObjectID string `json:"objectID"`
	Name     string `json:"name"`
}

// FlowService is a named service group attached to an existing flow,
// exposing the literal protocol/port strings it is made of.
type FlowService struct {
	Name     string   `json:"name"`
	Services []string `json:"services"`
}

// FlowEntities holds the network applications or users of an existing
// flow. The server reports "no restriction" with a single sentinel entry;
// that case is decided here, at the decoding boundary, so comparison code
// never has to inspect sentinel records.
type FlowEntities struct {
	Unrestricted bool
	Names        []string
}

// flowEntity is the wire shape of a single application or user record. The
// applications sentinel carries revisionID 0, the users sentinel id 0;
// both are named "Any".
type flowEntity struct {
	ID         json.Number `json:"id"`
	RevisionID json.Number `json:"revisionID"`
	Name       string      `json:"name"`
}

// UnmarshalJSON decodes the entity list, collapsing the "Any" sentinel
// into the Unrestricted variant. A missing or empty list stays a Named
// variant with no names.
func (e *FlowEntities) UnmarshalJSON(data []byte) error {
	var entities []flowEntity
	if err := json.Unmarshal(data, &entities); err != nil {
		return err
	}
	if len(entities) == 1 && entities[0].Name == anyEntityName {
		*e = FlowEntities{Unrestricted: true}
		return nil
	}
	names := make([]string, len(entities))
	for i, entity := range entities {
		names[i] = entity.Name
	}
	*e = FlowEntities{Names: names}
	return nil
}

// MarshalJSON encodes the entity list back to its wire shape. The
// Unrestricted variant round-trips as the single "Any" sentinel.
func (e FlowEntities) MarshalJSON() ([]byte, error) {
	if e.Unrestricted {
		return json.Marshal([]flowEntity{{Name: anyEntityName}})
	}
	entities := make([]flowEntity, len(e.Names))
	for i, name := range e.Names {
		entities[i] = flowEntity{Name: name}
	}
	return json.Marshal(entities)
}

// Unrestricted returns the "no restriction" variant.
func UnrestrictedEntities() FlowEntities {
	return FlowEntities{Unrestricted: true}
}

// NamedEntities returns a restricted variant holding the given names.
func NamedEntities(names ...string) FlowEntities {
	return FlowEntities{Names: names}
}

// FlowConnectivity is the connectivity status reported for a flow.
type FlowConnectivity struct {
	FlowID json.Number `json:"flowId"`
	Status string      `json:"status"`
}
