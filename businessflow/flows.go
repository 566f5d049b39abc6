package businessflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/algosec/algosec-go/comparison"
	"github.com/algosec/algosec-go/domain"
	"github.com/algosec/algosec-go/internal/validation"
)

// missingServicePattern extracts the protocol and port of service objects
// the flows API reported as missing when a flow creation is rejected.
var missingServicePattern = regexp.MustCompile(`(?i)Service object named (UDP|TCP)/(\d+) does not exist`)

// CreateMissingNetworkObjects creates a Host network object for every
// given IP or subnet that is not already defined on the server. Strings
// that are not valid IPs or subnets are skipped; those are object names
// that must already exist.
func (c *Client) CreateMissingNetworkObjects(ctx context.Context, networkObjects []string) ([]domain.NetworkObject, error) {
	var missing []string
	for _, object := range networkObjects {
		if !validation.IsIPOrSubnet(object) {
			continue
		}
		found, err := c.SearchNetworkObjects(ctx, object, domain.SearchExact)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			missing = append(missing, object)
			continue
		}
		exists := false
		for _, candidate := range found {
			if candidate.Name == object {
				exists = true
				break
			}
		}
		if !exists {
			missing = append(missing, object)
		}
	}

	var created []domain.NetworkObject
	for _, object := range missing {
		createdObject, err := c.CreateNetworkObject(ctx, domain.ObjectTypeHost, object, object)
		if err != nil {
			return created, err
		}
		created = append(created, *createdObject)
	}
	return created, nil
}

// IsFlowContainedInApp reports whether the requested flow is already
// covered by any existing flow of the application. The requested flow must
// be resolved first with ResolveFlow.
func (c *Client) IsFlowContainedInApp(ctx context.Context, appRevisionID int, requested *domain.RequestedFlow) (bool, error) {
	if !requested.Resolved() {
		return false, domain.ErrUnresolvedFlow
	}
	flows, err := c.GetApplicationFlows(ctx, appRevisionID)
	if err != nil {
		return false, err
	}
	for i := range flows {
		if comparison.IsIncludedIn(requested, &flows[i]) {
			return true, nil
		}
	}
	return false, nil
}

// CreateApplicationFlow creates an application flow on the given
// application revision. Network objects missing from the server are
// created first, and when the server rejects the flow because of missing
// protocol/port service objects those services are created and the
// creation is retried once.
func (c *Client) CreateApplicationFlow(ctx context.Context, appRevisionID int, requested *domain.RequestedFlow) (*domain.Flow, error) {
	return c.createApplicationFlow(ctx, appRevisionID, requested, true, true)
}

func (c *Client) createApplicationFlow(ctx context.Context, appRevisionID int, requested *domain.RequestedFlow, retryMissingServices, createMissingObjects bool) (*domain.Flow, error) {
	if createMissingObjects {
		seen := make(map[string]bool)
		var objects []string
		for _, object := range append(append([]string{}, requested.Destinations...), requested.Sources...) {
			if !seen[object] {
				seen[object] = true
				objects = append(objects, object)
			}
		}
		if _, err := c.CreateMissingNetworkObjects(ctx, objects); err != nil {
			return nil, err
		}
	}

	// The flows API expects a list of NewFlow definitions.
	var createdFlows []domain.Flow
	callURL := fmt.Sprintf("%s/%d/flows/new", c.applicationsURL(), appRevisionID)
	err := c.do(ctx, http.MethodPost, callURL, []domain.NewFlowDefinition{requested.FlowDefinition()}, &createdFlows)
	if err == nil {
		if len(createdFlows) == 0 {
			return nil, &domain.APIError{Message: "flow creation returned no flows"}
		}
		return &createdFlows[0], nil
	}
	if !retryMissingServices {
		return nil, err
	}

	missingServices, ok := missingServicesFromError(err)
	if !ok {
		return nil, err
	}
	for _, service := range missingServices {
		serviceName := service.Protocol + "/" + service.Port
		if _, createErr := c.CreateNetworkService(ctx, serviceName, []ServiceContent{{Protocol: service.Protocol, Port: service.Port}}); createErr != nil {
			return nil, createErr
		}
	}
	return c.createApplicationFlow(ctx, appRevisionID, requested, false, false)
}

// missingServicesFromError extracts missing service objects from a flow
// creation rejection. The flows API reports them as a BAD_REQUEST with a
// list of error strings naming each missing service.
func missingServicesFromError(err error) ([]ServiceContent, bool) {
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		return nil, false
	}
	lines, ok := apiErr.Body.([]any)
	if !ok {
		return nil, false
	}

	var services []ServiceContent
	for _, line := range lines {
		text, ok := line.(string)
		if !ok {
			continue
		}
		if match := missingServicePattern.FindStringSubmatch(text); match != nil {
			services = append(services, ServiceContent{Protocol: match[1], Port: match[2]})
		}
	}
	if len(services) == 0 {
		return nil, false
	}
	return services, true
}

// ResolveFlow populates the requested flow's derived state: the
// containment maps from each source and destination to the IDs of the
// network objects containing it, and the flattened set of literal
// services. A flow must be resolved before it can be compared against
// existing flows.
func (c *Client) ResolveFlow(ctx context.Context, requested *domain.RequestedFlow) error {
	sourceContainment, err := c.containingObjectIDs(ctx, requested.Sources)
	if err != nil {
		return err
	}
	destinationContainment, err := c.containingObjectIDs(ctx, requested.Destinations)
	if err != nil {
		return err
	}

	aggregated := make(domain.ServiceSet)
	for _, service := range requested.NetworkServices {
		literal, err := domain.NewLiteralService(service)
		if err == nil {
			aggregated[literal] = true
			continue
		}
		// Named service: expand the definition to its literal members.
		networkService, err := c.GetNetworkServiceByName(ctx, service)
		if err != nil {
			return fmt.Errorf("unable to resolve definition for requested service %q: %w", service, err)
		}
		for _, member := range networkService.Services {
			literal, err := domain.NewLiteralService(member)
			if err != nil {
				return err
			}
			aggregated[literal] = true
		}
	}

	requested.SourceContainment = sourceContainment
	requested.DestinationContainment = destinationContainment
	requested.AggregatedServices = aggregated
	return nil
}

// containingObjectIDs maps each IP or subnet to the IDs of the network
// objects containing it. Object names are first expanded to the IP
// addresses they are made of.
func (c *Client) containingObjectIDs(ctx context.Context, networkObjects []string) (map[string]domain.IDSet, error) {
	containment := make(map[string]domain.IDSet)
	for _, object := range networkObjects {
		var ipsAndSubnets []string
		if validation.IsIPOrSubnet(object) {
			ipsAndSubnets = []string{object}
		} else {
			resolved, err := c.GetNetworkObjectByName(ctx, object)
			if err != nil {
				return nil, fmt.Errorf("unable to resolve network object by name %q: %w", object, err)
			}
			ipsAndSubnets = resolved.IPAddresses
		}
		for _, ipOrSubnet := range ipsAndSubnets {
			containing, err := c.SearchNetworkObjects(ctx, ipOrSubnet, domain.SearchContained)
			if err != nil {
				return nil, err
			}
			ids := make(domain.IDSet, len(containing))
			for _, containingObject := range containing {
				ids[containingObject.ObjectID] = true
			}
			containment[ipOrSubnet] = ids
		}
	}
	return containment, nil
}
