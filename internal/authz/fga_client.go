package authz

import (
	"context"
	"strconv"

	openfga "github.com/openfga/go-sdk"

	. "github.com/openfga/go-sdk/client"
)

// Note: all OpenFGA SDK calls are kept in this file due to the namespace
// pollution which is the recommended way of using this SDK.

// IFgaClient is the interface for OpenFGA client operations used by the
// authorization gate.
type IFgaClient interface {
	Check(ctx context.Context, req ClientCheckRequest) (*ClientCheckResponse, error)
	BatchCheck(ctx context.Context, req ClientBatchCheckRequest) (*openfga.BatchCheckResponse, error)
	Write(ctx context.Context, req ClientWriteRequest) (*ClientWriteResponse, error)
}

// FgaAdapter wraps the OpenFGA client behind IFgaClient.
type FgaAdapter struct {
	OpenFgaClient
}

// Check executes a single relationship check.
func (c FgaAdapter) Check(ctx context.Context, req ClientCheckRequest) (*ClientCheckResponse, error) {
	return c.OpenFgaClient.Check(ctx).Body(req).Execute()
}

// BatchCheck executes a batch check request.
func (c FgaAdapter) BatchCheck(ctx context.Context, req ClientBatchCheckRequest) (*openfga.BatchCheckResponse, error) {
	return c.OpenFgaClient.BatchCheck(ctx).Body(req).Execute()
}

// Write executes a write request.
func (c FgaAdapter) Write(ctx context.Context, req ClientWriteRequest) (*ClientWriteResponse, error) {
	return c.OpenFgaClient.Write(ctx).Body(req).Execute()
}

// connectFGA creates an OpenFGA client from endpoint settings.
func connectFGA(apiURL, storeID, modelID string) (IFgaClient, error) {
	client, err := NewSdkClient(&ClientConfiguration{
		ApiUrl:               apiURL,
		StoreId:              storeID,
		AuthorizationModelId: modelID,
	})
	if err != nil {
		return nil, err
	}
	return FgaAdapter{OpenFgaClient: *client}, nil
}

// checkRequest builds a single-tuple check.
func checkRequest(user, relation, object string) ClientCheckRequest {
	return ClientCheckRequest{
		User:     user,
		Relation: relation,
		Object:   object,
	}
}

// writeRequest builds a single-tuple write.
func writeRequest(user, relation, object string) ClientWriteRequest {
	return ClientWriteRequest{
		Writes: []ClientTupleKey{{
			User:     user,
			Relation: relation,
			Object:   object,
		}},
	}
}

// deleteRequest builds a single-tuple delete.
func deleteRequest(user, relation, object string) ClientWriteRequest {
	return ClientWriteRequest{
		Deletes: []ClientTupleKeyWithoutCondition{{
			User:     user,
			Relation: relation,
			Object:   object,
		}},
	}
}

// batchCheckRequest builds a check for one user against many objects. The
// store only accepts correlation ids matching ^[\w\d-]{1,36}$, so object
// strings like "doc:<id>" cannot serve as ids; each item is correlated by
// its index instead, and batchCheckCorrelationID maps results back.
func batchCheckRequest(user, relation string, objects []string) ClientBatchCheckRequest {
	checks := make([]ClientBatchCheckItem, 0, len(objects))
	for i, object := range objects {
		checks = append(checks, ClientBatchCheckItem{
			User:          user,
			Relation:      relation,
			Object:        object,
			CorrelationId: batchCheckCorrelationID(i),
		})
	}
	return ClientBatchCheckRequest{Checks: checks}
}

// batchCheckCorrelationID is the correlation id for the item at the given
// index of a batch check.
func batchCheckCorrelationID(index int) string {
	return strconv.Itoa(index)
}
