package soroban

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// EventSource captures the subset of the RPC surface the poller needs.
type EventSource interface {
	GetEvents(ctx context.Context, req EventsRequest) (*EventsResponse, error)
}

// RPCClient is a thin wrapper over a JSON-RPC connection to the ledger node.
type RPCClient struct {
	c *rpc.Client
}

// Dial connects to a ledger RPC endpoint.
func Dial(ctx context.Context, url string) (*RPCClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	return &RPCClient{c: c}, nil
}

// GetEvents fetches contract events at and after the request cursor.
func (r *RPCClient) GetEvents(ctx context.Context, req EventsRequest) (*EventsResponse, error) {
	var resp EventsResponse
	if err := r.c.CallContext(ctx, &resp, "getEvents", req); err != nil {
		return nil, fmt.Errorf("getEvents: %w", err)
	}
	return &resp, nil
}

// Health pings the node. Used by the health endpoint and the validate command.
func (r *RPCClient) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := r.c.CallContext(ctx, &resp, "getHealth"); err != nil {
		return fmt.Errorf("getHealth: %w", err)
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("node unhealthy: %s", resp.Status)
	}
	return nil
}

// Close releases the underlying connection.
func (r *RPCClient) Close() {
	if r != nil && r.c != nil {
		r.c.Close()
	}
}
