package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.client.Call("Caddis.Ping", PingRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Caddis.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobs returns registry entries optionally filtered by states.
func (c *Client) ListJobs(states []string) (*ListJobsResponse, error) {
	var resp ListJobsResponse
	req := ListJobsRequest{States: states}
	if err := c.client.Call("Caddis.ListJobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DescribeJob returns details for a single job.
func (c *Client) DescribeJob(id string) (*DescribeJobResponse, error) {
	var resp DescribeJobResponse
	req := DescribeJobRequest{ID: id}
	if err := c.client.Call("Caddis.DescribeJob", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearFinished removes released jobs from the registry.
func (c *Client) ClearFinished() (*ClearFinishedResponse, error) {
	var resp ClearFinishedResponse
	if err := c.client.Call("Caddis.ClearFinished", ClearFinishedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
