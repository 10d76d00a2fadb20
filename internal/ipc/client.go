package ipc

import (
	"context"
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
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// call waits for the reply or ctx, whichever comes first. An abandoned call
// still completes on the server.
func (c *Client) call(ctx context.Context, method string, args, reply any) error {
	pending := c.client.Go(serviceName+"."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case done := <-pending.Done:
		return done.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartGolem starts yagna and ya-provider and waits until they are ready or
// failed.
func (c *Client) StartGolem(ctx context.Context) (*GolemResponse, error) {
	var resp GolemResponse
	if err := c.call(ctx, "Start", GolemStartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopGolem stops yagna and ya-provider.
func (c *Client) StopGolem(ctx context.Context) (*GolemResponse, error) {
	var resp GolemResponse
	if err := c.call(ctx, "Stop", GolemStopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobs returns jobs updated at or after since. A zero since lists all.
func (c *Client) ListJobs(ctx context.Context, since time.Time) (*JobListResponse, error) {
	req := JobListRequest{}
	if !since.IsZero() {
		req.Since = since.UTC().Format(time.RFC3339)
	}
	var resp JobListResponse
	if err := c.call(ctx, "ListJobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DescribeJob returns one job. An empty id selects the current job.
func (c *Client) DescribeJob(ctx context.Context, id string) (*JobDescribeResponse, error) {
	var resp JobDescribeResponse
	if err := c.call(ctx, "DescribeJob", JobDescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events returns recent application events.
func (c *Client) Events(ctx context.Context, limit int) (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.call(ctx, "Events", EventsRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log events from the daemon.
func (c *Client) LogTail(ctx context.Context, req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call(ctx, "LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown(ctx context.Context) (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.call(ctx, "Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification(ctx context.Context) (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call(ctx, "TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
