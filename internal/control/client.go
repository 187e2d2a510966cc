package control

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/lambda-feedback/shepherd/internal/process"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
)

// Client calls the control API of a running daemon.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the daemon listening on socket.
func Dial(ctx context.Context, socket string) (*Client, error) {
	c, err := rpc.DialIPC(ctx, socket)
	if err != nil {
		return nil, err
	}

	return NewClient(c), nil
}

func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c}
}

func (c *Client) Start(ctx context.Context, name string) error {
	return c.call(ctx, nil, "start", name)
}

func (c *Client) Stop(ctx context.Context, name string) error {
	return c.call(ctx, nil, "stop", name)
}

func (c *Client) Restart(ctx context.Context, name string) error {
	return c.call(ctx, nil, "restart", name)
}

// Status returns the instances of the named app, or of all apps if name
// is empty.
func (c *Client) Status(ctx context.Context, name string) ([]process.Snapshot, error) {
	var snapshots []process.Snapshot
	if err := c.call(ctx, &snapshots, "status", name); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (c *Client) Reload(ctx context.Context) (*supervisor.ReloadResult, error) {
	var result supervisor.ReloadResult
	if err := c.call(ctx, &result, "reload"); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	return fromRPCError(c.rpc.CallContext(ctx, result, Namespace+"_"+method, args...))
}
