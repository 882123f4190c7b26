package tunnel

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotsecuretunneling"
	"github.com/aws/aws-sdk-go-v2/service/iotsecuretunneling/types"

	"github.com/yuriipolishchuk/ssh2iot/internal/errors"
	"github.com/yuriipolishchuk/ssh2iot/internal/logging"
)

// Tunnel statuses as reported by the control plane.
const (
	StatusOpen   = string(types.TunnelStatusOpen)
	StatusClosed = string(types.TunnelStatusClosed)
)

// Connection states of one side of a tunnel.
const (
	Connected    = string(types.ConnectionStatusConnected)
	Disconnected = string(types.ConnectionStatusDisconnected)
)

// ThingTag is the tag key attached to every tunnel opened by ssh2iot.
const ThingTag = "thing"

// listPageSize is the MaxResults passed to ListTunnels.
const listPageSize = 50

// API is the subset of the IoT Secure Tunneling client used here.
type API interface {
	OpenTunnel(ctx context.Context, params *iotsecuretunneling.OpenTunnelInput, optFns ...func(*iotsecuretunneling.Options)) (*iotsecuretunneling.OpenTunnelOutput, error)
	DescribeTunnel(ctx context.Context, params *iotsecuretunneling.DescribeTunnelInput, optFns ...func(*iotsecuretunneling.Options)) (*iotsecuretunneling.DescribeTunnelOutput, error)
	ListTunnels(ctx context.Context, params *iotsecuretunneling.ListTunnelsInput, optFns ...func(*iotsecuretunneling.Options)) (*iotsecuretunneling.ListTunnelsOutput, error)
	CloseTunnel(ctx context.Context, params *iotsecuretunneling.CloseTunnelInput, optFns ...func(*iotsecuretunneling.Options)) (*iotsecuretunneling.CloseTunnelOutput, error)
	RotateTunnelAccessToken(ctx context.Context, params *iotsecuretunneling.RotateTunnelAccessTokenInput, optFns ...func(*iotsecuretunneling.Options)) (*iotsecuretunneling.RotateTunnelAccessTokenOutput, error)
}

var _ API = (*iotsecuretunneling.Client)(nil)

// Summary is a read-only projection of a tunnel from list.
type Summary struct {
	ID          string
	Status      string
	Description string
	CreatedAt   time.Time
}

// IsOpen reports whether the tunnel is OPEN.
func (s Summary) IsOpen() bool {
	return s.Status == StatusOpen
}

// Description is the result of describe.
type Description struct {
	ID               string
	Status           string
	SourceState      string
	DestinationState string
	Description      string
	Services         []string
	ThingName        string
	CreatedAt        time.Time
}

// IsClosed reports whether the tunnel has been closed.
func (d *Description) IsClosed() bool {
	return d.Status == StatusClosed
}

// State returns the connection state for one side.
func (d *Description) State(role Role) string {
	if role == RoleSource {
		return d.SourceState
	}
	return d.DestinationState
}

// Role identifies a side of a tunnel.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// Client talks to the IoT Secure Tunneling control plane.
type Client struct {
	api API
}

// NewClient wraps an API implementation.
func NewClient(api API) *Client {
	return &Client{api: api}
}

// Open provisions a new tunnel to thing for service and returns its id and
// the source access token. Every call creates a new billable tunnel.
func (c *Client) Open(ctx context.Context, thing, service string, maxLifetimeMinutes int) (string, string, error) {
	input := &iotsecuretunneling.OpenTunnelInput{
		Description: aws.String(fmt.Sprintf("tunnel to %s", thing)),
		DestinationConfig: &types.DestinationConfig{
			ThingName: aws.String(thing),
			Services:  []string{service},
		},
		Tags: []types.Tag{
			{Key: aws.String(ThingTag), Value: aws.String(thing)},
		},
		TimeoutConfig: &types.TimeoutConfig{
			MaxLifetimeTimeoutMinutes: aws.Int32(int32(maxLifetimeMinutes)),
		},
	}

	out, err := c.api.OpenTunnel(ctx, input)
	if err != nil {
		return "", "", remoteError("open tunnel", err)
	}

	id := aws.ToString(out.TunnelId)
	token := aws.ToString(out.SourceAccessToken)
	if id == "" || token == "" {
		return "", "", errors.RemoteError("open tunnel", fmt.Errorf("response is missing tunnel id or access token"))
	}

	logging.Debug("tunnel opened", "tunnel", id, "thing", thing, "service", service)
	return id, token, nil
}

// Describe returns the current status and connection states of a tunnel.
func (c *Client) Describe(ctx context.Context, id string) (*Description, error) {
	out, err := c.api.DescribeTunnel(ctx, &iotsecuretunneling.DescribeTunnelInput{
		TunnelId: aws.String(id),
	})
	if err != nil {
		return nil, remoteError("describe tunnel", err)
	}
	if out.Tunnel == nil {
		return nil, errors.RemoteError("describe tunnel", fmt.Errorf("response has no tunnel"))
	}

	t := out.Tunnel
	d := &Description{
		ID:               aws.ToString(t.TunnelId),
		Status:           string(t.Status),
		SourceState:      Disconnected,
		DestinationState: Disconnected,
		Description:      aws.ToString(t.Description),
		CreatedAt:        aws.ToTime(t.CreatedAt),
	}
	if d.ID == "" {
		d.ID = id
	}
	if t.SourceConnectionState != nil && t.SourceConnectionState.Status != "" {
		d.SourceState = string(t.SourceConnectionState.Status)
	}
	if t.DestinationConnectionState != nil && t.DestinationConnectionState.Status != "" {
		d.DestinationState = string(t.DestinationConnectionState.Status)
	}
	if t.DestinationConfig != nil {
		d.ThingName = aws.ToString(t.DestinationConfig.ThingName)
		d.Services = t.DestinationConfig.Services
	}
	return d, nil
}

// List returns the tunnels associated with thing. It is advisory: a failure
// is logged and the tunnels from pages already fetched are returned.
func (c *Client) List(ctx context.Context, thing string) []Summary {
	paginator := iotsecuretunneling.NewListTunnelsPaginator(c.api, &iotsecuretunneling.ListTunnelsInput{
		ThingName:  aws.String(thing),
		MaxResults: aws.Int32(listPageSize),
	})

	var summaries []Summary
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			logging.Warn("listing tunnels failed", "thing", thing, "fetched", len(summaries), "error", describeRemote(err))
			return summaries
		}
		for _, t := range page.TunnelSummaries {
			summaries = append(summaries, Summary{
				ID:          aws.ToString(t.TunnelId),
				Status:      string(t.Status),
				Description: aws.ToString(t.Description),
				CreatedAt:   aws.ToTime(t.CreatedAt),
			})
		}
	}
	return summaries
}

// OpenOnly returns the OPEN tunnels from summaries.
func OpenOnly(summaries []Summary) []Summary {
	var out []Summary
	for _, s := range summaries {
		if s.IsOpen() {
			out = append(out, s)
		}
	}
	return out
}

// Close closes a tunnel. With del set the tunnel is also deleted.
func (c *Client) Close(ctx context.Context, id string, del bool) error {
	_, err := c.api.CloseTunnel(ctx, &iotsecuretunneling.CloseTunnelInput{
		TunnelId: aws.String(id),
		Delete:   aws.Bool(del),
	})
	if err != nil {
		return remoteError("close tunnel", err)
	}
	logging.Debug("tunnel closed", "tunnel", id, "delete", del)
	return nil
}

// Rotate issues a fresh source access token for an existing tunnel.
func (c *Client) Rotate(ctx context.Context, id string) (string, error) {
	out, err := c.api.RotateTunnelAccessToken(ctx, &iotsecuretunneling.RotateTunnelAccessTokenInput{
		TunnelId:   aws.String(id),
		ClientMode: types.ClientModeSource,
	})
	if err != nil {
		return "", remoteError("rotate access token", err)
	}
	token := aws.ToString(out.SourceAccessToken)
	if token == "" {
		return "", errors.RemoteError("rotate access token", fmt.Errorf("response has no source access token"))
	}
	logging.Debug("source access token rotated", "tunnel", id)
	return token, nil
}
