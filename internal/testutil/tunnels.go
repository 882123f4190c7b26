package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/iotsecuretunneling"
	"github.com/aws/aws-sdk-go-v2/service/iotsecuretunneling/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// TunnelServer is an in-memory IoT Secure Tunneling control plane.
type TunnelServer struct {
	mu sync.Mutex

	tunnels map[string]*types.Tunnel
	order   []string
	deleted map[string]bool
	nextID  int
	calls   map[string]int

	// PageSize caps ListTunnels pages; zero means MaxResults from the request.
	PageSize int

	// OnDescribe runs before DescribeTunnel answers, with the 1-based
	// describe count for that tunnel. Tests use it to move connection
	// states forward.
	OnDescribe func(t *types.Tunnel, call int)

	// Errors returned by the named operation ("OpenTunnel", "ListTunnels", ...).
	Errors map[string]error

	// FailListFrom is the 1-based ListTunnels call from which
	// Errors["ListTunnels"] is returned. Zero fails every call.
	FailListFrom int

	describes map[string]int
}

// NewTunnelServer returns an empty TunnelServer.
func NewTunnelServer() *TunnelServer {
	return &TunnelServer{
		tunnels:   make(map[string]*types.Tunnel),
		deleted:   make(map[string]bool),
		calls:     make(map[string]int),
		describes: make(map[string]int),
		Errors:    make(map[string]error),
	}
}

func (s *TunnelServer) record(op string) error {
	s.calls[op]++
	return s.Errors[op]
}

// Calls returns how many times op was invoked.
func (s *TunnelServer) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// AddTunnel seeds a tunnel for thing with the given status and returns its id.
func (s *TunnelServer) AddTunnel(thing string, status types.TunnelStatus) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(thing, []string{"SSH"}, status, nil)
}

func (s *TunnelServer) addLocked(thing string, services []string, status types.TunnelStatus, timeout *types.TimeoutConfig) string {
	s.nextID++
	id := fmt.Sprintf("tun-%04d", s.nextID)
	created := time.Date(2026, 1, 1, 0, 0, s.nextID, 0, time.UTC)
	s.tunnels[id] = &types.Tunnel{
		TunnelId:    aws.String(id),
		TunnelArn:   aws.String("arn:aws:iot:us-east-1:123456789012:tunnel/" + id),
		Status:      status,
		Description: aws.String("tunnel to " + thing),
		CreatedAt:   &created,
		DestinationConfig: &types.DestinationConfig{
			ThingName: aws.String(thing),
			Services:  services,
		},
		TimeoutConfig:              timeout,
		SourceConnectionState:      &types.ConnectionState{Status: types.ConnectionStatusDisconnected},
		DestinationConnectionState: &types.ConnectionState{Status: types.ConnectionStatusDisconnected},
	}
	s.order = append(s.order, id)
	return id
}

// Tunnel returns a copy of the stored tunnel.
func (s *TunnelServer) Tunnel(id string) (types.Tunnel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tunnels[id]
	if !ok {
		return types.Tunnel{}, false
	}
	return *t, true
}

// Deleted reports whether id was closed with Delete set.
func (s *TunnelServer) Deleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted[id]
}

// SetStates sets both connection states of a tunnel.
func (s *TunnelServer) SetStates(id string, source, destination types.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tunnels[id]; ok {
		t.SourceConnectionState.Status = source
		t.DestinationConnectionState.Status = destination
	}
}

func (s *TunnelServer) OpenTunnel(
	ctx context.Context,
	input *iotsecuretunneling.OpenTunnelInput,
	opts ...func(*iotsecuretunneling.Options),
) (*iotsecuretunneling.OpenTunnelOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("OpenTunnel"); err != nil {
		return nil, err
	}
	if input.DestinationConfig == nil || aws.ToString(input.DestinationConfig.ThingName) == "" {
		return nil, apiError("InvalidRequestException", "destination thing name is required")
	}

	id := s.addLocked(aws.ToString(input.DestinationConfig.ThingName),
		input.DestinationConfig.Services, types.TunnelStatusOpen, input.TimeoutConfig)
	s.tunnels[id].Description = input.Description
	s.tunnels[id].Tags = input.Tags

	return &iotsecuretunneling.OpenTunnelOutput{
		TunnelId:               aws.String(id),
		TunnelArn:              s.tunnels[id].TunnelArn,
		SourceAccessToken:      aws.String("source-" + id),
		DestinationAccessToken: aws.String("destination-" + id),
	}, nil
}

func (s *TunnelServer) DescribeTunnel(
	ctx context.Context,
	input *iotsecuretunneling.DescribeTunnelInput,
	opts ...func(*iotsecuretunneling.Options),
) (*iotsecuretunneling.DescribeTunnelOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DescribeTunnel"); err != nil {
		return nil, err
	}

	id := aws.ToString(input.TunnelId)
	t, ok := s.tunnels[id]
	if !ok {
		return nil, notFound(id)
	}
	s.describes[id]++
	if s.OnDescribe != nil {
		s.OnDescribe(t, s.describes[id])
	}

	cp := *t
	src := *t.SourceConnectionState
	dst := *t.DestinationConnectionState
	cp.SourceConnectionState = &src
	cp.DestinationConnectionState = &dst
	return &iotsecuretunneling.DescribeTunnelOutput{Tunnel: &cp}, nil
}

func (s *TunnelServer) ListTunnels(
	ctx context.Context,
	input *iotsecuretunneling.ListTunnelsInput,
	opts ...func(*iotsecuretunneling.Options),
) (*iotsecuretunneling.ListTunnelsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ListTunnels"); err != nil && s.calls["ListTunnels"] >= s.FailListFrom {
		return nil, err
	}

	thing := aws.ToString(input.ThingName)
	var ids []string
	for _, id := range s.order {
		t := s.tunnels[id]
		if t == nil {
			continue
		}
		if thing != "" && aws.ToString(t.DestinationConfig.ThingName) != thing {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if tok := aws.ToString(input.NextToken); tok != "" {
		if _, err := fmt.Sscanf(tok, "page-%d", &start); err != nil {
			return nil, apiError("InvalidRequestException", "bad next token")
		}
	}

	size := s.PageSize
	if size == 0 && input.MaxResults != nil {
		size = int(*input.MaxResults)
	}
	if size <= 0 {
		size = len(ids)
	}

	end := min(start+size, len(ids))
	out := &iotsecuretunneling.ListTunnelsOutput{}
	for _, id := range ids[start:end] {
		t := s.tunnels[id]
		out.TunnelSummaries = append(out.TunnelSummaries, types.TunnelSummary{
			TunnelId:    t.TunnelId,
			TunnelArn:   t.TunnelArn,
			Status:      t.Status,
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		})
	}
	if end < len(ids) {
		out.NextToken = aws.String(fmt.Sprintf("page-%d", end))
	}
	return out, nil
}

func (s *TunnelServer) CloseTunnel(
	ctx context.Context,
	input *iotsecuretunneling.CloseTunnelInput,
	opts ...func(*iotsecuretunneling.Options),
) (*iotsecuretunneling.CloseTunnelOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CloseTunnel"); err != nil {
		return nil, err
	}

	id := aws.ToString(input.TunnelId)
	t, ok := s.tunnels[id]
	if !ok {
		return nil, notFound(id)
	}
	t.Status = types.TunnelStatusClosed
	t.SourceConnectionState.Status = types.ConnectionStatusDisconnected
	t.DestinationConnectionState.Status = types.ConnectionStatusDisconnected
	if aws.ToBool(input.Delete) {
		s.deleted[id] = true
		delete(s.tunnels, id)
	}
	return &iotsecuretunneling.CloseTunnelOutput{}, nil
}

func (s *TunnelServer) RotateTunnelAccessToken(
	ctx context.Context,
	input *iotsecuretunneling.RotateTunnelAccessTokenInput,
	opts ...func(*iotsecuretunneling.Options),
) (*iotsecuretunneling.RotateTunnelAccessTokenOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("RotateTunnelAccessToken"); err != nil {
		return nil, err
	}

	id := aws.ToString(input.TunnelId)
	t, ok := s.tunnels[id]
	if !ok {
		return nil, notFound(id)
	}
	if t.Status != types.TunnelStatusOpen {
		return nil, apiError("InvalidRequestException", "tunnel is not open")
	}

	out := &iotsecuretunneling.RotateTunnelAccessTokenOutput{TunnelArn: t.TunnelArn}
	n := s.calls["RotateTunnelAccessToken"]
	if input.ClientMode == types.ClientModeSource || input.ClientMode == types.ClientModeAll {
		out.SourceAccessToken = aws.String(fmt.Sprintf("source-%s-r%d", id, n))
	}
	if input.ClientMode == types.ClientModeDestination || input.ClientMode == types.ClientModeAll {
		out.DestinationAccessToken = aws.String(fmt.Sprintf("destination-%s-r%d", id, n))
	}
	return out, nil
}

func apiError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message}
}

func notFound(id string) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{
				Response: &http.Response{StatusCode: http.StatusNotFound},
			},
			Err: apiError("ResourceNotFoundException", fmt.Sprintf("tunnel %s not found", id)),
		},
	}
}

// APIError returns a smithy API error with the given code, for injection
// through TunnelServer.Errors.
func APIError(code, message string) error {
	return apiError(code, message)
}

// HTTPError returns an SDK response error carrying status and an API error code.
func HTTPError(status int, code string) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{
				Response: &http.Response{StatusCode: status},
			},
			Err: apiError(code, http.StatusText(status)),
		},
	}
}
