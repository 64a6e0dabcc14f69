package mixnet

import "context"

// Transport is the runtime module that actually joins the mix network.
type Transport interface {
	Connect(ctx context.Context, def NetworkDefinition) error
	Send(ctx context.Context, msg Message) error
	Close() error
}

// NopTransport stands in when no mix-network runtime is available.
type NopTransport struct{}

func (NopTransport) Connect(context.Context, NetworkDefinition) error { return ErrCapabilityMissing }
func (NopTransport) Send(context.Context, Message) error              { return ErrCapabilityMissing }
func (NopTransport) Close() error                                      { return nil }

var _ Transport = NopTransport{}
