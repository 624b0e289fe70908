package api

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"github.com/tcfw/authchain/pkg/ledger"
)

type APIHandler interface {
	Setup(*Api) error
	Desc() *grpc.ServiceDesc
}

var (
	reg = []APIHandler{}
)

// Node is what the API serves from
type Node interface {
	Ledger() *ledger.Ledger
}

type Api struct {
	n Node
	g *grpc.Server
}

func NewAPI(n Node) (*Api, error) {
	a := &Api{
		n: n,
		g: newGRPCServer(),
	}

	for _, s := range reg {
		a.g.RegisterService(s.Desc(), s)
		if err := s.Setup(a); err != nil {
			return nil, errors.Wrap(err, "registering service")
		}
	}

	return a, nil
}

func (a *Api) ListenAndServe(l net.Addr) error {
	lis, err := net.Listen("tcp", l.String())
	if err != nil {
		return err
	}

	return a.Serve(lis)
}

func (a *Api) Serve(lis net.Listener) error {
	return a.g.Serve(lis)
}

func (a *Api) Shutdown(ctx context.Context) error {
	a.g.GracefulStop()
	return nil
}
