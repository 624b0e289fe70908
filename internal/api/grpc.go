package api

import (
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"

	"github.com/tcfw/authchain/internal/utils/logging"
)

func newGRPCServer() *grpc.Server {
	l := logging.Entry().WithField("component", "api")

	streamInterceptors := []grpc.StreamServerInterceptor{
		grpc_logrus.StreamServerInterceptor(l),
		grpc_recovery.StreamServerInterceptor(),
	}
	unaryInterceptors := []grpc.UnaryServerInterceptor{
		grpc_logrus.UnaryServerInterceptor(l),
		grpc_recovery.UnaryServerInterceptor(),
	}

	return grpc.NewServer(
		grpc.ForceServerCodec(MsgpackCodec{}),
		grpc.ChainStreamInterceptor(streamInterceptors...),
		grpc.ChainUnaryInterceptor(unaryInterceptors...),
	)
}
