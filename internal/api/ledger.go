package api

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tcfw/authchain/pkg/block"
	"github.com/tcfw/authchain/pkg/storage"
)

const serviceName = "authchain.v1.LedgerService"

func init() {
	reg = append(reg, &ledgerApi{})
}

type Empty struct{}

type BlockRequest struct {
	Index uint64 `msgpack:"index"`
	Hash  string `msgpack:"hash"`
}

type ReplicateRequest struct {
	Record string `msgpack:"record"`
}

type BlockResponse struct {
	Record string `msgpack:"record"`
	Length uint64 `msgpack:"length"`
}

// LedgerServiceServer exposes the ledger to the signaling layer and the CLI
type LedgerServiceServer interface {
	LastBlock(context.Context, *Empty) (*BlockResponse, error)
	BlockByIndex(context.Context, *BlockRequest) (*BlockResponse, error)
	BlockByHash(context.Context, *BlockRequest) (*BlockResponse, error)
	Replicate(context.Context, *ReplicateRequest) (*BlockResponse, error)
	Chain(*Empty, grpc.ServerStream) error
}

var _ LedgerServiceServer = (*ledgerApi)(nil)

type ledgerApi struct {
	a *Api
}

func (l *ledgerApi) Setup(a *Api) error {
	l.a = a
	return nil
}

func (l *ledgerApi) Desc() *grpc.ServiceDesc {
	return &ledgerServiceDesc
}

func (l *ledgerApi) LastBlock(ctx context.Context, _ *Empty) (*BlockResponse, error) {
	lg := l.a.n.Ledger()

	return &BlockResponse{Record: lg.LastBlock(), Length: lg.Length()}, nil
}

func (l *ledgerApi) BlockByIndex(ctx context.Context, req *BlockRequest) (*BlockResponse, error) {
	lg := l.a.n.Ledger()

	rec, err := lg.BlockByIndex(ctx, req.Index)
	if err != nil {
		return nil, toStatus(err)
	}

	return &BlockResponse{Record: rec, Length: lg.Length()}, nil
}

func (l *ledgerApi) BlockByHash(ctx context.Context, req *BlockRequest) (*BlockResponse, error) {
	lg := l.a.n.Ledger()

	rec, err := lg.BlockByHash(ctx, req.Hash)
	if err != nil {
		return nil, toStatus(err)
	}

	return &BlockResponse{Record: rec, Length: lg.Length()}, nil
}

func (l *ledgerApi) Replicate(ctx context.Context, req *ReplicateRequest) (*BlockResponse, error) {
	lg := l.a.n.Ledger()

	b, err := lg.Replicate(ctx, []byte(req.Record))
	if err != nil {
		return nil, toStatus(err)
	}

	rec, err := b.Pack()
	if err != nil {
		return nil, toStatus(err)
	}

	return &BlockResponse{Record: rec.String(), Length: lg.Length()}, nil
}

func (l *ledgerApi) Chain(_ *Empty, stream grpc.ServerStream) error {
	w := &recordStream{stream: stream}

	if err := l.a.n.Ledger().Chain(stream.Context(), w); err != nil {
		return toStatus(err)
	}

	if w.buf.Len() != 0 {
		return status.Error(codes.Internal, "partial record at end of chain")
	}

	return nil
}

// recordStream sends each complete record written to it as one message
type recordStream struct {
	stream grpc.ServerStream
	buf    bytes.Buffer
	sent   uint64
}

func (r *recordStream) Write(p []byte) (int, error) {
	r.buf.Write(p)

	for r.buf.Len() >= block.RecordSize {
		r.sent++
		msg := &BlockResponse{Record: string(r.buf.Next(block.RecordSize)), Length: r.sent}
		if err := r.stream.SendMsg(msg); err != nil {
			return 0, err
		}
	}

	return len(p), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, block.ErrInvalidBlock):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrOpNotSupported):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func handlerLastBlock(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(Empty)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).LastBlock(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("LastBlock")}
	return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).LastBlock(ctx, req.(*Empty))
	})
}

func handlerBlockByIndex(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(BlockRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).BlockByIndex(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("BlockByIndex")}
	return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).BlockByIndex(ctx, req.(*BlockRequest))
	})
}

func handlerBlockByHash(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(BlockRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).BlockByHash(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("BlockByHash")}
	return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).BlockByHash(ctx, req.(*BlockRequest))
	})
}

func handlerReplicate(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ReplicateRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).Replicate(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Replicate")}
	return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).Replicate(ctx, req.(*ReplicateRequest))
	})
}

func handlerChain(srv interface{}, stream grpc.ServerStream) error {
	req := new(Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(LedgerServiceServer).Chain(req, stream)
}

func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LastBlock", Handler: handlerLastBlock},
		{MethodName: "BlockByIndex", Handler: handlerBlockByIndex},
		{MethodName: "BlockByHash", Handler: handlerBlockByHash},
		{MethodName: "Replicate", Handler: handlerReplicate},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Chain",
			Handler:       handlerChain,
			ServerStreams: true,
		},
	},
	Metadata: "authchain/v1/ledger",
}
