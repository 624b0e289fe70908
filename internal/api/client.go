package api

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type Client struct {
	cc *grpc.ClientConn
}

func (a *Client) Close() error {
	return a.cc.Close()
}

// NewClient connects to the daemon at the configured daemon_addr
func NewClient() (*Client, error) {
	return Dial(context.Background(), viper.GetString("daemon_addr"))
}

func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(MsgpackCodec{})),
	)

	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to daemon")
	}

	return &Client{cc: cc}, nil
}

func (a *Client) LastBlock(ctx context.Context) (*BlockResponse, error) {
	resp := new(BlockResponse)
	if err := a.cc.Invoke(ctx, fullMethod("LastBlock"), &Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (a *Client) BlockByIndex(ctx context.Context, index uint64) (*BlockResponse, error) {
	resp := new(BlockResponse)
	if err := a.cc.Invoke(ctx, fullMethod("BlockByIndex"), &BlockRequest{Index: index}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (a *Client) BlockByHash(ctx context.Context, hash string) (*BlockResponse, error) {
	resp := new(BlockResponse)
	if err := a.cc.Invoke(ctx, fullMethod("BlockByHash"), &BlockRequest{Hash: hash}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (a *Client) Replicate(ctx context.Context, record string) (*BlockResponse, error) {
	resp := new(BlockResponse)
	if err := a.cc.Invoke(ctx, fullMethod("Replicate"), &ReplicateRequest{Record: record}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Chain writes every record the daemon streams back to w
func (a *Client) Chain(ctx context.Context, w io.Writer) error {
	stream, err := a.cc.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Chain",
		ServerStreams: true,
	}, fullMethod("Chain"))
	if err != nil {
		return err
	}

	if err := stream.SendMsg(&Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg := new(BlockResponse)
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if _, err := io.WriteString(w, msg.Record); err != nil {
			return errors.Wrap(err, "writing record")
		}
	}
}
