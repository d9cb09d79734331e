package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCConfig is the rendered routing config for the grpc kind.
type GRPCConfig struct {
	Target        string // host:port
	Method        string // fully qualified "/package.Service/Method"
	Request       map[string]any
	ServerStream  bool
	MaxMessages   int
	CallTimeout   time.Duration
	UseTLSInsecure bool
}

func grpcFromPlan(config map[string]any) (GRPCConfig, error) {
	cfg := GRPCConfig{MaxMessages: 100, CallTimeout: 30 * time.Second}

	target, _ := config["target"].(string)
	if target == "" {
		return cfg, fmt.Errorf("grpc routing config missing %q", "target")
	}
	cfg.Target = target

	method, _ := config["method"].(string)
	if method == "" {
		return cfg, fmt.Errorf("grpc routing config missing %q", "method")
	}
	cfg.Method = method

	if req, ok := config["request"].(map[string]any); ok {
		cfg.Request = req
	}
	if stream, ok := config["server_stream"].(bool); ok {
		cfg.ServerStream = stream
	}
	if maxMsgs, ok := config["max_messages"].(int); ok && maxMsgs > 0 {
		cfg.MaxMessages = maxMsgs
	}
	return cfg, nil
}

var streamDesc = grpc.StreamDesc{StreamName: "dynamic", ServerStreams: true, ClientStreams: false}

// GRPCExecutor invokes a method descriptor (service.method) against a
// target, marshaling the JSON request into a structpb.Struct since no
// code-generated message types are available for an arbitrary upstream.
// Unary calls return one message; server-streaming calls collect up to
// MaxMessages or until the context is cancelled.
type GRPCExecutor struct{}

// NewGRPCExecutor creates a gRPC executor.
func NewGRPCExecutor() *GRPCExecutor {
	return &GRPCExecutor{}
}

func (e *GRPCExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	cfg, err := grpcFromPlan(inv.Plan.Config)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	requestStruct, err := structpb.NewStruct(cfg.Request)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	conn, err := grpc.NewClient(cfg.Target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}
	defer conn.Close()

	if cfg.ServerStream {
		return e.executeServerStream(ctx, conn, cfg, requestStruct)
	}
	return e.executeUnary(ctx, conn, cfg, requestStruct)
}

func (e *GRPCExecutor) executeUnary(ctx context.Context, conn *grpc.ClientConn, cfg GRPCConfig, req *structpb.Struct) (Result, error) {
	reply := &structpb.Struct{}
	if err := conn.Invoke(ctx, cfg.Method, req, reply); err != nil {
		return grpcErrorResult(ctx, err)
	}
	return SuccessResult(reply.AsMap()), nil
}

func (e *GRPCExecutor) executeServerStream(ctx context.Context, conn *grpc.ClientConn, cfg GRPCConfig, req *structpb.Struct) (Result, error) {
	stream, err := conn.NewStream(ctx, &streamDesc, cfg.Method)
	if err != nil {
		return grpcErrorResult(ctx, err)
	}
	if err := stream.SendMsg(req); err != nil {
		return grpcErrorResult(ctx, err)
	}
	if err := stream.CloseSend(); err != nil {
		return grpcErrorResult(ctx, err)
	}

	var messages []any
	for len(messages) < cfg.MaxMessages {
		msg := &structpb.Struct{}
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				break
			}
			return grpcErrorResult(ctx, err)
		}
		messages = append(messages, msg.AsMap())
	}
	return SuccessResult(messages...), nil
}

func grpcErrorResult(ctx context.Context, err error) (Result, error) {
	if ctx.Err() != nil {
		return transportResultFromContext(ctx), nil
	}
	if st, ok := status.FromError(err); ok {
		body, marshalErr := json.Marshal(map[string]any{"code": st.Code().String(), "message": st.Message()})
		if marshalErr == nil {
			return ToolErrorResult(string(body)), nil
		}
	}
	return TransportErrorResult(TransportUnavailable, err.Error()), nil
}
