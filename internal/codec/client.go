package codec

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/assembler"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/orchestrator"
)

var (
	_ analysis.Analyzer      = (*Client)(nil)
	_ orchestrator.Learner   = (*Client)(nil)
	_ assembler.SemanticHook = (*Client)(nil)
)

// #region methods
const (
	analyzeMethod    = "/responder.AnalysisService/Analyze"
	learnMethod      = "/responder.AnalysisService/Learn"
	similarityMethod = "/responder.AnalysisService/Similarity"
)
// #endregion methods

// #region client-struct
// Client talks to the external analysis/learning service. Payloads are
// structpb.Struct values whose field names follow the service's JSON shape.
type Client struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
}
// #endregion client-struct

// #region constructor
// NewClient connects to the analysis gRPC server at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, closer: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection.
// Used for testing without a real gRPC server.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{conn: cc}
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
// #endregion close

// #region analyze
// Analyze sends the utterance to the service and decodes its analysis.
func (c *Client) Analyze(ctx context.Context, userID, text string) (analysis.UtteranceAnalysis, error) {
	req, err := structpb.NewStruct(map[string]any{
		"userId": userID,
		"text":   text,
	})
	if err != nil {
		return analysis.UtteranceAnalysis{}, fmt.Errorf("analyze request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, analyzeMethod, req, resp); err != nil {
		return analysis.UtteranceAnalysis{}, fmt.Errorf("analyze rpc: %w", err)
	}
	return DecodeAnalysis(text, resp), nil
}
// #endregion analyze

// #region learn
// Learn forwards a realized exchange to the service's n-gram and
// co-occurrence learners.
func (c *Client) Learn(ctx context.Context, fb orchestrator.Feedback) error {
	keywords := make([]any, len(fb.Keywords))
	for i, k := range fb.Keywords {
		keywords[i] = k
	}
	terms := make([]any, len(fb.Terms))
	for i, t := range fb.Terms {
		terms[i] = t
	}
	req, err := structpb.NewStruct(map[string]any{
		"requestId": fb.RequestID,
		"userId":    fb.UserID,
		"input":     fb.Input,
		"response":  fb.Response,
		"keywords":  keywords,
		"terms":     terms,
		"strategy":  fb.Strategy,
		"quality":   fb.Quality,
	})
	if err != nil {
		return fmt.Errorf("learn request: %w", err)
	}
	if err := c.conn.Invoke(ctx, learnMethod, req, &structpb.Struct{}); err != nil {
		return fmt.Errorf("learn rpc: %w", err)
	}
	return nil
}
// #endregion learn

// #region similarity
// Similarity asks the service for a semantic score of term against the
// keywords. Any failure or a missing score means no opinion.
func (c *Client) Similarity(ctx context.Context, keywords []string, term string) (float64, bool) {
	kws := make([]any, len(keywords))
	for i, k := range keywords {
		kws[i] = k
	}
	req, err := structpb.NewStruct(map[string]any{"keywords": kws, "term": term})
	if err != nil {
		return 0, false
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, similarityMethod, req, resp); err != nil {
		return 0, false
	}
	v, ok := resp.GetFields()["score"]
	if !ok {
		return 0, false
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, false
	}
	return min(max(v.GetNumberValue(), 0), 1), true
}
// #endregion similarity
