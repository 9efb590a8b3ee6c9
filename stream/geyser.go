package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/gagliardetto/solana-go"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
)

// Connection names one of the two physical geyser subscriptions.
type Connection string

const (
	Primary       Connection = "primary"
	CachedWallets Connection = "cached"
)

const (
	transactionsFilter = "txs"
	slotsFilter        = "slots"
)

// UpdateStream is one bidirectional geyser subscription.
type UpdateStream interface {
	Send(*pb.SubscribeRequest) error
	Recv() (*pb.SubscribeUpdate, error)
	CloseSend() error
}

// Source opens geyser subscriptions.
type Source interface {
	Subscribe(ctx context.Context) (UpdateStream, error)
}

// GeyserSource subscribes over a gRPC connection authenticated with an x-token.
type GeyserSource struct {
	conn  *grpc.ClientConn
	token string
}

// Dial prepares a client for endpoint. https URLs and port 443 use TLS; anything
// else is dialed in plain text.
func Dial(endpoint, token string) (*GeyserSource, error) {
	target, useTLS, err := grpcTarget(endpoint)
	if err != nil {
		return nil, err
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(1024 * 1024 * 1024)),
		grpc.WithInitialWindowSize(4 * 1024 * 1024),
		grpc.WithInitialConnWindowSize(8 * 1024 * 1024),
	}
	if useTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, "")))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	return &GeyserSource{conn: conn, token: token}, nil
}

func grpcTarget(endpoint string) (target string, useTLS bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, errors.New("empty geyser endpoint")
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", false, fmt.Errorf("invalid geyser endpoint: %w", err)
		}
		useTLS = u.Scheme == "https"
		port := u.Port()
		if port == "" {
			port = "80"
			if useTLS {
				port = "443"
			}
		}
		return u.Hostname() + ":" + port, useTLS, nil
	}
	if !strings.Contains(endpoint, ":") {
		endpoint += ":443"
	}
	return endpoint, strings.HasSuffix(endpoint, ":443"), nil
}

func (g *GeyserSource) Subscribe(ctx context.Context) (UpdateStream, error) {
	if g.token != "" {
		ctx = metadata.NewOutgoingContext(ctx, metadata.Pairs("x-token", g.token))
	}
	return pb.NewGeyserClient(g.conn).Subscribe(ctx)
}

func (g *GeyserSource) Close() error {
	return g.conn.Close()
}

// PrimaryRequest watches both trading programs plus every slot status.
func PrimaryRequest() *pb.SubscribeRequest {
	return subscribeRequest([]string{
		solanaswapgo.PUMP_FUN_PROGRAM_ID.String(),
		solanaswapgo.RAYDIUM_V4_PROGRAM_ID.String(),
	})
}

// CachedWalletRequest watches the given wallets plus every slot status.
func CachedWalletRequest(wallets []solana.PublicKey) *pb.SubscribeRequest {
	include := make([]string, 0, len(wallets))
	for _, w := range wallets {
		include = append(include, w.String())
	}
	return subscribeRequest(include)
}

func subscribeRequest(accountInclude []string) *pb.SubscribeRequest {
	return &pb.SubscribeRequest{
		Accounts: map[string]*pb.SubscribeRequestFilterAccounts{},
		Slots: map[string]*pb.SubscribeRequestFilterSlots{
			slotsFilter: {},
		},
		Transactions: map[string]*pb.SubscribeRequestFilterTransactions{
			transactionsFilter: {
				Vote:            pointer.ToBool(false),
				AccountInclude:  accountInclude,
				AccountExclude:  []string{},
				AccountRequired: []string{},
			},
		},
	}
}

// errSubscribe marks failures before the stream was established.
var errSubscribe = errors.New("subscribe failed")

// Run keeps the primary connection, and the cached wallet connection when wallets
// are configured, subscribed until ctx is done. Each connection reconnects on its
// own goroutine, so at most one attempt per connection is ever in flight.
func (m *Multiplexer) Run(ctx context.Context, src Source) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.runConnection(ctx, Primary, src, PrimaryRequest())
	}()
	if len(m.cfg.CachedWallets) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.runConnection(ctx, CachedWallets, src, CachedWalletRequest(m.cfg.CachedWallets))
		}()
	}
	wg.Wait()
	m.Close()
	return ctx.Err()
}

func (m *Multiplexer) runConnection(ctx context.Context, conn Connection, src Source, req *pb.SubscribeRequest) {
	log := m.Log.WithField("connection", conn)
	for {
		err := m.streamOnce(ctx, conn, src, req)
		if ctx.Err() != nil {
			return
		}

		delay := m.cfg.ReconnectDelay
		if errors.Is(err, errSubscribe) {
			delay = m.cfg.ResubscribeDelay
		}
		log.WithError(err).Errorf("geyser stream down, reconnecting in %s", delay)
		m.metrics.StreamReconnects.WithLabelValues(string(conn)).Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// streamOnce subscribes and pumps updates into dispatch until the stream breaks.
func (m *Multiplexer) streamOnce(ctx context.Context, conn Connection, src Source, req *pb.SubscribeRequest) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := src.Subscribe(streamCtx)
	if err != nil {
		return fmt.Errorf("%w: %v", errSubscribe, err)
	}
	defer stream.CloseSend()

	if err := stream.Send(proto.Clone(req).(*pb.SubscribeRequest)); err != nil {
		return fmt.Errorf("%w: send request: %v", errSubscribe, err)
	}
	m.Log.WithField("connection", conn).Info("geyser subscription request sent")

	for {
		update, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("stream ended")
			}
			if st, ok := status.FromError(err); ok && (st.Code() == codes.Unavailable || st.Code() == codes.DeadlineExceeded) {
				return fmt.Errorf("stream unavailable: %w", err)
			}
			return fmt.Errorf("stream error: %w", err)
		}

		switch update.GetUpdateOneof().(type) {
		case *pb.SubscribeUpdate_Ping:
			if err := stream.Send(&pb.SubscribeRequest{Ping: &pb.SubscribeRequestPing{Id: 1}}); err != nil {
				return fmt.Errorf("failed to answer ping: %w", err)
			}
			continue
		case *pb.SubscribeUpdate_Pong:
			continue
		}
		m.dispatch(conn, update)
	}
}
