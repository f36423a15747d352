// Package network carries receipt announcements between domain nodes over
// QUIC. A relayer's node announces the receipt payload, with its emission
// identifier, to nodes on the gas provider's domain; the receiving node
// hands it to claim settlement. Connections authenticate both sides with
// self-signed Ed25519 certificates.
package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/crosslane/crosslane/internal/message"
	"github.com/crosslane/crosslane/pkg/log"
	"github.com/crosslane/crosslane/pkg/network/cert"
)

const (
	alpnProtocol   = "crosslane/1"
	maxIdleTimeout = 30 * time.Minute

	streamKindReceipt byte = 1

	ackOK   byte = 0
	ackFail byte = 1
)

// ReceiptHandler consumes an announced receipt payload. Returning an
// error reports rejection back to the announcing peer.
type ReceiptHandler func(ctx context.Context, id message.Identifier, payload []byte) error

// Config contains the parameters for a network node.
type Config struct {
	ListenAddr string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	Handler    ReceiptHandler
}

// Node is one domain instance's endpoint on the receipt network.
type Node struct {
	config    Config
	tlsCert   *tls.Certificate
	validator *cert.Validator
	listener  *quic.Listener

	mu    sync.Mutex
	conns map[string]quic.Connection

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewNode(config Config) (*Node, error) {
	if config.Handler == nil {
		return nil, fmt.Errorf("receipt handler required")
	}
	generator := cert.NewGenerator(cert.Config{
		PublicKey:          config.PublicKey,
		PrivateKey:         config.PrivateKey,
		CertValidityPeriod: 24 * time.Hour * 365,
	})
	tlsCert, err := generator.GenerateCertificate()
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}
	return &Node{
		config:    config,
		tlsCert:   tlsCert,
		validator: cert.NewValidator(),
		conns:     make(map[string]quic.Connection),
	}, nil
}

// Start begins listening for peer connections.
func (n *Node) Start() error {
	listener, err := quic.ListenAddr(n.config.ListenAddr, n.tlsConfig(), &quic.Config{
		MaxIdleTimeout: maxIdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}

	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.listener = listener
	n.done = make(chan struct{})
	go func() {
		n.acceptLoop()
		close(n.done)
	}()

	log.Network.Info().Str("addr", listener.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the address the node is listening on.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// Stop shuts down the listener and all peer connections.
func (n *Node) Stop() error {
	if n.cancel == nil {
		return nil
	}
	n.cancel()

	n.mu.Lock()
	for _, conn := range n.conns {
		_ = conn.CloseWithError(0, "shutting down")
	}
	n.conns = make(map[string]quic.Connection)
	n.mu.Unlock()

	if n.listener != nil {
		if err := n.listener.Close(); err != nil {
			return fmt.Errorf("close listener: %w", err)
		}
	}
	<-n.done
	return nil
}

// AnnounceReceipt sends a receipt payload to the peer at addr and waits
// for its accept/reject response.
func (n *Node) AnnounceReceipt(ctx context.Context, addr string, id message.Identifier, payload []byte) error {
	conn, err := n.dial(ctx, addr)
	if err != nil {
		return err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if _, err := stream.Write([]byte{streamKindReceipt}); err != nil {
		return fmt.Errorf("write stream kind: %w", err)
	}
	if err := writeEnvelope(stream, id, payload); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}

	ack := make([]byte, 1)
	if _, err := stream.Read(ack); err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if ack[0] != ackOK {
		return ErrAnnounceRejected
	}
	return nil
}

func (n *Node) dial(ctx context.Context, addr string) (quic.Connection, error) {
	n.mu.Lock()
	if conn, ok := n.conns[addr]; ok {
		n.mu.Unlock()
		return conn, nil
	}
	n.mu.Unlock()

	conn, err := quic.DialAddr(ctx, addr, n.tlsConfig(), &quic.Config{
		MaxIdleTimeout: maxIdleTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}

	n.mu.Lock()
	n.conns[addr] = conn
	n.mu.Unlock()
	return conn, nil
}

func (n *Node) tlsConfig() *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{*n.tlsCert},
		NextProtos:         []string{alpnProtocol},
		ClientAuth:         tls.RequireAnyClientCert,
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("%w: no peer certificate", ErrInvalidCertificate)
			}
			parsed, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
			}
			if err := n.validator.ValidateCertificate(parsed); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
			}
			return nil
		},
	}
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept(n.ctx)
		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			log.Network.Warn().Err(err).Msg("accept connection")
			continue
		}
		go n.handleConnection(conn)
	}
}

func (n *Node) handleConnection(conn quic.Connection) {
	for {
		stream, err := conn.AcceptStream(n.ctx)
		if err != nil {
			if n.ctx.Err() == nil {
				log.Network.Debug().Err(err).Msg("connection closed")
			}
			return
		}
		go n.handleStream(stream)
	}
}

func (n *Node) handleStream(stream quic.Stream) {
	defer stream.Close()

	kind := make([]byte, 1)
	if _, err := stream.Read(kind); err != nil {
		log.Network.Warn().Err(err).Msg("read stream kind")
		return
	}
	if kind[0] != streamKindReceipt {
		log.Network.Warn().Uint8("kind", kind[0]).Msg("unknown stream kind")
		return
	}

	id, payload, err := readEnvelope(stream)
	if err != nil {
		log.Network.Warn().Err(err).Msg("read receipt envelope")
		return
	}

	result := ackOK
	if err := n.config.Handler(n.ctx, id, payload); err != nil {
		log.Network.Info().Err(err).Msg("receipt announcement rejected")
		result = ackFail
	}
	if _, err := stream.Write([]byte{result}); err != nil {
		log.Network.Warn().Err(err).Msg("write ack")
	}
}
