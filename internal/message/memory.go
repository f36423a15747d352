package message

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
)

var (
	ErrUnknownDomain    = errors.New("unknown domain")
	ErrNoHandler        = errors.New("no handler registered for target")
	ErrAlreadyDelivered = errors.New("message already delivered")
	ErrUnknownSequence  = errors.New("sequence number out of range")
)

// Handler receives a delivered message body on the destination domain.
// Handlers may send further messages through their own messenger; those
// become nested messages of the delivery.
type Handler func(ctx context.Context, source domain.ID, sender domain.Address, body []byte) error

// Network is an in-memory multi-domain transport. It exists for tests and
// the demo node; a production deployment replaces it with the real
// cross-domain messenger behind the same Messenger interface.
type Network struct {
	mu      sync.Mutex
	domains map[domain.ID]*MemMessenger
}

func NewNetwork() *Network {
	return &Network{domains: make(map[domain.ID]*MemMessenger)}
}

// Join creates the messenger instance for one domain.
func (n *Network) Join(id domain.ID) *MemMessenger {
	n.mu.Lock()
	defer n.mu.Unlock()
	m := &MemMessenger{
		net:       n,
		id:        id,
		handlers:  make(map[domain.Address]Handler),
		delivered: make(map[crypto.Hash]bool),
	}
	n.domains[id] = m
	return m
}

func (n *Network) messenger(id domain.ID) (*MemMessenger, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	m, ok := n.domains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDomain, id)
	}
	return m, nil
}

// MemMessenger is one domain's view of the in-memory network.
type MemMessenger struct {
	net *Network
	id  domain.ID

	mu        sync.Mutex
	nonce     uint64
	sent      []crypto.Hash
	handlers  map[domain.Address]Handler
	delivered map[crypto.Hash]bool

	// sender in effect for sends made inside a delivery callback; outside
	// of one, sends are attributed to defaultSender.
	currentSender domain.Address
	defaultSender domain.Address
	inDelivery    bool
}

// Register installs the handler invoked when a message targets addr on
// this domain.
func (m *MemMessenger) Register(addr domain.Address, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[addr] = h
}

// SetDefaultSender sets the address sends are attributed to when not made
// from inside a delivery callback.
func (m *MemMessenger) SetDefaultSender(addr domain.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultSender = addr
}

func (m *MemMessenger) Send(_ context.Context, dest domain.ID, target domain.Address, body []byte) (crypto.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender := m.defaultSender
	if m.inDelivery {
		sender = m.currentSender
	}

	sm := SentMessage{
		Destination: dest,
		Nonce:       m.nonce,
		Sender:      sender,
		Target:      target,
		Body:        body,
	}
	m.nonce++
	hash := sm.Hash(m.id)
	m.sent = append(m.sent, hash)
	return hash, nil
}

func (m *MemMessenger) Deliver(ctx context.Context, id Identifier, sentPayload []byte) error {
	sm, err := DecodeSentMessage(sentPayload)
	if err != nil {
		return err
	}
	if sm.Destination != m.id {
		return fmt.Errorf("message destined for domain %d, delivered on %d", sm.Destination, m.id)
	}

	hash := sm.Hash(id.SourceDomain)

	m.mu.Lock()
	if m.delivered[hash] {
		m.mu.Unlock()
		return ErrAlreadyDelivered
	}
	handler, ok := m.handlers[sm.Target]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoHandler, sm.Target)
	}
	m.delivered[hash] = true
	prevSender, prevIn := m.currentSender, m.inDelivery
	m.currentSender, m.inDelivery = sm.Target, true
	m.mu.Unlock()

	err = handler(ctx, id.SourceDomain, sm.Sender, sm.Body)

	m.mu.Lock()
	m.currentSender, m.inDelivery = prevSender, prevIn
	if err != nil {
		// A failed delivery can be retried.
		delete(m.delivered, hash)
	}
	m.mu.Unlock()

	return err
}

func (m *MemMessenger) SentCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.sent))
}

func (m *MemMessenger) SentHash(seq uint64) (crypto.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq >= uint64(len(m.sent)) {
		return crypto.Hash{}, fmt.Errorf("%w: %d", ErrUnknownSequence, seq)
	}
	return m.sent[seq], nil
}
