package session

import (
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "disconnected":
		*s = Disconnected
	case "connecting":
		*s = Connecting
	case "connected":
		*s = Connected
	default:
		return errors.Newf("unknown session status %q", string(b))
	}
	return nil
}

// Session is the client's current belief about the active wallet.
// Connected implies Account is set; Disconnected implies Account and ChainID are nil.
type Session struct {
	Account    *common.Address `json:"account"`
	ChainID    *big.Int        `json:"chainId"`
	Status     Status          `json:"status"`
	Generation uint64          `json:"generation"`
}

// Consistent reports whether the status/account invariant holds.
func (s Session) Consistent() bool {
	switch s.Status {
	case Connected:
		return s.Account != nil
	case Disconnected:
		return s.Account == nil && s.ChainID == nil
	}
	return true
}

func (s Session) IsConnected() bool {
	return s.Status == Connected && s.Account != nil
}

// Is reports whether addr is the session account.
func (s Session) Is(addr common.Address) bool {
	return s.Account != nil && *s.Account == addr
}

func (s Session) clone() Session {
	out := s
	if s.Account != nil {
		a := *s.Account
		out.Account = &a
	}
	if s.ChainID != nil {
		out.ChainID = new(big.Int).Set(s.ChainID)
	}
	return out
}

type Reason string

const (
	ReasonConnecting     Reason = "connecting"
	ReasonConnected      Reason = "connected"
	ReasonConnectFailed  Reason = "connect_failed"
	ReasonDisconnected   Reason = "disconnected"
	ReasonRevoked        Reason = "revoked"
	ReasonAccountChanged Reason = "account_changed"
	ReasonChainChanged   Reason = "chain_changed"
)

// Change is published after every session mutation. Reload asks dependants
// to drop everything derived from chain state, not only identity-scoped data.
type Change struct {
	Session Session `json:"session"`
	Reason  Reason  `json:"reason"`
	Reload  bool    `json:"reload"`
}
