// Package ethereum implements the anchor ledger over an EVM anchor-registry
// contract. The contract exposes a single key/value surface: commit(key,
// value) appends a value under a key and lookup(key) returns the latest
// committed value, which is all the engine needs from the chain.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bioanchor/internal/ledger"
	"bioanchor/pkg/platform/sentinel"
)

const anchorRegistryABI = `[
	{"inputs":[{"internalType":"string","name":"key","type":"string"},{"internalType":"bytes","name":"value","type":"bytes"}],"name":"commit","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"string","name":"key","type":"string"}],"name":"lookup","outputs":[{"internalType":"bytes","name":"","type":"bytes"}],"stateMutability":"view","type":"function"}
]`

// DefaultConfirmTimeout bounds the receipt wait after a submission.
const DefaultConfirmTimeout = 30 * time.Second

var tracer = otel.Tracer("bioanchor/ledger/ethereum")

// Config carries everything needed to reach the anchor-registry contract.
type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKeyHex   string
	ChainID         int64
	ConfirmTimeout  time.Duration
}

// Client implements ledger.AnchorLedger against the anchor-registry contract.
type Client struct {
	contract       *bind.BoundContract
	backend        *ethclient.Client
	auth           *bind.TransactOpts
	confirmTimeout time.Duration
}

// Dial connects to the RPC endpoint, binds the contract, and prepares a
// keyed transactor for commits.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}

	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid anchor contract address %q", cfg.ContractAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(anchorRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse anchor registry abi: %w", err)
	}
	address := common.HexToAddress(cfg.ContractAddress)
	contract := bind.NewBoundContract(address, parsed, backend, backend, backend)

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse anchor wallet key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	return &Client{
		contract:       contract,
		backend:        backend,
		auth:           auth,
		confirmTimeout: timeout,
	}, nil
}

// Commit submits commit(key, value) and waits for the receipt under the
// configured timeout. A timeout maps to sentinel.ErrTimeout so services can
// report anchor_timeout; the submission itself may still land later, which is
// acceptable because retries re-derive identical payloads.
func (c *Client) Commit(ctx context.Context, key string, value []byte) (ledger.TxRef, error) {
	ctx, span := tracer.Start(ctx, "anchor.commit", trace.WithAttributes(attribute.String("anchor.key", key)))
	defer span.End()

	opts := *c.auth
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, "commit", key, value)
	if err != nil {
		return "", fmt.Errorf("submit commit %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("confirm commit %s: %w", key, sentinel.ErrTimeout)
		}
		return "", fmt.Errorf("confirm commit %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("commit %s reverted in tx %s: %w", key, tx.Hash().Hex(), sentinel.ErrUnavailable)
	}

	span.AddEvent("mined")
	return ledger.TxRef(tx.Hash().Hex()), nil
}

// Lookup calls the view method and returns sentinel.ErrNotFound for keys the
// contract has never stored (the contract returns empty bytes for those).
func (c *Client) Lookup(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "anchor.lookup", trace.WithAttributes(attribute.String("anchor.key", key)))
	defer span.End()

	var out []any
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "lookup", key)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("lookup %s: empty contract response: %w", key, sentinel.ErrUnavailable)
	}
	value, ok := out[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("lookup %s: unexpected return type %T", key, out[0])
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("lookup %s: %w", key, sentinel.ErrNotFound)
	}
	return value, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.backend.Close()
}
