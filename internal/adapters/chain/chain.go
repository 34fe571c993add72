// Package chain reads on-chain reputation from an Aptos full node.
//
// Only view functions are called. Transaction submission sits behind the
// Submitter interface whose default does nothing.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	aptos "github.com/aptos-labs/aptos-go-sdk"

	"github.com/okian/credence/internal/domain/errkind"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
)

// Networks with a known public full node.
const (
	NetworkDevnet   = "devnet"
	NetworkTestnet  = "testnet"
	NetworkMainnet  = "mainnet"
	NetworkLocalnet = "localnet"
)

const (
	defaultTimeout = 10 * time.Second
	moduleName     = "soulbound_nft"
)

var networks = map[string]aptos.NetworkConfig{ //nolint:gochecknoglobals // static network table
	NetworkDevnet:   aptos.DevnetConfig,
	NetworkTestnet:  aptos.TestnetConfig,
	NetworkMainnet:  aptos.MainnetConfig,
	NetworkLocalnet: aptos.LocalnetConfig,
}

// Config names the network and module the client talks to.
type Config struct {
	Network string
	// NodeURL overrides the network's public full node.
	NodeURL       string
	ModuleAddress string
	Timeout       time.Duration
}

// Validate fills in the node URL and checks the module address.
func (c *Config) Validate() error {
	const op = "chain.config"
	if c.NodeURL == "" {
		nc, ok := networks[strings.ToLower(c.Network)]
		if !ok {
			return errkind.Newf(op, errkind.ErrValidation, "unknown network %q and no node url", c.Network)
		}
		c.NodeURL = nc.NodeUrl
	}
	c.NodeURL = strings.TrimRight(c.NodeURL, "/")
	if !strings.HasPrefix(c.ModuleAddress, "0x") {
		return errkind.Newf(op, errkind.ErrValidation, "module address %q must be 0x-prefixed", c.ModuleAddress)
	}
	var addr aptos.AccountAddress
	if err := addr.ParseStringRelaxed(c.ModuleAddress); err != nil {
		return errkind.Wrap(op, errkind.ErrValidation, fmt.Errorf("module address %q: %w", c.ModuleAddress, err))
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}

// network is the SDK configuration for c: the named network when known, with
// the node URL replaced by c.NodeURL.
func (c Config) network() aptos.NetworkConfig {
	nc, ok := networks[strings.ToLower(c.Network)]
	if !ok {
		nc = aptos.NetworkConfig{Name: c.Network}
	}
	nc.NodeUrl = c.NodeURL
	return nc
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client the node client uses.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// viewer is the part of the SDK client used here.
type viewer interface {
	View(payload *aptos.ViewPayload, ledgerVersion ...uint64) ([]any, error)
}

// Client calls view functions of the credential module.
type Client struct {
	cfg    Config
	module aptos.ModuleId
	http   *http.Client
	node   viewer
	logger logger.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("chain")
	}

	c.module.Name = moduleName
	if err := c.module.Address.ParseStringRelaxed(cfg.ModuleAddress); err != nil {
		return nil, errkind.Wrap("chain.new", errkind.ErrValidation, err)
	}
	node, err := aptos.NewClient(cfg.network(), c.http)
	if err != nil {
		return nil, errkind.Wrap("chain.new", errkind.ErrValidation, err)
	}
	c.node = node
	return c, nil
}

// Config returns the validated configuration.
func (c *Client) Config() Config { return c.cfg }

// Reputation returns the score the module holds for wallet.
func (c *Client) Reputation(ctx context.Context, wallet string) (int64, error) {
	return c.viewUint(ctx, "get_user_reputation", wallet)
}

// BadgeCount returns how many skill badges the module holds for wallet.
func (c *Client) BadgeCount(ctx context.Context, wallet string) (int64, error) {
	return c.viewUint(ctx, "get_skill_badge_count", wallet)
}

func (c *Client) viewUint(ctx context.Context, fn, wallet string) (int64, error) {
	op := "chain." + fn
	out, err := c.view(ctx, fn, wallet)
	if err != nil {
		metrics.RecordChainRequest(errkind.Name(err))
		c.logger.Warn(ctx, "view call failed", logger.String("function", fn), logger.Error(err))
		return 0, err
	}
	if len(out) == 0 {
		metrics.RecordChainRequest("empty")
		return 0, errkind.New(op, errkind.ErrNotFound, "empty view result")
	}
	n, err := parseUint(out[0])
	if err != nil {
		metrics.RecordChainRequest("decode_error")
		return 0, errkind.Wrap(op, errkind.ErrValidation, err)
	}
	metrics.RecordChainRequest("ok")
	return n, nil
}

type viewResult struct {
	vals []any
	err  error
}

// view calls fn with wallet as its only address argument. The SDK call does
// not take a context, so ctx only bounds how long the caller waits.
func (c *Client) view(ctx context.Context, fn, wallet string) ([]any, error) {
	op := "chain." + fn
	var addr aptos.AccountAddress
	if err := addr.ParseStringRelaxed(wallet); err != nil {
		return nil, errkind.Wrap(op, errkind.ErrValidation, fmt.Errorf("wallet %q: %w", wallet, err))
	}
	payload := &aptos.ViewPayload{
		Module:   c.module,
		Function: fn,
		ArgTypes: []aptos.TypeTag{},
		Args:     [][]byte{addr[:]},
	}

	done := make(chan viewResult, 1)
	go func() {
		vals, err := c.node.View(payload)
		done <- viewResult{vals: vals, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, errkind.Wrap(op, errkind.ErrTransient, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, classify(op, res.err)
		}
		return res.vals, nil
	}
}

// classify maps node failures onto error kinds: rate limits and server errors
// are transient, other HTTP refusals are validation failures.
func classify(op string, err error) error {
	var httpErr *aptos.HttpError
	if errors.As(err, &httpErr) {
		msg := fmt.Sprintf("node returned %d: %s", httpErr.StatusCode, strings.TrimSpace(string(httpErr.Body)))
		switch {
		case httpErr.StatusCode == http.StatusNotFound:
			return errkind.New(op, errkind.ErrNotFound, msg)
		case httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500:
			return errkind.New(op, errkind.ErrTransient, msg)
		default:
			return errkind.New(op, errkind.ErrValidation, msg)
		}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return errkind.Wrap(op, errkind.ErrValidation, err)
	}
	return errkind.Wrap(op, errkind.ErrTransient, err)
}

// parseUint accepts u64 values, which the node encodes as JSON strings.
func parseUint(v any) (int64, error) {
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse view value %q: %w", x, err)
		}
		return n, nil
	case float64:
		return int64(x), nil
	case json.Number:
		return x.Int64()
	default:
		return 0, fmt.Errorf("unexpected view value %v of type %T", v, v)
	}
}
