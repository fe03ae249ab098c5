package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	klog "github.com/Klingon-tech/shieldwallet/internal/log"
	"github.com/Klingon-tech/shieldwallet/pkg/types"
)

// Default connection settings.
const (
	DefaultURL          = "http://127.0.0.1:29987"
	DefaultTimeout      = 5 * time.Minute
	DefaultProbeTimeout = 500 * time.Millisecond
)

// Circuit breaker tuning. The breaker opens after MaxConsecutiveFailures
// transport failures in a row and probes again after BreakerCooldown.
var (
	MaxConsecutiveFailures uint32 = 5
	BreakerCooldown               = 30 * time.Second
)

// maxResponseSize bounds signer response bodies.
const maxResponseSize = 64 << 20

// Options configures a Client.
type Options struct {
	URL          string
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// Client is an HTTP client for the signer service.
type Client struct {
	baseURL      string
	http         *http.Client
	probeTimeout time.Duration
	breaker      *gobreaker.CircuitBreaker
	logger       zerolog.Logger
}

// New creates a signer client. Zero option fields take their defaults.
func New(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	c := &Client{
		baseURL:      strings.TrimRight(opts.URL, "/"),
		http:         &http.Client{Timeout: opts.Timeout},
		probeTimeout: opts.ProbeTimeout,
		logger:       klog.Signer,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "signer",
		Timeout: BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= MaxConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch {
			case to == gobreaker.StateOpen:
				c.logger.Warn().Str("url", c.baseURL).Msg("Signer seems down, holding requests")
			case from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen:
				c.logger.Info().Msg("Checking signer status")
			case from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed:
				c.logger.Info().Msg("Signer is back")
			}
		},
	})
	return c
}

// URL returns the signer base URL.
func (c *Client) URL() string {
	return c.baseURL
}

// Version asks the signer for its version under the short probe timeout.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignerUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignerUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Operation: "version", Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	var msg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("decode version: %w", err)
	}
	return msg.Version, nil
}

// Reachable reports whether the signer answers the version probe. Timeouts
// and connection failures report false without an error.
func (c *Client) Reachable(ctx context.Context) bool {
	v, err := c.Version(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Signer probe failed")
		return false
	}
	c.logger.Debug().Str("version", v).Msg("Signer probe ok")
	return true
}

// RecoverAccount asks the signer to trial-decrypt the given ledger notes.
func (c *Client) RecoverAccount(ctx context.Context, p RecoverAccountParams) (RecoveredAccount, error) {
	raw, err := c.post(ctx, "recoverAccount", "recovered_account", p.Encode())
	if err != nil {
		return RecoveredAccount{}, err
	}
	return DecodeRecoveredAccount(raw)
}

// DeriveShieldedAddress returns the receiving address at keypath.
func (c *Client) DeriveShieldedAddress(ctx context.Context, keypath string) (types.ShieldedAddress, error) {
	raw, err := c.post(ctx, "deriveShieldedAddress", "address", DeriveShieldedAddressParams{Keypath: keypath}.Encode())
	if err != nil {
		return types.ShieldedAddress{}, err
	}
	return DecodeShieldedAddress(raw)
}

// GenerateAsset asks the signer for a new note owned by p.Keypath.
func (c *Client) GenerateAsset(ctx context.Context, p GenerateAssetParams) (Asset, error) {
	raw, err := c.post(ctx, "generateAsset", "asset", p.Encode())
	if err != nil {
		return Asset{}, err
	}
	return DecodeAsset(raw)
}

// GenerateMintData returns the mint payload for a new note of p.Value.
func (c *Client) GenerateMintData(ctx context.Context, p GenerateAssetParams) (MintData, error) {
	raw, err := c.post(ctx, "generateMintData", "mint_data", p.Encode())
	if err != nil {
		return MintData{}, err
	}
	return DecodeMintData(raw)
}

// GeneratePrivateTransferData returns one payload per transfer step.
func (c *Client) GeneratePrivateTransferData(ctx context.Context, p GeneratePrivateTransferBatchParams) (PrivateTransferBatch, error) {
	raw, err := c.post(ctx, "generatePrivateTransferData", "private_transfer_data", p.Encode())
	if err != nil {
		return PrivateTransferBatch{}, err
	}
	return DecodePrivateTransferBatch(raw)
}

// GenerateReclaimData returns the accumulating transfers and the reclaim payload.
func (c *Client) GenerateReclaimData(ctx context.Context, p GenerateReclaimBatchParams) (ReclaimBatch, error) {
	raw, err := c.post(ctx, "generateReclaimData", "reclaim_data", p.Encode())
	if err != nil {
		return ReclaimBatch{}, err
	}
	return DecodeReclaimBatch(raw)
}

// post sends body to /operation and returns the byte payload found under
// field in the JSON response.
func (c *Client) post(ctx context.Context, operation, field string, body []byte) ([]byte, error) {
	done := klog.Benchmark("signer." + operation)
	defer done()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, operation, field, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %w", ErrSignerUnreachable, err)
		}
		return nil, err
	}
	if se, ok := out.(*StatusError); ok {
		c.logger.Warn().Str("op", operation).Int("status", se.Code).Msg("Signer rejected request")
		return nil, se
	}
	return out.([]byte), nil
}

// do performs one request. Only transport failures count against the
// breaker; a rejection is returned through the result so the breaker sees
// a live signer.
func (c *Client) do(ctx context.Context, operation, field string, body []byte) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+operation, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSignerUnreachable, operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", ErrSignerUnreachable, operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Operation: operation, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}, nil
	}

	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}
	if v, ok := msg["version"]; ok {
		c.logger.Trace().RawJSON("version", v).Str("op", operation).Msg("Signer response")
	}
	rawField, ok := msg[field]
	if !ok {
		return nil, fmt.Errorf("decode %s response: missing %q", operation, field)
	}
	var payload ByteArray
	if err := json.Unmarshal(rawField, &payload); err != nil {
		return nil, fmt.Errorf("decode %s response: %s: %w", operation, field, err)
	}
	return []byte(payload), nil
}

// ByteArray is a byte slice serialized as a JSON array of numbers, the form
// the signer uses for every payload.
type ByteArray []byte

// MarshalJSON encodes the bytes as an array of numbers.
func (b ByteArray) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.Grow(len(b)*4 + 2)
	sb.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", v)
	}
	sb.WriteByte(']')
	return []byte(sb.String()), nil
}

// UnmarshalJSON decodes an array of numbers in the range 0..255.
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return err
	}
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return fmt.Errorf("byte %d out of range: %d", i, n)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}
