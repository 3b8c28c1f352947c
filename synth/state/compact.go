package state

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/cwbudde/algo-patch/synth/patch"
)

// CompactPrefix marks tokens produced by EncodeCompact.
const CompactPrefix = "z1."

// maxInflated bounds the decompressed size of a share token.
const maxInflated = 1 << 20

// EncodeCompact returns a URL-safe share token for s: the record JSON,
// deflated and base64url encoded behind CompactPrefix.
func EncodeCompact(s patch.Snapshot) (string, error) {
	data, err := Marshal(s)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer

	zw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("state: compress: %w", err)
	}

	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("state: compress: %w", err)
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("state: compress: %w", err)
	}

	return CompactPrefix + base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeCompact parses a share token. Besides EncodeCompact output it
// accepts plain base64 of the record JSON in any of the standard or URL
// alphabets, with or without padding. A leading '#' is ignored.
func DecodeCompact(token string) (patch.Snapshot, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "#")
	if token == "" {
		return patch.Snapshot{}, fmt.Errorf("%w: empty token", ErrDecode)
	}

	if body, ok := strings.CutPrefix(token, CompactPrefix); ok {
		return decodeDeflated(body)
	}

	data, err := decodeBase64(token)
	if err != nil {
		return patch.Snapshot{}, err
	}

	return Unmarshal(data)
}

func decodeDeflated(body string) (patch.Snapshot, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(body, "="))
	if err != nil {
		return patch.Snapshot{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	zr := flate.NewReader(bytes.NewReader(raw))
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, maxInflated+1))
	if err != nil {
		return patch.Snapshot{}, fmt.Errorf("%w: inflate: %w", ErrDecode, err)
	}

	if len(data) > maxInflated {
		return patch.Snapshot{}, fmt.Errorf("%w: token exceeds %d bytes", ErrDecode, maxInflated)
	}

	return Unmarshal(data)
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}

	var lastErr error

	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}

		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", ErrDecode, lastErr)
}
