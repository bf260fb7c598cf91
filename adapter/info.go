package adapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultInfoKeys are the SGD settings queried when no keys are configured
var DefaultInfoKeys = []string{
	"device.product_name",
	"device.friendly_name",
	"device.unique_id",
	"appl.name",
	"device.languages",
	"ip.addr",
}

// DiscoveryInfo is printer metadata keyed by SGD setting name
type DiscoveryInfo map[string]any

var ErrNoResponse = errors.New("printer did not respond with an info block")

// BuildInfoQuery returns the JSON Set-Get-Do command that fetches keys
func BuildInfoQuery(keys []string) ([]byte, error) {
	query := make(map[string]any, len(keys))
	for _, k := range keys {
		query[k] = nil
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	return append([]byte("{}"), body...), nil
}

// QueryInfo writes an SGD query to an open adapter and decodes the first JSON
// object the printer sends back.
func QueryInfo(a Adapter, kind Kind, address string, keys []string) (DiscoveryInfo, error) {
	if len(keys) == 0 {
		keys = DefaultInfoKeys
	}

	query, err := BuildInfoQuery(keys)
	if err != nil {
		return nil, connErr(kind, address, "info", err)
	}

	if _, err := a.Write(query); err != nil {
		return nil, connErr(kind, address, "info", err)
	}

	info, err := decodeInfo(a)
	if err != nil {
		return nil, connErr(kind, address, "info", err)
	}
	return info, nil
}

func decodeInfo(r io.Reader) (DiscoveryInfo, error) {
	dec := json.NewDecoder(&skipToObject{r: r})
	var info DiscoveryInfo
	if err := dec.Decode(&info); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrNoResponse
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("%w: %v", ErrNoResponse, err)
		}
		return nil, err
	}
	if info == nil {
		return nil, ErrNoResponse
	}
	return info, nil
}

// skipToObject drops anything the printer sends before the first '{', such as
// a stray status line left over from an earlier job.
type skipToObject struct {
	r     io.Reader
	found bool
}

func (s *skipToObject) Read(p []byte) (int, error) {
	for {
		n, err := s.r.Read(p)
		if s.found || n == 0 {
			return n, err
		}
		if i := bytes.IndexByte(p[:n], '{'); i >= 0 {
			s.found = true
			return copy(p, p[i:n]), err
		}
		if err != nil {
			return 0, err
		}
	}
}
