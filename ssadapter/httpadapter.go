// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ssadapter

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/otisdds/ddsbridge/ddswire"
)

// HTTPAdapter resolves credentials against an external access-control
// service over HTTP/JSON. It generalizes the reference deployment's
// SOAP/WSDL-based SecusysClient (original_source/secusys_acl/client.py
// issued a GetCardInfos SOAP call and parsed an XML
// envelope back); no SOAP client exists anywhere in this module's
// dependency pack, so the same round trip -- present a card/credential
// number, get back a validity and floor decision -- is expressed as a
// plain JSON POST instead.
type HTTPAdapter struct {
	BaseURL string
	Client  *http.Client

	floorsFront []int8
	floorsRear  []int8
}

var _ Adapter = (*HTTPAdapter)(nil)

// NewHTTPAdapter constructs an HTTPAdapter. timeout bounds every request;
// floorsFront/floorsRear are the static, credential-free allowed-floor
// lists this adapter reports (these are site configuration, not resolved
// per call, matching §4.7's "site-wide whitelist" framing).
func NewHTTPAdapter(baseURL string, timeout time.Duration, floorsFront, floorsRear []int8) *HTTPAdapter {
	return &HTTPAdapter{
		BaseURL:     baseURL,
		Client:      &http.Client{Timeout: timeout},
		floorsFront: floorsFront,
		floorsRear:  floorsRear,
	}
}

// AllowedFloorsFront implements Adapter.
func (a *HTTPAdapter) AllowedFloorsFront() []int8 {
	return a.floorsFront
}

// AllowedFloorsRear implements Adapter.
func (a *HTTPAdapter) AllowedFloorsRear() []int8 {
	return a.floorsRear
}

type accessInfoRequest struct {
	CredentialHex string `json:"credentialHex"`
	BitLength     uint8  `json:"bitLength"`
}

type accessInfoResponse struct {
	Valid              bool    `json:"valid"`
	DefaultFloor       int8    `json:"defaultFloor"`
	DefaultDoorIsRear  bool    `json:"defaultDoorIsRear"`
	AllowedFloorsFront []int8  `json:"allowedFloorsFront"`
	AllowedFloorsRear  []int8  `json:"allowedFloorsRear"`
	ErrorMessage       *string `json:"errorMessage"`
}

// GetAccessInfo implements Adapter by POSTing the credential to
// BaseURL+"/access-info" and decoding the JSON response.
func (a *HTTPAdapter) GetAccessInfo(credentialBytes []byte, credentialBitLength uint8) (AccessInfo, error) {
	reqBody, err := json.Marshal(accessInfoRequest{
		CredentialHex: hex.EncodeToString(credentialBytes),
		BitLength:     credentialBitLength,
	})
	if err != nil {
		return AccessInfo{}, &AdapterError{Op: "marshal request", Err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/access-info", bytes.NewReader(reqBody))
	if err != nil {
		return AccessInfo{}, &AdapterError{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return AccessInfo{}, &AdapterError{Op: "do request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AccessInfo{}, &AdapterError{Op: "do request", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var out accessInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AccessInfo{}, &AdapterError{Op: "decode response", Err: err}
	}
	if out.ErrorMessage != nil {
		return AccessInfo{}, &AdapterError{Op: "backend", Err: fmt.Errorf("%s", *out.ErrorMessage)}
	}

	door := ddswire.DoorFront
	if out.DefaultDoorIsRear {
		door = ddswire.DoorRear
	}
	return AccessInfo{
		IsValid:            out.Valid,
		DefaultFloor:       out.DefaultFloor,
		DefaultDoorType:    door,
		AllowedFloorsFront: out.AllowedFloorsFront,
		AllowedFloorsRear:  out.AllowedFloorsRear,
	}, nil
}
