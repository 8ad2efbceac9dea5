// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"
)

// AzureAPIVersion is the IoT Hub API version that is sent in the username
var AzureAPIVersion = "2018-06-30"

// DefaultSASTTL is the lifetime of generated shared access signatures
var DefaultSASTTL = 31 * 24 * time.Hour

// AzureSAS generates an Azure IoT Hub shared access signature for each connection
type AzureSAS struct {
	Hub string // IoT Hub host name
	Key string // base64 encoded device key
	TTL time.Duration

	now func() time.Time
}

// NewAzureSAS returns a new AzureSAS provider for the given hub and device key
func NewAzureSAS(hub, key string) *AzureSAS {
	return &AzureSAS{
		Hub: hub,
		Key: key,
		TTL: DefaultSASTTL,
		now: time.Now,
	}
}

// Credentials implements the Provider interface
func (a *AzureSAS) Credentials(clientID string) (string, string, error) {
	if a.Key == "" {
		return "", "", ErrNoKey
	}
	username := fmt.Sprintf("%s/%s/api-version=%s", a.Hub, clientID, AzureAPIVersion)
	token, err := a.Token(fmt.Sprintf("%s/devices/%s", a.Hub, clientID))
	if err != nil {
		return "", "", err
	}
	return username, token, nil
}

// Token returns a shared access signature for the resource
func (a *AzureSAS) Token(resource string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(a.Key)
	if err != nil {
		return "", fmt.Errorf("auth: invalid device key: %w", err)
	}
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	ttl := a.TTL
	if ttl == 0 {
		ttl = DefaultSASTTL
	}
	expiry := now().Add(ttl).Unix()
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s\n%d", url.QueryEscape(resource), expiry)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%d",
		url.QueryEscape(resource), url.QueryEscape(signature), expiry), nil
}
