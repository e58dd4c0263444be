/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package request

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

var client = &http.Client{Timeout: 10 * time.Second}

// ToJsonReq converts a Go object to a JSON-encoded HTTP request payload.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, e := json.Marshal(payload)
	if e != nil {
		return nil, e
	}
	return bytes.NewBuffer(c), nil
}

// NewJSONRequest builds a request carrying payload as JSON plus any extra headers.
func NewJSONRequest(ctx context.Context, method, url string, payload interface{}, headers map[string]string) (*http.Request, error) {
	body, err := ToJsonReq(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encoding request payload")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// Call sends req and decodes a JSON response body into response when there is one.
// Non-2xx responses are returned as errors along with the raw response.
func Call(req *http.Request, response interface{}) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return resp, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, errors.Errorf("%s %s returned status %d", req.Method, req.URL.Host, resp.StatusCode)
	}

	if response == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp, nil
	}

	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil && !errors.Is(err, io.EOF) {
		return resp, err
	}
	return resp, nil
}
