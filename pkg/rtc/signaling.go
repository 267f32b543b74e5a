package rtc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxAnswerBytes bounds how much of a signaling response is read.
const maxAnswerBytes = 1 << 20

// exchange POSTs the offer SDP and returns the answer SDP.
func (t *Transport) exchange(ctx context.Context, credential, offer string) (string, error) {
	endpoint := t.config.SignalingURL
	if t.config.Model != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", &SignalingError{Cause: fmt.Errorf("parse signaling url: %w", err)}
		}
		q := u.Query()
		q.Set("model", t.config.Model)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return "", &SignalingError{Cause: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("OpenAI-Beta", "realtime=v1")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", &SignalingError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return "", &SignalingError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("read answer: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &SignalingError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return string(body), nil
}
