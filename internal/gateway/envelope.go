package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// EnvelopeError is the error half of an emulator response.
type EnvelopeError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *EnvelopeError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Envelope is the {data, error} body returned by the emulated backend.
type Envelope struct {
	Status int             `json:"-"`
	Data   json.RawMessage `json:"data"`
	Error  *EnvelopeError  `json:"error"`
}

// OK reports a 2xx status without an error payload.
func (e Envelope) OK() bool {
	return e.Status >= 200 && e.Status < 300 && e.Error == nil
}

// Decode unmarshals the data payload into target.
func (e Envelope) Decode(target any) error {
	if e.Error != nil {
		return e.Error
	}
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, target)
}

// ReadEnvelope consumes and closes resp.Body.
func ReadEnvelope(resp *http.Response) (Envelope, error) {
	if resp == nil {
		return Envelope{}, fmt.Errorf("gateway: nil response")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, fmt.Errorf("gateway: read response: %w", err)
	}
	envelope := Envelope{Status: resp.StatusCode}
	if len(payload) == 0 {
		return envelope, nil
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("gateway: decode envelope: %w", err)
	}
	envelope.Status = resp.StatusCode
	return envelope, nil
}
