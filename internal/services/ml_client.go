package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/tidwall/gjson"

	"multimodal-pipeline/pkg/models"
)

// maxResponseBytes bounds how much of a backend response is read. Image and
// audio payloads are base64 encoded, so this is generous.
const maxResponseBytes = 64 << 20

// HTTPModelClient is an HTTP implementation of the ModelClient interface.
type HTTPModelClient struct {
	httpClient *http.Client
}

// NewHTTPModelClient creates a new HTTPModelClient. A nil httpClient uses
// http.DefaultClient; per-call timeouts come from the request context.
func NewHTTPModelClient(httpClient *http.Client) *HTTPModelClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPModelClient{httpClient: httpClient}
}

// Call dispatches to the adapter for the endpoint's modality.
func (c *HTTPModelClient) Call(ctx context.Context, endpoint models.Endpoint, input models.Payload, purpose models.Purpose) (models.Payload, error) {
	switch endpoint.Modality {
	case models.ModalityText:
		return c.callText(ctx, endpoint, input, purpose)
	case models.ModalityImage:
		return c.callImage(ctx, endpoint, input, purpose)
	case models.ModalityAudio:
		switch purpose {
		case models.PurposeTranscribe:
			return c.transcribe(ctx, endpoint, input, purpose)
		case models.PurposeGenerateAudio:
			return c.synthesize(ctx, endpoint, input, purpose)
		}
		return nil, fmt.Errorf("%w: audio endpoint %s cannot serve %q", ErrUnsupportedPurpose, endpoint.Name, purpose)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedModality, endpoint.Modality)
}

// callText posts {prompt, max_tokens, temperature, stream} to /generate and
// expects {text}.
func (c *HTTPModelClient) callText(ctx context.Context, endpoint models.Endpoint, input models.Payload, purpose models.Purpose) (models.Payload, error) {
	prompt, ok := input.String("prompt")
	if !ok {
		data, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode payload as prompt: %v", ErrInvalidInput, err)
		}
		prompt = string(data)
	}

	body := map[string]interface{}{
		"prompt":      prompt,
		"max_tokens":  numberOr(input, "max_tokens", 2048),
		"temperature": numberOr(input, "temperature", 0.7),
		"stream":      false,
	}

	result, err := c.postJSON(ctx, endpoint.URL+"/generate", body)
	if err != nil {
		return nil, err
	}
	return models.Payload{
		"text":    result.Get("text").String(),
		"model":   endpoint.Name,
		"purpose": string(purpose),
	}, nil
}

// callImage posts the diffusion parameters to /generate and expects {image}.
func (c *HTTPModelClient) callImage(ctx context.Context, endpoint models.Endpoint, input models.Payload, purpose models.Purpose) (models.Payload, error) {
	prompt, _ := input.String("prompt")
	negative, _ := input.String("negative_prompt")
	width := numberOr(input, "width", 1024)
	height := numberOr(input, "height", 1024)

	body := map[string]interface{}{
		"prompt":              prompt,
		"negative_prompt":     negative,
		"width":               width,
		"height":              height,
		"num_inference_steps": numberOr(input, "num_inference_steps", 20),
		"guidance_scale":      numberOr(input, "guidance_scale", 7.5),
	}

	result, err := c.postJSON(ctx, endpoint.URL+"/generate", body)
	if err != nil {
		return nil, err
	}
	return models.Payload{
		"image_data": result.Get("image").String(),
		"width":      width,
		"height":     height,
		"model":      endpoint.Name,
		"purpose":    string(purpose),
	}, nil
}

// transcribe uploads base64-decoded audio_data as a multipart "audio" field to
// /transcribe and expects {text, language}.
func (c *HTTPModelClient) transcribe(ctx context.Context, endpoint models.Endpoint, input models.Payload, purpose models.Purpose) (models.Payload, error) {
	encoded, ok := input.String("audio_data")
	if !ok || encoded == "" {
		return nil, fmt.Errorf("%w: audio_data must be a base64 string", ErrInvalidInput)
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: audio_data is not valid base64: %v", ErrInvalidInput, err)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="audio.wav"`)
	header.Set("Content-Type", "audio/wav")
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio: %w", err)
	}
	if lang, ok := input.String("language"); ok && lang != "" {
		if err := form.WriteField("language", lang); err != nil {
			return nil, fmt.Errorf("failed to write language: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	result, err := c.post(ctx, endpoint.URL+"/transcribe", form.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}

	language := result.Get("language").String()
	if language == "" {
		language = "unknown"
	}
	return models.Payload{
		"text":     result.Get("text").String(),
		"language": language,
		"model":    endpoint.Name,
		"purpose":  string(purpose),
	}, nil
}

// synthesize posts {text, language, voice} to /synthesize and expects {audio}.
func (c *HTTPModelClient) synthesize(ctx context.Context, endpoint models.Endpoint, input models.Payload, purpose models.Purpose) (models.Payload, error) {
	text, _ := input.String("text")
	language, ok := input.String("language")
	if !ok || language == "" {
		language = "en"
	}
	voice, ok := input.String("voice")
	if !ok || voice == "" {
		voice = "default"
	}

	result, err := c.postJSON(ctx, endpoint.URL+"/synthesize", map[string]interface{}{
		"text":     text,
		"language": language,
		"voice":    voice,
	})
	if err != nil {
		return nil, err
	}
	return models.Payload{
		"audio_data": result.Get("audio").String(),
		"model":      endpoint.Name,
		"purpose":    string(purpose),
	}, nil
}

func (c *HTTPModelClient) postJSON(ctx context.Context, url string, body interface{}) (gjson.Result, error) {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.post(ctx, url, "application/json", bytes.NewReader(requestBody))
}

func (c *HTTPModelClient) post(ctx context.Context, url, contentType string, body io.Reader) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("failed to decode response body: invalid JSON")
	}
	return gjson.ParseBytes(data), nil
}

// numberOr returns input[key] when it holds a number, otherwise def.
func numberOr(input models.Payload, key string, def interface{}) interface{} {
	switch v := input[key].(type) {
	case int, int32, int64, float32, float64, json.Number:
		return v
	}
	return def
}
