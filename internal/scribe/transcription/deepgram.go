// Package transcription provides the speech-to-text client used by the pipeline.
package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Transcriber sends audio and receives text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
}

// Options configures a transcription request.
type Options struct {
	Model       string
	Punctuate   bool
	Paragraphs  bool
	Diarize     bool
	SmartFormat bool
	Utterances  bool
	Numerals    bool
	// ContentType overrides the type derived from the file extension.
	ContentType string
}

// Utterance is one speaker-labelled span of speech.
type Utterance struct {
	Speaker int
	Text    string
}

// Result is a finished transcription.
type Result struct {
	// Text is the flattened transcript.
	Text       string
	Utterances []Utterance
	// Duration is the audio length reported by the service, or zero.
	Duration time.Duration
}

// APIError is a non-200 response from the service.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status %d: %s", e.Status, e.Body)
}

// StatusCode returns the HTTP status of the failed response.
func (e *APIError) StatusCode() int { return e.Status }

// Defaults for DeepgramClient.
const (
	DefaultBaseURL = "https://api.deepgram.com"
	DefaultModel   = "nova-2"
	DefaultTimeout = 5 * time.Minute
)

// DeepgramClient implements Transcriber against the Deepgram pre-recorded API.
type DeepgramClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// DeepgramOption configures the DeepgramClient.
type DeepgramOption func(*DeepgramClient)

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) DeepgramOption {
	return func(c *DeepgramClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) DeepgramOption {
	return func(c *DeepgramClient) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) DeepgramOption {
	return func(c *DeepgramClient) {
		c.httpClient = client
	}
}

// NewDeepgramClient creates a client authenticated with apiKey.
func NewDeepgramClient(apiKey string, opts ...DeepgramOption) *DeepgramClient {
	c := &DeepgramClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Transcribe streams the file at audioPath to the service and returns the
// flattened transcript.
func (c *DeepgramClient) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat audio file: %w", err)
	}

	reqURL, err := c.buildURL(opts)
	if err != nil {
		return nil, fmt.Errorf("build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, file)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = info.Size()

	contentType := opts.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(audioPath)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return parseResponse(resp.Body)
}

func (c *DeepgramClient) buildURL(opts Options) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/listen"

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("punctuate", strconv.FormatBool(opts.Punctuate))
	q.Set("paragraphs", strconv.FormatBool(opts.Paragraphs))
	q.Set("diarize", strconv.FormatBool(opts.Diarize))
	q.Set("smart_format", strconv.FormatBool(opts.SmartFormat))
	q.Set("utterances", strconv.FormatBool(opts.Utterances))
	q.Set("numerals", strconv.FormatBool(opts.Numerals))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the subset of the listen response the pipeline reads.
type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
				Words      []struct {
					Word           string `json:"word"`
					PunctuatedWord string `json:"punctuated_word"`
					Speaker        *int   `json:"speaker"`
				} `json:"words"`
				Paragraphs *struct {
					Paragraphs []struct {
						Speaker   int `json:"speaker"`
						Sentences []struct {
							Text string `json:"text"`
						} `json:"sentences"`
					} `json:"paragraphs"`
				} `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func parseResponse(body io.Reader) (*Result, error) {
	var resp deepgramResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("parse JSON response: %w", err)
	}

	res := &Result{
		Duration: time.Duration(resp.Metadata.Duration * float64(time.Second)),
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return res, nil
	}
	alt := resp.Results.Channels[0].Alternatives[0]

	// Paragraphs carry speaker labels when diarization is on; fall back to
	// grouping words by speaker, then to the plain transcript.
	if alt.Paragraphs != nil {
		for _, p := range alt.Paragraphs.Paragraphs {
			var sentences []string
			for _, s := range p.Sentences {
				if t := strings.TrimSpace(s.Text); t != "" {
					sentences = append(sentences, t)
				}
			}
			if len(sentences) > 0 {
				res.Utterances = append(res.Utterances, Utterance{Speaker: p.Speaker, Text: strings.Join(sentences, " ")})
			}
		}
	}

	if len(res.Utterances) == 0 {
		var cur *Utterance
		var words []string
		flush := func() {
			if cur != nil && len(words) > 0 {
				cur.Text = strings.Join(words, " ")
				res.Utterances = append(res.Utterances, *cur)
			}
			cur, words = nil, nil
		}
		for _, w := range alt.Words {
			if w.Speaker == nil {
				cur, words = nil, nil
				res.Utterances = nil
				break
			}
			if cur == nil || cur.Speaker != *w.Speaker {
				flush()
				cur = &Utterance{Speaker: *w.Speaker}
			}
			text := w.PunctuatedWord
			if text == "" {
				text = w.Word
			}
			words = append(words, text)
		}
		flush()
	}

	if len(res.Utterances) > 0 {
		res.Text = Flatten(res.Utterances)
	} else {
		res.Text = strings.TrimSpace(alt.Transcript)
	}
	return res, nil
}

// Flatten renders utterances as "[Speaker N]: text" blocks separated by blank lines.
func Flatten(utterances []Utterance) string {
	blocks := make([]string, 0, len(utterances))
	for _, u := range utterances {
		blocks = append(blocks, fmt.Sprintf("[Speaker %d]: %s", u.Speaker, u.Text))
	}
	return strings.Join(blocks, "\n\n")
}

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
}

// ContentTypeFor returns the MIME type sent for an audio file.
func ContentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Ping lists the account's projects to confirm the key is accepted.
func (c *DeepgramClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/projects", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
