package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/dublette-io/dublette/internal/ingestion"
	"github.com/dublette-io/dublette/internal/matching"
)

// Sentinel errors for model transport and response handling.
var (
	// ErrAPIKeyEmpty is returned when no credential is available for the
	// model client.
	ErrAPIKeyEmpty = errors.New("llm api key cannot be empty")

	// ErrResponseInvalid is returned when the model response does not
	// conform to the verdict schema.
	ErrResponseInvalid = errors.New("llm response does not match verdict schema")
)

// maxRetries bounds the SDK-internal retries on 429/5xx responses. The SDK
// applies exponential backoff with jitter and honours retry-after headers.
const maxRetries = 3

// systemPrompt primes the model for German regional event comparison.
const systemPrompt = `Du vergleichst Veranstaltungshinweise aus regionalen deutschen Printmedien.
Zwei Datensaetze beschreiben genau dann dasselbe Ereignis, wenn sie sich auf
dieselbe reale Veranstaltung beziehen: gleicher Anlass am selben Ort zur
selben Zeit. Unterschiedliche Schreibweisen, Dialektformen (Fasnet, Fasching,
Fastnacht, Karneval), gekuerzte Titel und abweichende Beschreibungslaengen
sind normal und sprechen nicht gegen eine Uebereinstimmung. Zwei verschiedene
Veranstaltungen am selben Ort und Tag (etwa Kinderball am Nachmittag und
Maskenball am Abend) sind verschiedene Ereignisse.

Antworte ausschliesslich mit einem JSON-Objekt:
{"decision": "same" | "different", "confidence": 0.0-1.0, "reasoning": "kurze Begruendung"}`

// AnthropicClient implements LLMClient over the Anthropic Messages API with
// client-side rate limiting and SDK-managed retries.
type AnthropicClient struct {
	client  anthropic.Client
	limiter *rate.Limiter
	cfg     matching.AIConfig
}

var _ LLMClient = (*AnthropicClient)(nil)

// NewAnthropicClient builds a model client from the run configuration and
// the decrypted credential.
func NewAnthropicClient(apiKey string, cfg matching.AIConfig) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrAPIKeyEmpty
	}

	return &AnthropicClient{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(maxRetries),
			option.WithRequestTimeout(time.Duration(cfg.RequestTimeoutSeconds)*time.Second),
		),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cfg:     cfg,
	}, nil
}

// Judge asks the model whether the pair describes the same real-world event.
func (c *AnthropicClient) Judge(ctx context.Context, req *Request) (*Verdict, Usage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Usage{}, fmt.Errorf("rate limiter wait: %w", err)
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(c.cfg.MaxOutputTokens),
		Temperature: anthropic.Float(c.cfg.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(req))),
		},
	})
	if err != nil {
		return nil, Usage{}, fmt.Errorf("messages api call: %w", err)
	}

	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	verdict, err := parseVerdict(responseText(message))
	if err != nil {
		return nil, usage, err
	}

	return verdict, usage, nil
}

// userPrompt renders both events and the deterministic sub-scores as a JSON
// document. JSON keeps field boundaries unambiguous for the model and the
// serialization deterministic for the request log.
func userPrompt(req *Request) string {
	payload := struct {
		EventA any                   `json:"event_a"`
		EventB any                   `json:"event_b"`
		Scores matching.SignalScores `json:"scores"`
	}{
		EventA: promptEvent(req.A),
		EventB: promptEvent(req.B),
		Scores: req.Scores,
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		// Marshalling plain structs of strings and floats cannot fail;
		// guard anyway so a future field change degrades to an empty doc.
		return "{}"
	}

	return "Vergleiche die beiden Veranstaltungsdatensaetze:\n" + string(encoded)
}

func promptEvent(e *ingestion.SourceEvent) any {
	return struct {
		Title            string   `json:"title"`
		ShortDescription string   `json:"short_description,omitempty"`
		Description      string   `json:"description,omitempty"`
		Venue            string   `json:"venue,omitempty"`
		City             string   `json:"city,omitempty"`
		Dates            []string `json:"dates"`
		Categories       []string `json:"categories,omitempty"`
		SourceType       string   `json:"source_type"`
	}{
		Title:            e.Title,
		ShortDescription: e.ShortDescription,
		Description:      e.Description,
		Venue:            e.Location.Name,
		City:             e.Location.City,
		Dates:            e.ExpandedDates(),
		Categories:       e.Categories,
		SourceType:       string(e.SourceType),
	}
}

func responseText(message *anthropic.Message) string {
	var sb strings.Builder

	for _, block := range message.Content {
		sb.WriteString(block.Text)
	}

	return sb.String()
}

// parseVerdict extracts the verdict JSON object from the model response.
// Models occasionally wrap the object in prose or a code fence; everything
// outside the outermost braces is ignored.
func parseVerdict(text string) (*Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")

	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrResponseInvalid, truncate(text))
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResponseInvalid, err)
	}

	if verdict.Decision != VerdictSame && verdict.Decision != VerdictDifferent {
		return nil, fmt.Errorf("%w: decision %q", ErrResponseInvalid, verdict.Decision)
	}

	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrResponseInvalid, verdict.Confidence)
	}

	return &verdict, nil
}

const truncateLimit = 120

func truncate(s string) string {
	if len(s) <= truncateLimit {
		return s
	}

	return s[:truncateLimit] + "..."
}
