package vision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var ErrNoName = errors.New("could not extract name from ID")

const unableMarker = "UNABLE_TO_EXTRACT"

const namePrompt = `Analyze this student ID card image and extract the student's full name.

Rules:
1. Look for the name field on the ID card
2. The name is typically near the photo or at the top of the card
3. Ignore student numbers, expiry dates, and other fields
4. Return ONLY the full name, nothing else
5. If you cannot find a clear name, respond with "` + unableMarker + `"
6. Format the name with proper capitalization (e.g., "John Smith" not "JOHN SMITH")

Respond with ONLY the name or "` + unableMarker + `". No explanations.`

// Gemini reads the printed name off an ID photo with a Gemini vision model.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(0)
	return &Gemini{client: client, model: m}, nil
}

func (g *Gemini) Close() error { return g.client.Close() }

// ReadName returns the cleaned full name printed on the ID in image.
func (g *Gemini) ReadName(ctx context.Context, image []byte, mimeType string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.ImageData(imageFormat(mimeType), image), genai.Text(namePrompt))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	name, ok := CleanExtractedName(replyText(resp))
	if !ok {
		return "", ErrNoName
	}
	return name, nil
}

func imageFormat(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "jpeg"
	}
}

func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return strings.TrimSpace(b.String())
}

var notNameChars = regexp.MustCompile(`[^a-zA-Z\s\-']`)

// CleanExtractedName strips everything but letters, spaces, hyphens and
// apostrophes and title-cases the result. It needs at least a first and a
// last name.
func CleanExtractedName(text string) (string, bool) {
	if text == "" || text == unableMarker {
		return "", false
	}
	parts := strings.Fields(notNameChars.ReplaceAllString(text, ""))
	if len(parts) < 2 {
		return "", false
	}
	cleaned := strings.Join(parts, " ")
	if len(cleaned) < 3 || len(cleaned) > 100 {
		return "", false
	}
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, " "), true
}
