package post

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const (
	defaultIndustry = "Technology"
	defaultTone     = "professional"
	defaultAudience = "professionals"
)

// Request is what a caller asks for. Only Topic is required.
type Request struct {
	Topic    string `json:"topic"`
	Industry string `json:"industry"`
	Tone     string `json:"tone"`
	Audience string `json:"audience"`
}

// normalize validates the request and fills in defaults for optional fields.
func (r Request) normalize() (Request, error) {
	r.Topic = strings.TrimSpace(r.Topic)
	if r.Topic == "" {
		return Request{}, ErrValidation
	}
	if strings.TrimSpace(r.Industry) == "" {
		r.Industry = defaultIndustry
	}
	if strings.TrimSpace(r.Tone) == "" {
		r.Tone = defaultTone
	}
	if strings.TrimSpace(r.Audience) == "" {
		r.Audience = defaultAudience
	}
	return r, nil
}

// Inputs is the record handed to the generation collaborator.
type Inputs struct {
	Topic       string
	Industry    string
	Tone        string
	Audience    string
	CurrentYear string
}

func newInputs(r Request, now time.Time) Inputs {
	return Inputs{
		Topic:       r.Topic,
		Industry:    r.Industry,
		Tone:        r.Tone,
		Audience:    r.Audience,
		CurrentYear: strconv.Itoa(now.Year()),
	}
}

// Map returns the inputs keyed by their template placeholder names.
func (in Inputs) Map() map[string]string {
	return map[string]string{
		"topic":        in.Topic,
		"industry":     in.Industry,
		"tone":         in.Tone,
		"audience":     in.Audience,
		"current_year": in.CurrentYear,
	}
}

// Generator turns inputs into post text. Implementations may block for a long
// time and may fail for any reason.
type Generator interface {
	Generate(ctx context.Context, in Inputs) (string, error)
}

type GeneratorFunc func(ctx context.Context, in Inputs) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, in Inputs) (string, error) {
	return f(ctx, in)
}

// WordCount counts whitespace-separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

func newResult(r Request, post string, now time.Time) *Result {
	return &Result{
		Post:        post,
		Topic:       r.Topic,
		Industry:    r.Industry,
		Tone:        r.Tone,
		Audience:    r.Audience,
		WordCount:   WordCount(post),
		GeneratedAt: now,
	}
}
