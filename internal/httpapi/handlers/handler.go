package handlers

import (
	"time"

	"github.com/suPer8Hu/postcrew/internal/post"
)

const serviceName = "linkedin-post-creator"

type Handler struct {
	Posts *post.Service
	// Now is overridable for tests.
	Now func() time.Time
}

func NewHandler(posts *post.Service) *Handler {
	return &Handler{Posts: posts, Now: time.Now}
}
