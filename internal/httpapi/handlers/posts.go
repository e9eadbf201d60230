package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/postcrew/internal/common"
	"github.com/suPer8Hu/postcrew/internal/logx"
	"github.com/suPer8Hu/postcrew/internal/post"
)

const msgTopicRequired = "Topic is required"

// bindPostRequest decodes the body. An empty body is treated as {} so the
// caller gets the missing-topic error rather than a decoding one.
func bindPostRequest(c *gin.Context) (post.Request, bool) {
	var req post.Request
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.Fail(c, http.StatusBadRequest, "Invalid JSON body")
		return post.Request{}, false
	}
	return req, true
}

func (h *Handler) GeneratePost(c *gin.Context) {
	req, ok := bindPostRequest(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	jobID, err := h.Posts.StartJob(ctx, req)
	if err != nil {
		if errors.Is(err, post.ErrValidation) {
			common.Fail(c, http.StatusBadRequest, msgTopicRequired)
			return
		}
		logx.FromContext(ctx).Error("start post generation", "err", err)
		common.FailWithDetails(c, http.StatusInternalServerError, "Failed to start post generation", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  jobID,
		"status":  string(post.JobStarted),
		"message": "LinkedIn post generation started",
	})
}

func (h *Handler) GetJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	j, err := h.Posts.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, post.ErrJobNotFound) {
			common.Fail(c, http.StatusNotFound, "Job not found")
			return
		}
		logx.FromContext(c.Request.Context()).Error("get job status", "job_id", jobID, "err", err)
		common.FailWithDetails(c, http.StatusInternalServerError, "Failed to get job status", err.Error())
		return
	}

	c.JSON(http.StatusOK, j)
}

func (h *Handler) GeneratePostSync(c *gin.Context) {
	req, ok := bindPostRequest(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	res, err := h.Posts.RunSync(ctx, req)
	if err != nil {
		if errors.Is(err, post.ErrValidation) {
			common.Fail(c, http.StatusBadRequest, msgTopicRequired)
			return
		}
		logx.FromContext(ctx).Error("generate post", "err", err)
		common.FailWithDetails(c, http.StatusInternalServerError, "Failed to generate post", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": string(post.JobCompleted),
		"result": res,
	})
}
