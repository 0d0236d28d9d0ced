// Package controller exposes the judge's read surface over HTTP.
package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"gavel/internal/judge/repository"
	"gavel/pkg/utils/response"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// JudgeController serves submission results, user scores and the leaderboard.
// All endpoints are read only; judging is triggered through the queue.
type JudgeController struct {
	submissions repository.SubmissionRepository
	leaderboard repository.LeaderboardRepository
}

// NewJudgeController creates the controller.
func NewJudgeController(submissions repository.SubmissionRepository, leaderboard repository.LeaderboardRepository) *JudgeController {
	return &JudgeController{submissions: submissions, leaderboard: leaderboard}
}

// RegisterRoutes mounts the endpoints on the given group.
func (ctl *JudgeController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/submissions/:id", ctl.GetSubmission)
	group.GET("/submissions/:id/status", ctl.GetSubmissionStatus)
	group.GET("/users/:id/score", ctl.GetUserScore)
	group.GET("/leaderboard", ctl.GetLeaderboard)
}

// GetSubmission returns the submission with its stored per-case results.
func (ctl *JudgeController) GetSubmission(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, "submission id is required")
		return
	}
	sub, err := ctl.submissions.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sub)
}

// GetSubmissionStatus returns only the lifecycle status, served from cache
// when the submission is terminal.
func (ctl *JudgeController) GetSubmissionStatus(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, "submission id is required")
		return
	}
	status, err := ctl.submissions.GetStatus(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "status": status})
}

// GetUserScore returns the user's cumulative score. Users who never scored
// read as zero.
func (ctl *JudgeController) GetUserScore(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, "user id is required")
		return
	}
	score, err := ctl.leaderboard.GetScore(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": id, "score": score})
}

// GetLeaderboard returns the top scorers in descending score order.
func (ctl *JudgeController) GetLeaderboard(c *gin.Context) {
	limit := int64(defaultLeaderboardLimit)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	entries, err := ctl.leaderboard.TopN(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"entries": entries, "count": len(entries)})
}
