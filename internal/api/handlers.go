package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mnemo/internal/config"
	"mnemo/internal/keys"
	"mnemo/internal/ltm"
	"mnemo/internal/models"
	"mnemo/internal/shortterm"
	"mnemo/pkg/logger"
)

// HealthCheckFunc pings one backing dependency.
type HealthCheckFunc func(ctx context.Context) error

// API provides the HTTP handlers for the memory service.
type API struct {
	memory  *ltm.Manager
	history *shortterm.History
	keys    *keys.Manager
	cfg     config.MemoryConfig
	logger  *logger.Logger
	checks  map[string]HealthCheckFunc
}

// NewAPI creates the handler set. history and keyManager may be nil when the
// corresponding backend is unavailable; their endpoints then answer 503.
func NewAPI(memory *ltm.Manager, history *shortterm.History, keyManager *keys.Manager, cfg config.MemoryConfig, logger *logger.Logger) *API {
	return &API{
		memory:  memory,
		history: history,
		keys:    keyManager,
		cfg:     cfg,
		logger:  logger,
		checks:  make(map[string]HealthCheckFunc),
	}
}

// AddHealthCheck registers a dependency check reported by the health
// endpoint. Call before the router starts serving.
func (a *API) AddHealthCheck(name string, check HealthCheckFunc) {
	a.checks[name] = check
}

// AddFactHandler stores one fact statement. When a source_context is
// supplied the fact's importance is scored from it; otherwise the baseline
// applies.
func (a *API) AddFactHandler(c *gin.Context) {
	var payload struct {
		Text          string   `json:"text"`
		SubjectIDs    []string `json:"subject_ids"`
		SourceContext string   `json:"source_context"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	fact, err := a.memory.IngestCandidate(c.Request.Context(), models.CandidateFact{
		FactText:      payload.Text,
		SubjectIDs:    payload.SubjectIDs,
		SourceContext: payload.SourceContext,
	})
	if err != nil {
		if errors.Is(err, ltm.ErrFactRejected) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Fact rejected: too short"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store fact"})
		return
	}
	if fact == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Memory core is disabled"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"fact_id": fact.ID, "importance": fact.Importance})
}

// GetRelevantHandler returns the facts most relevant to a query.
func (a *API) GetRelevantHandler(c *gin.Context) {
	query := c.Query("q")
	if strings.TrimSpace(query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing q parameter"})
		return
	}

	subjectIDs := c.QueryArray("subject_id")
	n, _ := strconv.Atoi(c.DefaultQuery("n", "0"))
	maxDistance, _ := strconv.ParseFloat(c.DefaultQuery("max_distance", "0"), 64)

	facts, err := a.memory.GetRelevant(c.Request.Context(), query, subjectIDs, n, maxDistance)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve facts"})
		return
	}
	if facts == nil {
		facts = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"facts": facts})
}

// CountFactsHandler returns the number of stored facts.
func (a *API) CountFactsHandler(c *gin.Context) {
	count, err := a.memory.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count facts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MaintenanceHandler triggers a maintenance run and returns its report. The
// optional JSON body may override the tunable thresholds; everything else
// always comes from the process-wide defaults.
func (a *API) MaintenanceHandler(c *gin.Context) {
	cfg := a.cfg.Maintenance
	var overrides struct {
		SimilarityThreshold   *float64 `json:"similarity_threshold"`
		MaxDaysUnaccessed     *int     `json:"max_days_unaccessed"`
		MinAccessForRetention *int     `json:"min_access_for_retention"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&overrides); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
			return
		}
		if overrides.SimilarityThreshold != nil {
			cfg.SimilarityThreshold = *overrides.SimilarityThreshold
		}
		if overrides.MaxDaysUnaccessed != nil {
			cfg.MaxDaysUnaccessed = *overrides.MaxDaysUnaccessed
		}
		if overrides.MinAccessForRetention != nil {
			cfg.MinAccessForRetention = *overrides.MinAccessForRetention
		}
	}

	report, err := a.memory.PerformMaintenance(c.Request.Context(), cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Maintenance failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// AppendHistoryHandler appends one message to a chat's short-term buffer.
func (a *API) AppendHistoryHandler(c *gin.Context) {
	if a.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Short-term history is unavailable"})
		return
	}

	var msg models.ChatMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	msg.ChatID = c.Param("chat_id")

	if err := a.history.Append(c.Request.Context(), msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to append message"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"chat_id": msg.ChatID})
}

// GetHistoryHandler returns a chat's buffered messages, oldest first.
func (a *API) GetHistoryHandler(c *gin.Context) {
	if a.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Short-term history is unavailable"})
		return
	}

	msgs, err := a.history.Recent(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// KeyStatsHandler exposes API key rotation statistics.
func (a *API) KeyStatsHandler(c *gin.Context) {
	if a.keys == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Key rotation is not in use"})
		return
	}
	c.JSON(http.StatusOK, a.keys.Stats())
}

// HealthHandler reports process liveness, memory core status and the state
// of every registered dependency check.
func (a *API) HealthHandler(c *gin.Context) {
	memoryStatus := "ok"
	if !a.memory.Enabled() {
		memoryStatus = "unavailable"
	}

	deps := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		if err := check(ctx); err != nil {
			deps[name] = "unavailable"
		} else {
			deps[name] = "ok"
		}
		cancel()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"memory":       memoryStatus,
		"dependencies": deps,
	})
}
