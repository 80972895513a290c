package httpapi

import (
	"net/http"
	"time"

	"studylink/internal/auth"
	"studylink/internal/core/domain"
	"studylink/internal/core/ports"
	apperrors "studylink/pkg/errors"
	"studylink/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MeetingHandler serves the meeting lifecycle endpoints consumed by the
// room client: meeting details at session load and recording upload at
// session end.
type MeetingHandler struct {
	repo       ports.MeetingRepository
	recordings ports.RecordingStore
	tokens     *auth.TokenManager
	onStored   func(bytes int)
	logger     *zap.SugaredLogger
}

func NewMeetingHandler(repo ports.MeetingRepository, recordings ports.RecordingStore, tokens *auth.TokenManager, logger *zap.SugaredLogger) *MeetingHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MeetingHandler{
		repo:       repo,
		recordings: recordings,
		tokens:     tokens,
		logger:     logger,
	}
}

// OnRecordingStored registers a hook fired after each persisted upload.
func (h *MeetingHandler) OnRecordingStored(fn func(bytes int)) { h.onStored = fn }

// SetupRoutes registers the API. Token minting stays public; the
// meeting routes run behind whatever middleware the caller passes
// (AuthMiddleware in production when auth is enabled).
func (h *MeetingHandler) SetupRoutes(router *gin.Engine, protectedWith ...gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.POST("/auth/token", h.IssueToken)

	protected := api.Group("")
	protected.Use(protectedWith...)
	{
		protected.POST("/meetings", h.CreateMeeting)
		protected.GET("/meetings/:id", h.GetMeeting)
		protected.POST("/meetings/:id/recordings", h.UploadRecording)
	}
}

// IssueToken mints a session token for a user. In production this sits
// behind the platform's own login; here it backs local and test runs.
func (h *MeetingHandler) IssueToken(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Username string `json:"username" binding:"required,min=1,max=100"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username := utils.SanitizeString(req.Username)
	if utils.IsEmpty(username) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username must not be blank"})
		return
	}

	token, err := h.tokens.Issue(domain.UserID(req.UserID), username)
	if err != nil {
		c.Error(apperrors.NewInternalError("failed to issue token"))
		return
	}

	h.logger.Debugw("token issued", "user_id", req.UserID, "token", utils.MaskSensitive(token, 8))
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *MeetingHandler) CreateMeeting(c *gin.Context) {
	var req struct {
		HostID      string    `json:"host_id" binding:"required"`
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	session := &domain.MeetingSession{
		ID:          domain.MeetingID(uuid.NewString()),
		HostID:      domain.UserID(req.HostID),
		Phase:       domain.PhaseScheduled,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}
	if err := h.repo.Create(c.Request.Context(), session); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"meeting": session})
}

// GetMeeting returns the details snapshot the room client consumes once
// at session load.
func (h *MeetingHandler) GetMeeting(c *gin.Context) {
	meetingID := domain.MeetingID(c.Param("id"))

	session, err := h.repo.Get(c.Request.Context(), meetingID)
	if err != nil {
		c.Error(err)
		return
	}
	participants, err := h.repo.ListParticipants(c.Request.Context(), meetingID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, domain.MeetingDetails{
		ID:           session.ID,
		HostID:       session.HostID,
		Participants: participants,
		ScheduledAt:  session.ScheduledAt,
		StartedAt:    session.StartedAt,
		Phase:        session.Phase,
	})
}

// UploadRecording accepts the multipart recording blob produced by the
// room client and persists it through the recording store.
func (h *MeetingHandler) UploadRecording(c *gin.Context) {
	meetingID := domain.MeetingID(c.Param("id"))
	if _, err := h.repo.Get(c.Request.Context(), meetingID); err != nil {
		c.Error(err)
		return
	}

	userID := domain.UserID(c.GetString("user_id"))
	if userID == "" {
		userID = domain.UserID(c.PostForm("user_id"))
	}

	file, header, err := c.Request.FormFile("recording")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recording file is required"})
		return
	}
	defer file.Close()

	mimeType := c.PostForm("mime_type")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}

	key, err := h.recordings.Save(c.Request.Context(), meetingID, userID, mimeType, file)
	if err != nil {
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to store recording", http.StatusInternalServerError))
		return
	}

	if h.onStored != nil {
		h.onStored(int(header.Size))
	}
	h.logger.Infow("recording uploaded",
		"meeting_id", meetingID,
		"user_id", userID,
		"key", key,
		"bytes", header.Size,
	)

	c.JSON(http.StatusCreated, gin.H{"key": key})
}
