package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/humanlink/humanlink/internal/common/logger"
	"github.com/humanlink/humanlink/internal/interaction"
)

// Handlers provides the HTTP API the browser uses to list and answer
// pending interactions.
type Handlers struct {
	channel *Web
	logger  *logger.Logger
}

// NewHandlers creates new web channel handlers.
func NewHandlers(channel *Web, log *logger.Logger) *Handlers {
	return &Handlers{
		channel: channel,
		logger:  log.WithFields(zap.String("component", "web-handlers")),
	}
}

// RegisterRoutes registers the web channel HTTP routes.
func RegisterRoutes(router *gin.Engine, channel *Web, hub *Hub, log *logger.Logger) {
	h := NewHandlers(channel, log)
	api := router.Group("/api/v1/interactions")
	api.GET("", h.httpListPending)
	api.POST("/:id/respond", h.httpRespond)
	router.GET("/ws", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})
}

func (h *Handlers) httpListPending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"interactions": h.channel.Store().List()})
}

// RespondBody is the request body for answering a pending interaction.
type RespondBody struct {
	SelectedValues []string `json:"selected_values"`
	TextValue      string   `json:"text_value"`
	CustomInput    string   `json:"custom_input"`
	Cancelled      bool     `json:"cancelled"`
}

func (h *Handlers) httpRespond(c *gin.Context) {
	id := c.Param("id")

	var body RespondBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	d, ok := h.channel.Store().Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "interaction not found"})
		return
	}

	resp, err := buildResponse(d.Request, &body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.channel.Store().Resolve(id, resp); err != nil {
		h.logger.Warn("failed to resolve interaction",
			zap.String("interaction_id", id),
			zap.Error(err))
		switch {
		case errors.Is(err, ErrAlreadyResolved):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// buildResponse maps the browser's answer onto the normalized response for
// the dialog's interaction type.
func buildResponse(req *interaction.Request, body *RespondBody) (*interaction.Response, error) {
	if body.Cancelled {
		if !req.IsCancellable {
			return nil, errors.New("interaction is not cancellable")
		}
		return interaction.NewCancelled(false), nil
	}

	switch req.Type {
	case interaction.TypeNotify:
		return interaction.NewSuccess(), nil

	case interaction.TypeTextInput:
		return interaction.NewText(body.TextValue), nil

	case interaction.TypeConfirm, interaction.TypeSingleChoice:
		if len(body.SelectedValues) != 1 {
			return nil, errors.New("exactly one selected value is required")
		}
		return interaction.NewSuccess(body.SelectedValues...), nil

	case interaction.TypeMultiChoice:
		n := len(body.SelectedValues)
		if n < req.MinSelections {
			return nil, errors.New("not enough selections")
		}
		if req.MaxSelections > 0 && n > req.MaxSelections {
			return nil, errors.New("too many selections")
		}
		return interaction.NewSuccess(body.SelectedValues...), nil

	case interaction.TypeChoiceWithText:
		if body.CustomInput != "" {
			return interaction.NewCustomInput(body.CustomInput), nil
		}
		if len(body.SelectedValues) != 1 {
			return nil, errors.New("a selected value or custom input is required")
		}
		return interaction.NewSuccess(body.SelectedValues...), nil

	default:
		return nil, errors.New("unknown interaction type")
	}
}
