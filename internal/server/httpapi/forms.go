package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/civilforms/internal/forms"
	"github.com/dmitrijs2005/civilforms/internal/pricing"
	"github.com/dmitrijs2005/civilforms/internal/uploads"
)

// SubmitBody is the JSON document posted to /api/forms/:formType.
type SubmitBody struct {
	Form  json.RawMessage        `json:"form"`
	Files []uploads.UploadedFile `json:"files,omitempty"`
	// Honeypot is a field people never see.
	Honeypot  string    `json:"honeypot,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Submit decodes the form of the path's type and runs it through the
// controller.
func (h *Handler) Submit(c *gin.Context) {
	ft, err := forms.ParseFormType(c.Param("formType"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var body SubmitBody
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Form) == 0 {
		h.badRequest(c, "malformed submission")
		return
	}

	f, err := forms.New(ft)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := json.Unmarshal(body.Form, f); err != nil {
		h.badRequest(c, "malformed form fields")
		return
	}

	conf, err := h.forms.Submit(c.Request.Context(), forms.Request{
		Form:      f,
		Files:     body.Files,
		Honeypot:  body.Honeypot,
		StartedAt: body.StartedAt,
		UserAgent: c.Request.UserAgent(),
		URL:       c.Request.URL.Path,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conf)
}

// Confirmation reads back a stored submission.
func (h *Handler) Confirmation(c *gin.Context) {
	ft, err := forms.ParseFormType(c.Param("formType"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	conf, err := h.forms.Confirmation(c.Request.Context(), ft, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conf)
}

// QuoteResponse is a price breakdown with display strings.
type QuoteResponse struct {
	pricing.Breakdown
	Display map[string]string `json:"display"`
	Tier    string            `json:"tier"`
}

// Quote prices a project without storing anything.
func (h *Handler) Quote(c *gin.Context) {
	var in pricing.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "malformed pricing input")
		return
	}
	b, err := pricing.Calculate(in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, QuoteResponse{
		Breakdown: b,
		Tier:      pricing.Tier(in.Acres),
		Display: map[string]string{
			"base":               pricing.Format(b.Base),
			"erosion_control":    pricing.Format(b.ErosionControl),
			"utilities":          pricing.Format(b.Utilities),
			"advanced_utilities": pricing.Format(b.AdvancedUtilities),
			"total":              pricing.Format(b.Total),
		},
	})
}
