package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartcrop/api/internal/apperr"
	"smartcrop/api/internal/middleware"
	"smartcrop/api/internal/models"
	"smartcrop/api/internal/service"
)

type diagnosisResponse struct {
	ID         string    `json:"id"`
	Crop       string    `json:"crop"`
	Prediction string    `json:"prediction"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (h HandlerSet) PredictDisease(c *gin.Context) {
	// The body cap covers the image plus the multipart envelope.
	limit := h.cfg.Diagnosis.MaxUploadBytes
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = c.Error(apperr.Validation("image", "Image is too large"))
			return
		}
		_ = c.Error(apperr.Validation("image", "Image is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer file.Close()

	input := service.PredictInput{
		Crop:   c.PostForm("crop"),
		File:   file,
		Header: fileHeader.Header,
	}
	if user, ok := middleware.CurrentUser(c); ok {
		input.UserID = &user.ID
	}

	d, err := h.diagnoses.Predict(c.Request.Context(), input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toDiagnosisResponse(d))
}

func (h HandlerSet) DiseaseHistory(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperr.Auth(apperr.ErrUnauthorized))
		return
	}

	rows, err := h.diagnoses.History(c.Request.Context(), user.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	items := make([]diagnosisResponse, 0, len(rows))
	for _, d := range rows {
		items = append(items, toDiagnosisResponse(d))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func toDiagnosisResponse(d models.Diagnosis) diagnosisResponse {
	return diagnosisResponse{
		ID:         d.ID,
		Crop:       string(d.Crop),
		Prediction: d.Prediction,
		CreatedAt:  d.CreatedAt,
	}
}
