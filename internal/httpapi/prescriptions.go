package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"caresentry/internal/storage"
	logx "caresentry/pkg/logx"
)

type medicationInput struct {
	Name         string `json:"name" binding:"required"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
}

type createPrescriptionRequest struct {
	Medications []medicationInput `json:"medications" binding:"required,min=1"`
	Status      string            `json:"status"`
}

type updatePrescriptionRequest struct {
	Medications []medicationInput `json:"medications" binding:"required,min=1"`
}

type prescriptionJSON struct {
	ID          string               `json:"id"`
	Medications []storage.Medication `json:"medications"`
	Status      string               `json:"status"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

func toPrescriptionJSON(p *storage.Prescription) prescriptionJSON {
	return prescriptionJSON{
		ID:          p.ID,
		Medications: p.Medications,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toMedications(in []medicationInput) []storage.Medication {
	out := make([]storage.Medication, 0, len(in))
	for _, m := range in {
		out = append(out, storage.Medication{
			Name:         m.Name,
			Dosage:       m.Dosage,
			Frequency:    m.Frequency,
			Duration:     m.Duration,
			Instructions: m.Instructions,
		})
	}
	return out
}

// POST /api/prescriptions
func (s *Server) handleCreatePrescription(c *gin.Context) {
	var req createPrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	p := storage.Prescription{
		UserID:      userID(c),
		Medications: toMedications(req.Medications),
		Status:      req.Status,
	}
	if err := s.store.CreatePrescription(c.Request.Context(), &p); err != nil {
		s.log.Error("prescription create failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create prescription"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"prescription": toPrescriptionJSON(&p)})
}

// GET /api/prescriptions
func (s *Server) handleListPrescriptions(c *gin.Context) {
	list, err := s.store.PrescriptionsByUser(c.Request.Context(), userID(c))
	if err != nil {
		s.log.Error("prescription list failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list prescriptions"})
		return
	}
	out := make([]prescriptionJSON, 0, len(list))
	for i := range list {
		out = append(out, toPrescriptionJSON(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"prescriptions": out})
}

// PUT /api/prescriptions/:id
func (s *Server) handleUpdatePrescription(c *gin.Context) {
	var req updatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	p, err := s.store.UpdatePrescriptionMedications(
		c.Request.Context(), c.Param("id"), userID(c), toMedications(req.Medications))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "prescription not found"})
		return
	}
	if err != nil {
		s.log.Error("prescription update failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update prescription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prescription": toPrescriptionJSON(p)})
}

// DELETE /api/prescriptions/:id
func (s *Server) handleDeletePrescription(c *gin.Context) {
	err := s.store.DeletePrescription(c.Request.Context(), c.Param("id"), userID(c))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "prescription not found"})
		return
	}
	if err != nil {
		s.log.Error("prescription delete failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete prescription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
