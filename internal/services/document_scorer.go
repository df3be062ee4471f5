// internal/services/document_scorer.go
package services

import "github.com/addislicensing/backend/internal/models"

// DocumentScorer judges the authenticity of an uploaded document.
// Implementations call out to an external service; scoring runs best effort
// after upload and its verdict never blocks the application.
type DocumentScorer interface {
	Score(doc *models.Document) (verdict models.DocumentVerdict, score *float64, details string, err error)
}

// NoopScorer leaves every document inconclusive. Used when no scoring
// backend is configured.
type NoopScorer struct{}

func (NoopScorer) Score(doc *models.Document) (models.DocumentVerdict, *float64, string, error) {
	return models.DocumentVerdictInconclusive, nil, "no scoring backend configured", nil
}
