package usecase

import (
	"context"
	"encoding/json"

	"PriceMesh/internal/domain/models"
	domrepo "PriceMesh/internal/domain/repository"
	pkgkafka "PriceMesh/pkg/kafka"
)

// KafkaSubmissionsHandler consumes reporter submissions published to the
// submissions topic and feeds them into the oracle intake.
type KafkaSubmissionsHandler struct {
	topic   string
	intake  *SubmissionIntake
	metrics domrepo.Metrics
}

func NewKafkaSubmissionsHandler(topic string, intake *SubmissionIntake, metrics domrepo.Metrics) *KafkaSubmissionsHandler {
	return &KafkaSubmissionsHandler{topic: topic, intake: intake, metrics: metrics}
}

func (h *KafkaSubmissionsHandler) Topic() string { return h.topic }

// incoming message schema: {reporter, asset, price, volume, t, proof?}
func (h *KafkaSubmissionsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Reporter string `json:"reporter"`
		Asset    string `json:"asset"`
		Price    uint64 `json:"price"`
		Volume   uint64 `json:"volume"`
		T        int64  `json:"t"`
		Proof    []byte `json:"proof,omitempty"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}

	err := h.intake.Process(ctx, &models.Submission{
		Reporter:  m.Reporter,
		Asset:     m.Asset,
		Price:     m.Price,
		Volume:    m.Volume,
		Timestamp: m.T,
		Proof:     m.Proof,
	})
	if err != nil {
		// Oracle rejections are deterministic: retrying the same message can
		// never succeed, so they are counted (inside the intake) and the
		// offset is committed. Only infra errors would warrant a retry, and
		// the intake does not surface those.
		return nil
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSubmissionsHandler)(nil)
