package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
	pkgkafka "PriceServer/pkg/kafka"
	"PriceServer/pkg/util"

	"github.com/shopspring/decimal"
)

// KafkaTicksHandler consumes tick messages and writes them through the ingest service.
type KafkaTicksHandler struct {
	topic   string
	ingest  *IngestService
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, ingest *IngestService, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, ingest: ingest, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// tickMessage is one tick on the wire. Prices may be JSON strings or numbers; the
// timestamp may be a string in any accepted layout or unix seconds/milliseconds.
type tickMessage struct {
	InstrumentID int64               `json:"instrument_id"`
	Timestamp    json.RawMessage     `json:"timestamp"`
	Bid          decimal.Decimal     `json:"bid"`
	Ask          decimal.Decimal     `json:"ask"`
	Volume       decimal.NullDecimal `json:"volume"`
}

// Handle accepts a single tick object or an array of them.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var msgs []tickMessage
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return fmt.Errorf("decode tick batch: %w", err)
		}
	} else {
		var m tickMessage
		if err := json.Unmarshal(trimmed, &m); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return fmt.Errorf("decode tick: %w", err)
		}
		msgs = append(msgs, m)
	}

	ticks := make([]models.Tick, 0, len(msgs))
	for i, m := range msgs {
		if m.InstrumentID <= 0 {
			h.metrics.RecordError("consumer_invalid")
			return fmt.Errorf("tick %d: missing instrument_id", i)
		}
		ts, err := parseMessageTime(m.Timestamp)
		if err != nil {
			h.metrics.RecordError("consumer_invalid")
			return fmt.Errorf("tick %d: %w", i, err)
		}
		t := models.Tick{
			InstrumentID: m.InstrumentID,
			Timestamp:    ts,
			Bid:          m.Bid.Round(models.PriceScale),
			Ask:          m.Ask.Round(models.PriceScale),
			Volume:       m.Volume,
		}
		if t.Volume.Valid {
			t.Volume.Decimal = t.Volume.Decimal.Round(models.PriceScale)
		}
		ticks = append(ticks, t)
	}

	_, err := h.ingest.StoreTicks(ctx, ticks, "kafka")
	return err
}

func parseMessageTime(raw json.RawMessage) (time.Time, error) {
	s := strings.Trim(string(bytes.TrimSpace(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 { // ms
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	if ts, ok := util.ParseTime(s); ok {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
