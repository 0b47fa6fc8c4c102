package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mattbonnell/tq"
	"github.com/rs/zerolog/log"
)

// SensorReading is the payload of the "sensor" task.
type SensorReading struct {
	Sensor  string    `json:"sensor"`
	Value   float64   `json:"value"`
	Unit    string    `json:"unit"`
	TakenAt time.Time `json:"taken_at"`
}

func registerHandlers(c *tq.Consumer) {
	c.Handle("log", handleLog)
	c.Handle("sensor", handleSensor)
}

func handleLog(ctx context.Context, m tq.Message) error {
	log.Info().Str("id", m.ID.String()).RawJSON("payload", m.Payload).Msg("log task")
	return nil
}

func handleSensor(ctx context.Context, m tq.Message) error {
	var r SensorReading
	if err := m.Decode(&r); err != nil {
		return err
	}
	if r.Sensor == "" {
		return fmt.Errorf("sensor reading %s has no sensor name", m.ID)
	}
	log.Info().
		Str("sensor", r.Sensor).
		Float64("value", r.Value).
		Str("unit", r.Unit).
		Time("taken_at", r.TakenAt).
		Msg("sensor reading")
	return nil
}
