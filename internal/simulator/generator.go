package simulator

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pitwall/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	percentDivisor     = 100
)

// Lap time generation bounds, in milliseconds. Each device gets a base pace
// drawn from the grid spread, and every lap jitters around that base. Sector
// times split the lap roughly evenly with their own jitter.
const (
	gridBaseLapMS   = 80_000
	gridSpreadMS    = 6_000
	lapJitterMS     = 4_000
	sectorJitterMS  = 1_500
	zeroTimePercent = 2 // events carrying no time, e.g. crossed the line coasting
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// rollPercent reports true with the given percentage probability.
func rollPercent(percent int) bool {
	if percent <= 0 {
		return false
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(percentDivisor))
	return n.Int64() < int64(percent)
}

// generateEvents creates lap and sector events for the configured grid. Every
// device runs the same number of laps; each lap produces one event per sector
// plus the lap event itself, in track order.
func generateEvents(ctx context.Context, config *Config, stats *Stats) ([]Event, error) {
	logger.Get().Info(ctx, "generating timing events",
		logger.Int("devices", config.NumDevices),
		logger.Int("lapsPerDevice", config.LapsPerDevice),
		logger.Int("sectors", config.Sectors))

	events := make([]Event, 0, config.NumDevices*config.LapsPerDevice*(config.Sectors+1))

	for d := 0; d < config.NumDevices; d++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		deviceID := "car-" + strconv.Itoa(d+1)
		baseLapMS := gridBaseLapMS + int64(getRandomFloat()*gridSpreadMS)
		events = append(events, generateDeviceStint(config, deviceID, baseLapMS)...)
	}

	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events successfully", logger.Int("count", len(events)))

	return events, nil
}

// generateDeviceStint produces one device's full run.
func generateDeviceStint(config *Config, deviceID string, baseLapMS int64) []Event {
	events := make([]Event, 0, config.LapsPerDevice*(config.Sectors+1))
	now := time.Now().UTC()

	for lap := 1; lap <= config.LapsPerDevice; lap++ {
		lapMS := baseLapMS + int64(getRandomFloat()*lapJitterMS)
		if rollPercent(zeroTimePercent) {
			lapMS = 0
		}

		// Sector events first, then the lap crossing.
		remaining := lapMS
		for sector := 1; sector <= config.Sectors; sector++ {
			sectorMS := int64(0)
			if lapMS > 0 {
				sectorMS = lapMS/int64(config.Sectors) + int64(getRandomFloat()*sectorJitterMS)
				if sector == config.Sectors && remaining > 0 {
					sectorMS = remaining
				}
				remaining -= sectorMS
			}
			now = now.Add(time.Duration(sectorMS) * time.Millisecond)
			events = append(events, Event{
				EventID:   uuid.New().String(),
				DeviceID:  deviceID,
				Type:      "sector",
				ElapsedMS: sectorMS,
				TS:        now.Format(time.RFC3339),
				Lap:       lap,
				Sector:    sector,
			})
		}

		events = append(events, Event{
			EventID:   uuid.New().String(),
			DeviceID:  deviceID,
			Type:      "lap",
			ElapsedMS: lapMS,
			TS:        now.Format(time.RFC3339),
			Lap:       lap,
		})
	}
	return events
}

// pickDeletions selects the timed events to retract afterwards.
func pickDeletions(config *Config, events []Event) []Event {
	if config.DeletePercent <= 0 {
		return nil
	}
	deletions := make([]Event, 0, len(events)*config.DeletePercent/percentDivisor)
	for _, ev := range events {
		if ev.ElapsedMS == 0 || !rollPercent(config.DeletePercent) {
			continue
		}
		deletions = append(deletions, Event{
			EventID:   ev.EventID,
			DeletedAt: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return deletions
}
