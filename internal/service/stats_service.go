package service

import (
	"context"
	"fmt"
	"math"

	"reachpoint/internal/models"
	"reachpoint/internal/repository"
)

// StatsService recomputes campaign delivery counters. It always aggregates
// over the full message-record set for the campaign instead of maintaining
// counters incrementally, so duplicate or out-of-order receipts can never
// make the counters drift from the underlying rows.
type StatsService struct {
	campaignRepo repository.CampaignRepository
	messageRepo  repository.MessageRepository
}

// NewStatsService creates a new stats service
func NewStatsService(campaignRepo repository.CampaignRepository, messageRepo repository.MessageRepository) *StatsService {
	return &StatsService{
		campaignRepo: campaignRepo,
		messageRepo:  messageRepo,
	}
}

// Recompute aggregates every message record of the campaign and writes the
// counters back onto it. Safe to call concurrently; last write wins and
// every write is internally consistent.
func (s *StatsService) Recompute(ctx context.Context, campaignID int) (models.CampaignStats, error) {
	messages, err := s.messageRepo.GetByCampaignID(ctx, campaignID)
	if err != nil {
		return models.CampaignStats{}, fmt.Errorf("failed to load message records: %w", err)
	}

	stats := Aggregate(messages)

	if err := s.campaignRepo.UpdateStats(ctx, campaignID, stats); err != nil {
		return models.CampaignStats{}, fmt.Errorf("failed to write campaign stats: %w", err)
	}

	return stats, nil
}

// Aggregate computes counters from a record set. A record counts as sent
// once it reached the vendor, which includes later delivered and bounced
// states, so the delivery rate stays within [0, 100].
func Aggregate(messages []*models.MessageRecord) models.CampaignStats {
	var stats models.CampaignStats

	for _, m := range messages {
		switch m.Status {
		case models.MessageStatusSent, models.MessageStatusBounced:
			stats.TotalSent++
		case models.MessageStatusDelivered:
			stats.TotalSent++
			stats.TotalDelivered++
		case models.MessageStatusFailed:
			stats.TotalFailed++
		}
	}

	if stats.TotalSent > 0 {
		rate := float64(stats.TotalDelivered) / float64(stats.TotalSent) * 100
		stats.DeliveryRate = math.Round(rate*100) / 100
	}

	return stats
}
