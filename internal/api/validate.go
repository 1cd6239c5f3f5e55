package api

import (
	"fmt"
	"time"

	"binroute/internal/config"
	"binroute/internal/model"
	"binroute/internal/vrp"
)

const (
	maxVehiclesPerRun = 50
	maxStopsPerRun    = 1000
)

func validateOptimizeRequest(req *model.OptimizeRequest, cfg config.Engine, now time.Time) error {
	if req.Date == "" {
		return fmt.Errorf("date is required (YYYY-MM-DD)")
	}
	d, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", req.Date)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if d.Before(today) {
		return fmt.Errorf("date %s is in the past", req.Date)
	}
	horizon := cfg.MaxDateHorizonDays
	if horizon <= 0 {
		horizon = 30
	}
	if d.After(today.AddDate(0, 0, horizon)) {
		return fmt.Errorf("date %s is more than %d days ahead", req.Date, horizon)
	}
	if n := max(len(req.Vehicles), len(req.VehicleIDs)); n > maxVehiclesPerRun {
		return fmt.Errorf("too many vehicles: %d (max %d)", n, maxVehiclesPerRun)
	}
	if n := max(len(req.Stops), len(req.StopIDs)); n > maxStopsPerRun {
		return fmt.Errorf("too many stops: %d (max %d)", n, maxStopsPerRun)
	}
	if sec := req.MaxOptimizationTimeSec; sec != 0 && (sec < cfg.MinBudgetSec || sec > cfg.MaxBudgetSec) {
		return fmt.Errorf("maxOptimizationTimeSec must be between %d and %d", cfg.MinBudgetSec, cfg.MaxBudgetSec)
	}
	if _, err := vrp.WeightsFromMap(req.Objectives); err != nil {
		return err
	}
	return nil
}

func validateAdaptRequest(req *model.AdaptRequest, cfg config.Engine) error {
	switch req.Priority {
	case "", model.PriorityStandard, model.PriorityUrgent, model.PriorityEmergency:
	default:
		return fmt.Errorf("invalid priority %q (allowed: emergency,urgent,standard)", req.Priority)
	}
	if sec := req.MaxAdaptationTimeSec; sec != 0 && (sec < 1 || sec > cfg.MaxAdaptationSec) {
		return fmt.Errorf("maxAdaptationTimeSec must be between 1 and %d", cfg.MaxAdaptationSec)
	}
	if req.Delta.Empty() {
		return nil
	}
	for _, s := range req.Delta.AddedStops {
		if s.ID == "" {
			return fmt.Errorf("added stop missing id")
		}
	}
	return nil
}

func validateAlternativesRequest(req *model.AlternativesRequest, cfg config.Engine, now time.Time) error {
	if err := validateOptimizeRequest(&req.OptimizeRequest, cfg, now); err != nil {
		return err
	}
	if len(req.WeightVariants) > vrp.MaxAlternatives {
		return vrp.ErrTooManyAlternatives
	}
	for _, m := range req.WeightVariants {
		if _, err := vrp.WeightsFromMap(m); err != nil {
			return err
		}
	}
	return nil
}
