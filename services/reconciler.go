package services

import (
	"context"
	"errors"
	"log"
	"time"

	"aquamon/models"
)

// AlertReconciler is the convergence safety net for measurement alerts.
// The admission gate checks connectivity only at creation time, so direct
// writes or races can leave measurement alerts active for sensors that
// have since gone offline. Each pass re-checks connectivity for every
// unresolved measurement alert and auto-resolves the stale ones.
type AlertReconciler struct {
	store        *AlertStore
	lifecycle    *AlertLifecycleService
	connectivity *ConnectivityService
	audit        *AuditService

	interval         time.Duration
	thresholdMinutes int

	stopChan chan struct{}
	running  bool
}

func NewAlertReconciler(store *AlertStore, lifecycle *AlertLifecycleService, connectivity *ConnectivityService, audit *AuditService, interval time.Duration, thresholdMinutes int) *AlertReconciler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if thresholdMinutes <= 0 {
		thresholdMinutes = 15
	}
	return &AlertReconciler{
		store:            store,
		lifecycle:        lifecycle,
		connectivity:     connectivity,
		audit:            audit,
		interval:         interval,
		thresholdMinutes: thresholdMinutes,
		stopChan:         make(chan struct{}),
	}
}

func (r *AlertReconciler) Start() {
	if r.running {
		return
	}
	r.running = true

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		log.Printf("AlertReconciler: started (interval %s)", r.interval)

		for {
			select {
			case <-ticker.C:
				r.reconcile()
			case <-r.stopChan:
				log.Println("AlertReconciler: stopped")
				return
			}
		}
	}()
}

func (r *AlertReconciler) Stop() {
	if !r.running {
		return
	}
	r.running = false
	close(r.stopChan)
}

// reconcile walks the active measurement alerts and dismisses every one
// whose sensor is no longer reporting. One alert's failure never stops
// the rest of the pass.
func (r *AlertReconciler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	active := r.store.GetActive(ctx, AlertFilter{MeasurementOnly: true})
	if len(active) == 0 {
		return
	}

	resolved := 0
	for _, alert := range active {
		if alert.SensorID == "" {
			continue
		}

		connected, err := r.connectivity.IsConnected(ctx, alert.SensorID, r.thresholdMinutes)
		if err != nil {
			log.Printf("AlertReconciler: connectivity check failed for %s: %v", alert.SensorID, err)
			continue
		}
		if connected {
			continue
		}

		// Before-state record, then the dismissal, then after-state.
		r.audit.Record(ctx, &models.AuditEntry{
			Actor:    "system:reconciler",
			Action:   "reconcile_before",
			AlertID:  alert.ID,
			SensorID: alert.SensorID,
			Detail: map[string]interface{}{
				"type":       string(alert.Type),
				"level":      string(alert.Level),
				"created_at": alert.CreatedAt,
			},
		})

		history, err := r.lifecycle.DismissBySystem(ctx, alert.ID, "system:reconciler", "sensor disconnected")
		if err != nil {
			// A concurrent dismissal already resolved it; nothing to do.
			if errors.Is(err, ErrAlreadyResolved) || errors.Is(err, ErrNotFound) {
				continue
			}
			log.Printf("AlertReconciler: failed to resolve alert %s: %v", alert.ID, err)
			continue
		}

		r.audit.Record(ctx, &models.AuditEntry{
			Actor:    "system:reconciler",
			Action:   "reconcile_after",
			AlertID:  alert.ID,
			SensorID: alert.SensorID,
			Detail: map[string]interface{}{
				"resolution_type":  string(history.ResolutionType),
				"duration_minutes": history.DurationMinutes,
			},
		})

		log.Printf("AlertReconciler: sensor %s offline, stale %s alert %s auto-resolved", alert.SensorID, alert.Type, alert.ID)
		resolved++
	}

	if resolved > 0 {
		log.Printf("AlertReconciler: pass complete, %d of %d alerts resolved", resolved, len(active))
	}
}
