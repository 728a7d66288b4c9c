package notifier

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/frameloft/FrameLoft/internal/pkg/database"
	"github.com/frameloft/FrameLoft/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// Manager runs the periodic threshold scan in the background.
type Manager struct {
	service    *Service
	interval   time.Duration
	scanTicker *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global notifier manager (singleton), configured
// from the environment.
func GetManager(sender Sender) *Manager {
	managerOnce.Do(func() {
		interval := 5 * time.Minute
		if raw := env.GetEnv("STORAGE_ALERT_SCAN_INTERVAL_MIN", ""); raw != "" {
			if mins, err := strconv.Atoi(raw); err == nil && mins > 0 {
				interval = time.Duration(mins) * time.Minute
			}
		}

		globalManager = &Manager{
			service:  NewService(NewRepository(database.GetDB()), sender, thresholdsFromEnv()),
			interval: interval,
			stopCh:   make(chan struct{}),
		}
	})
	return globalManager
}

// thresholdsFromEnv parses STORAGE_ALERT_THRESHOLDS ("70,90") with a default.
func thresholdsFromEnv() []int {
	raw := env.GetEnv("STORAGE_ALERT_THRESHOLDS", "70,90")
	var thresholds []int
	for _, part := range strings.Split(raw, ",") {
		t, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || t <= 0 || t > 100 {
			continue
		}
		thresholds = append(thresholds, t)
	}
	if len(thresholds) == 0 {
		thresholds = []int{70, 90}
	}
	return thresholds
}

// Start starts the periodic scan.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be restarted.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Notifier Manager] Starting storage threshold scans")

	m.scanTicker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.scanWorker()
}

// Stop stops the periodic scan and waits for a running pass to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	close(m.stopCh)
	m.scanTicker.Stop()
	m.wg.Wait()
	m.running = false
	log.Info("[Notifier Manager] Stopped")
}

func (m *Manager) scanWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.scanTicker.C:
			if err := m.service.RunScan(context.Background()); err != nil {
				log.Errorf("[Notifier Manager] Scan failed: %v", err)
			}
		case <-m.stopCh:
			return
		}
	}
}
