package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"aquamon/config"
	"aquamon/models"
)

// ThrottleMode indicates which cooldown backend is active
type ThrottleMode string

const (
	ThrottleModeRedis    ThrottleMode = "redis"
	ThrottleModeInMemory ThrottleMode = "in-memory"
)

// throttleEntry for the in-memory fallback
type throttleEntry struct {
	SentAt    time.Time
	ExpiresAt time.Time
}

// NotificationThrottle tracks per-(channel, alert type, sensor, recipient)
// cooldowns. A send is permitted only when no record for the key is inside
// the window. Redis keys carry the window as TTL; when Redis is
// unavailable the throttle degrades to an in-memory map.
type NotificationThrottle struct {
	cfg    *config.Config
	window time.Duration

	redis       *redis.Client
	redisCtx    context.Context
	redisCancel context.CancelFunc
	mode        ThrottleMode
	modeMutex   sync.RWMutex

	memory sync.Map

	now func() time.Time
}

func NewNotificationThrottle(cfg *config.Config) *NotificationThrottle {
	ctx, cancel := context.WithCancel(context.Background())

	nt := &NotificationThrottle{
		cfg:         cfg,
		window:      cfg.ThrottleWindowDuration(),
		redisCtx:    ctx,
		redisCancel: cancel,
		mode:        ThrottleModeInMemory,
		now:         time.Now,
	}

	if cfg.Redis.Enabled {
		nt.connectRedis()
	} else {
		log.Println("Redis disabled in config, throttle state kept in memory only")
	}

	return nt
}

func (nt *NotificationThrottle) connectRedis() {
	if nt.cfg.Redis.Address == "" {
		log.Println("Redis address not configured, throttle state kept in memory")
		return
	}

	options := &redis.Options{
		Addr:         nt.cfg.Redis.Address,
		Password:     nt.cfg.Redis.Password,
		DB:           nt.cfg.Redis.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     5,
		MinIdleConns: 1,
		MaxRetries:   3,
	}

	if nt.cfg.Redis.UseTLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	nt.redis = redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := nt.redis.Ping(ctx).Result(); err != nil {
		log.Printf("Redis connection failed: %v (throttle running in-memory)", err)
		return
	}

	log.Printf("Redis connected for notification throttle at %s", nt.cfg.Redis.Address)
	nt.setMode(ThrottleModeRedis)
}

func (nt *NotificationThrottle) setMode(mode ThrottleMode) {
	nt.modeMutex.Lock()
	defer nt.modeMutex.Unlock()
	if nt.mode != mode {
		nt.mode = mode
		log.Printf("Throttle mode changed: %s", mode)
	}
}

func (nt *NotificationThrottle) getMode() ThrottleMode {
	nt.modeMutex.RLock()
	defer nt.modeMutex.RUnlock()
	return nt.mode
}

func (nt *NotificationThrottle) Stop() {
	nt.redisCancel()
	if nt.redis != nil {
		nt.redis.Close()
	}
}

// Mode reports the active throttle backend.
func (nt *NotificationThrottle) Mode() ThrottleMode {
	return nt.getMode()
}

// Window returns the configured cooldown window.
func (nt *NotificationThrottle) Window() time.Duration {
	return nt.window
}

// ShouldSend reports whether the key is outside its cooldown window.
// When the backend cannot answer, delivery fails open: a duplicate
// notification is preferable to a silently lost one.
func (nt *NotificationThrottle) ShouldSend(key string) bool {
	if nt.getMode() == ThrottleModeRedis {
		ctx, cancel := context.WithTimeout(nt.redisCtx, 2*time.Second)
		defer cancel()

		_, err := nt.redis.Get(ctx, key).Result()
		if err == redis.Nil {
			return true
		}
		if err != nil {
			log.Printf("Throttle: redis GET failed for %s: %v (checking in-memory)", key, err)
			return nt.shouldSendInMemory(key)
		}
		return false
	}
	return nt.shouldSendInMemory(key)
}

func (nt *NotificationThrottle) shouldSendInMemory(key string) bool {
	val, ok := nt.memory.Load(key)
	if !ok {
		return true
	}
	entry := val.(*throttleEntry)
	return nt.now().After(entry.ExpiresAt)
}

// MarkSent starts the cooldown window for the key.
func (nt *NotificationThrottle) MarkSent(key string) {
	sentAt := nt.now().UTC()

	if nt.getMode() == ThrottleModeRedis {
		ctx, cancel := context.WithTimeout(nt.redisCtx, 2*time.Second)
		defer cancel()

		err := nt.redis.Set(ctx, key, sentAt.Format(time.RFC3339), nt.window).Err()
		if err == nil {
			return
		}
		log.Printf("Throttle: redis SET failed for %s: %v (falling back to in-memory)", key, err)
	}

	nt.memory.Store(key, &throttleEntry{
		SentAt:    sentAt,
		ExpiresAt: sentAt.Add(nt.window),
	})
}

// ClearForAlert drops every throttle record matching the alert's type and
// sensor, regardless of channel or recipient, so a recurrence of a
// dismissed incident notifies immediately.
func (nt *NotificationThrottle) ClearForAlert(alertType models.AlertType, sensorID string) {
	pattern := fmt.Sprintf("throttle:*:%s:%s:*", alertType, sensorID)
	infix := fmt.Sprintf(":%s:%s:", alertType, sensorID)

	if nt.getMode() == ThrottleModeRedis {
		ctx, cancel := context.WithTimeout(nt.redisCtx, 5*time.Second)
		defer cancel()

		iter := nt.redis.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			nt.redis.Del(ctx, iter.Val())
		}
		if err := iter.Err(); err != nil {
			log.Printf("Throttle: redis SCAN failed for %s: %v", pattern, err)
		}
	}

	// Always sweep the in-memory fallback as well.
	nt.memory.Range(func(key, _ interface{}) bool {
		if strings.Contains(key.(string), infix) {
			nt.memory.Delete(key)
		}
		return true
	})
}
