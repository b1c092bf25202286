package mgo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	mgo "PPulse/data/database/mgo/mongoutil"
	"PPulse/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
)

type MongoManager struct {
	mu        sync.RWMutex
	client    *mgo.Client
	readyCh   chan struct{} // closed once on first successful connect
	readyOnce sync.Once

	lastErr atomic.Value // error
}

var globalMgr = MongoManager{readyCh: make(chan struct{})}

// StartAsync runs until ctx is done: connect with backoff, then a health
// loop; on persistent ping failures it drops the client and reconnects.
func StartAsync(ctx context.Context, cfg *mgo.Config) {
	go func() {
		const (
			baseBackoff = 200 * time.Millisecond
			maxBackoff  = 5 * time.Second
			healthEvery = 10 * time.Second
			failThresh  = 3
		)

		for {
			attempt := 0
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				cli, err := mgo.NewMongoDB(ctx, cfg)
				if err == nil {
					globalMgr.mu.Lock()
					globalMgr.client = cli
					globalMgr.mu.Unlock()
					globalMgr.readyOnce.Do(func() { close(globalMgr.readyCh) })
					break
				}

				globalMgr.lastErr.Store(err)
				backoff := baseBackoff << attempt
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				timer := time.NewTimer(backoff)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				if attempt < 6 {
					attempt++
				}
			}

			fail := 0
			ticker := time.NewTicker(healthEvery)
			healthy := true
			for healthy {
				select {
				case <-ctx.Done():
					ticker.Stop()
					globalMgr.dropClient()
					return
				case <-ticker.C:
					globalMgr.mu.RLock()
					c := globalMgr.client
					globalMgr.mu.RUnlock()
					if c == nil {
						healthy = false
						break
					}
					if err := c.GetDB().Client().Ping(ctx, nil); err != nil {
						fail++
						globalMgr.lastErr.Store(err)
						if fail >= failThresh {
							globalMgr.dropClient()
							healthy = false
						}
					} else {
						fail = 0
					}
				}
			}
			ticker.Stop()
		}
	}()
}

func (m *MongoManager) dropClient() {
	m.mu.Lock()
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
		m.client = nil
	}
	m.mu.Unlock()
}

// Ready is closed on the first successful connect.
func Ready() <-chan struct{} {
	return globalMgr.readyCh
}

// WaitReady blocks until the first connect or ctx expiry.
func WaitReady(ctx context.Context) error {
	select {
	case <-Ready():
		return nil
	case <-ctx.Done():
		return errs.Wrap(ctx.Err(), "mongo not ready")
	}
}

func GetDB() *mongo.Database {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.client == nil {
		return nil
	}
	return globalMgr.client.GetDB()
}
