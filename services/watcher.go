package services

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"aquamon/models"
)

// ReadingWatcher tails the readings collection change stream and feeds
// each new reading's timestamp into the connectivity service, so the
// monitor's fast-path liveness check stays current without polling.
// Stream failures reopen with exponential backoff capped at a minute.
type ReadingWatcher struct {
	mongo        *MongoDBService
	connectivity *ConnectivityService

	maxBackoff time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
	running    bool
}

func NewReadingWatcher(mongo *MongoDBService, connectivity *ConnectivityService) *ReadingWatcher {
	return &ReadingWatcher{
		mongo:        mongo,
		connectivity: connectivity,
		maxBackoff:   60 * time.Second,
		done:         make(chan struct{}),
	}
}

func (w *ReadingWatcher) Start() {
	if w.running || !w.mongo.Enabled() {
		return
	}
	w.running = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go func() {
		defer close(w.done)
		log.Println("ReadingWatcher: started")

		backoff := time.Second
		for ctx.Err() == nil {
			if err := w.watch(ctx); err != nil && ctx.Err() == nil {
				log.Printf("ReadingWatcher: stream closed: %v (reopening in %s)", err, backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				backoff *= 2
				if backoff > w.maxBackoff {
					backoff = w.maxBackoff
				}
				continue
			}
			backoff = time.Second
		}
	}()
}

func (w *ReadingWatcher) Stop() {
	if !w.running {
		return
	}
	w.running = false
	w.cancel()
	<-w.done
	log.Println("ReadingWatcher: stopped")
}

func (w *ReadingWatcher) watch(ctx context.Context) error {
	stream, err := w.mongo.WatchReadings(ctx)
	if err != nil {
		return err
	}
	defer stream.Close(ctx)

	for stream.Next(ctx) {
		var event struct {
			FullDocument bson.M `bson:"fullDocument"`
		}
		if err := stream.Decode(&event); err != nil {
			log.Printf("ReadingWatcher: decode failed: %v", err)
			continue
		}
		w.noteEvent(event.FullDocument)
	}
	return stream.Err()
}

func (w *ReadingWatcher) noteEvent(doc bson.M) {
	if doc == nil {
		return
	}
	reading, err := models.NormalizeReading(doc)
	if err != nil {
		// Readings without a resolvable id or timestamp are ignored;
		// the monitor's slow path will still see them if queryable.
		return
	}
	w.connectivity.NoteReading(reading.SensorID, reading.Timestamp)
}
