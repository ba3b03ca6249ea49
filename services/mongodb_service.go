package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"aquamon/config"
	"aquamon/models"
)

type MongoDBService struct {
	client  *mongo.Client
	db      *mongo.Database
	enabled bool
}

const (
	CollectionAlerts              = "alerts"
	CollectionAlertHistory        = "alert_history"
	CollectionSensorConfigs       = "sensor_configs"
	CollectionNotificationRecords = "notification_records"
	CollectionAuditLog            = "audit_log"
	CollectionSensorReadings      = "sensor_readings"
	CollectionAdminUsers          = "admin_users"
)

func NewMongoDBService(cfg *config.Config) (*MongoDBService, error) {
	if !cfg.MongoDB.Enabled {
		log.Println("MongoDB is disabled in configuration")
		return &MongoDBService{enabled: false}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.MongoDB.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.MongoDB.Database)

	service := &MongoDBService{
		client:  client,
		db:      db,
		enabled: true,
	}

	if err := service.createIndexes(ctx); err != nil {
		log.Printf("Warning: Failed to create indexes: %v", err)
	}

	log.Printf("MongoDB connected successfully to database: %s", cfg.MongoDB.Database)
	return service, nil
}

func (m *MongoDBService) createIndexes(ctx context.Context) error {
	if !m.enabled {
		return nil
	}

	// Active alerts: the unique partial index backs the one-unresolved-
	// alert-per-(sensor,type) invariant underneath the store's keyed lock.
	_, err := m.db.Collection(CollectionAlerts).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "sensor_id", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().
				SetName("active_sensor_type").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"is_resolved": false,
					"sensor_id":   bson.M{"$type": "string"},
				}),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_desc"),
		},
	})
	if err != nil {
		return err
	}

	// Alert history: by archive time and by sensor
	_, err = m.db.Collection(CollectionAlertHistory).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "archived_at", Value: -1}},
			Options: options.Index().SetName("archived_desc"),
		},
		{
			Keys:    bson.D{{Key: "sensor_id", Value: 1}, {Key: "archived_at", Value: -1}},
			Options: options.Index().SetName("sensor_archived"),
		},
	})
	if err != nil {
		return err
	}

	// Readings: compound index for latest-reading lookups per alias
	_, err = m.db.Collection(CollectionSensorReadings).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sensor_id", Value: 1}, {Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("sensor_timestamp"),
	})
	if err != nil {
		return err
	}

	// Notification records: by throttle key fields
	_, err = m.db.Collection(CollectionNotificationRecords).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "channel", Value: 1},
			{Key: "alert_type", Value: 1},
			{Key: "sensor_id", Value: 1},
			{Key: "sent_at", Value: -1},
		},
		Options: options.Index().SetName("throttle_key"),
	})
	if err != nil {
		return err
	}

	// Audit log: by timestamp
	_, err = m.db.Collection(CollectionAuditLog).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("timestamp_desc"),
	})

	return err
}

func (m *MongoDBService) Close() error {
	if !m.enabled || m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoDBService) Enabled() bool {
	return m.enabled
}

// ============================================
// AlertRepository
// ============================================

func (m *MongoDBService) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if !m.enabled {
		return fmt.Errorf("MongoDB not enabled")
	}
	_, err := m.db.Collection(CollectionAlerts).InsertOne(ctx, alert)
	return err
}

func (m *MongoDBService) FindAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	var alert models.Alert
	err := m.db.Collection(CollectionAlerts).FindOne(ctx, bson.M{"id": id}).Decode(&alert)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (m *MongoDBService) FindActiveAlert(ctx context.Context, sensorID string, alertType models.AlertType) (*models.Alert, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	filter := bson.M{
		"sensor_id":   sensorID,
		"type":        alertType,
		"is_resolved": false,
	}

	var alert models.Alert
	err := m.db.Collection(CollectionAlerts).FindOne(ctx, filter).Decode(&alert)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (m *MongoDBService) ListActiveAlerts(ctx context.Context, f AlertFilter) ([]*models.Alert, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	filter := bson.M{"is_resolved": false}
	if f.Level != "" {
		filter["level"] = f.Level
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.SensorID != "" {
		filter["sensor_id"] = f.SensorID
	}
	if f.MeasurementOnly {
		filter["type"] = bson.M{"$in": models.MeasurementTypes}
	}

	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := m.db.Collection(CollectionAlerts).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var alerts []*models.Alert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (m *MongoDBService) MarkAlertResolved(ctx context.Context, id string, at time.Time) error {
	if !m.enabled {
		return fmt.Errorf("MongoDB not enabled")
	}

	// Compare-and-set on is_resolved so only one of two racing
	// dismissals can win the transition.
	filter := bson.M{"id": id, "is_resolved": false}
	update := bson.M{"$set": bson.M{"is_resolved": true, "status": "resolved"}}
	res, err := m.db.Collection(CollectionAlerts).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (m *MongoDBService) DeleteAlert(ctx context.Context, id string) error {
	if !m.enabled {
		return fmt.Errorf("MongoDB not enabled")
	}
	_, err := m.db.Collection(CollectionAlerts).DeleteOne(ctx, bson.M{"id": id})
	return err
}

func (m *MongoDBService) InsertAlertHistory(ctx context.Context, history *models.AlertHistory) error {
	if !m.enabled {
		return fmt.Errorf("MongoDB not enabled")
	}
	_, err := m.db.Collection(CollectionAlertHistory).InsertOne(ctx, history)
	return err
}

func (m *MongoDBService) ListAlertHistory(ctx context.Context, sensorID string, limit int) ([]*models.AlertHistory, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	filter := bson.M{}
	if sensorID != "" {
		filter["sensor_id"] = sensorID
	}
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().SetSort(bson.M{"archived_at": -1}).SetLimit(int64(limit))
	cursor, err := m.db.Collection(CollectionAlertHistory).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*models.AlertHistory
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ============================================
// ConfigRepository
// ============================================

func (m *MongoDBService) ListEnabledConfigs(ctx context.Context) ([]*models.SensorAlertConfig, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	cursor, err := m.db.Collection(CollectionSensorConfigs).Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var configs []*models.SensorAlertConfig
	if err := cursor.All(ctx, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

func (m *MongoDBService) GetConfig(ctx context.Context, sensorID string) (*models.SensorAlertConfig, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	var cfg models.SensorAlertConfig
	err := m.db.Collection(CollectionSensorConfigs).FindOne(ctx, bson.M{"sensor_id": sensorID}).Decode(&cfg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (m *MongoDBService) UpsertConfig(ctx context.Context, cfg *models.SensorAlertConfig) error {
	if !m.enabled {
		return fmt.Errorf("MongoDB not enabled")
	}

	filter := bson.M{"sensor_id": cfg.SensorID}
	update := bson.M{"$set": cfg}
	opts := options.Update().SetUpsert(true)

	_, err := m.db.Collection(CollectionSensorConfigs).UpdateOne(ctx, filter, update, opts)
	return err
}

// ============================================
// ReadingRepository
// ============================================

// LatestReading finds the most recent reading stored under any of the
// resolved sensor aliases. Documents are decoded raw and normalized so
// historical field-name variants all map to canonical metrics.
func (m *MongoDBService) LatestReading(ctx context.Context, aliases []string) (*models.SensorReading, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}
	if len(aliases) == 0 {
		return nil, nil
	}

	filter := bson.M{"sensor_id": bson.M{"$in": aliases}}
	opts := options.FindOne().SetSort(bson.M{"timestamp": -1})

	var doc bson.M
	err := m.db.Collection(CollectionSensorReadings).FindOne(ctx, filter, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	reading, err := models.NormalizeReading(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize reading: %w", err)
	}
	return reading, nil
}

// WatchReadings opens a change stream over the readings collection for the
// connectivity watcher.
func (m *MongoDBService) WatchReadings(ctx context.Context) (*mongo.ChangeStream, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": "insert"}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	return m.db.Collection(CollectionSensorReadings).Watch(ctx, pipeline, opts)
}

// ============================================
// NotificationRepository / AuditRepository
// ============================================

func (m *MongoDBService) InsertNotificationRecord(ctx context.Context, rec *models.NotificationRecord) error {
	if !m.enabled {
		return fmt.Errorf("MongoDB not enabled")
	}
	_, err := m.db.Collection(CollectionNotificationRecords).InsertOne(ctx, rec)
	return err
}

func (m *MongoDBService) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if !m.enabled {
		return fmt.Errorf("MongoDB not enabled")
	}
	_, err := m.db.Collection(CollectionAuditLog).InsertOne(ctx, entry)
	return err
}

// ============================================
// RecipientDirectory
// ============================================

func (m *MongoDBService) Admins(ctx context.Context) ([]models.Recipient, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	cursor, err := m.db.Collection(CollectionAdminUsers).Find(ctx, bson.M{"role": "admin"})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var admins []models.Recipient
	if err := cursor.All(ctx, &admins); err != nil {
		return nil, err
	}
	return admins, nil
}

func (m *MongoDBService) AdminsForLocation(ctx context.Context, location string) ([]models.Recipient, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}
	if location == "" {
		return nil, nil
	}

	cursor, err := m.db.Collection(CollectionAdminUsers).Find(ctx, bson.M{
		"role":     "admin",
		"location": location,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var admins []models.Recipient
	if err := cursor.All(ctx, &admins); err != nil {
		return nil, err
	}
	return admins, nil
}
