package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	stationsCollection       = "stations"
	fixesCollection          = "stations_fix"
	providersCollection      = "providers"
	clusterControlCollection = "stations_clusters"
)

// MongoStore backs Store with a MongoDB database: one `stations`
// collection, one dynamically-named collection per station's measurement
// stream, `stations_fix`, and `providers`.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and verifies connectivity with Ping, following the
// mongo-driver idiom used elsewhere in the retrieved example pack
// (mongo.Connect + options.Client().ApplyURI + Ping against the primary).
func Connect(ctx context.Context, uri, dbName string, timeout time.Duration) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("store: ensure indexes: %w", err)
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping reports whether the database is reachable, used by the readiness
// endpoint.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	stations := s.db.Collection(stationsCollection)
	_, err := stations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "loc", Value: "2dsphere"}}},
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "pv-code", Value: 1},
			{Key: "short", Value: 1},
			{Key: "name", Value: 1},
		}},
	})
	return err
}

// stationDoc mirrors store.Station's Mongo document shape.
type stationDoc struct {
	ID           string           `bson:"_id"`
	ProviderID   string           `bson:"pv-id"`
	ProviderCode string           `bson:"pv-code"`
	ProviderName string           `bson:"pv-name"`
	ShortName    string           `bson:"short"`
	Name         string           `bson:"name"`
	Altitude     int              `bson:"alt"`
	IsPeak       bool             `bson:"peak"`
	Loc          geoPoint         `bson:"loc"`
	Status       string           `bson:"status"`
	CountryCode  string           `bson:"country,omitempty"`
	Timezone     string           `bson:"tz"`
	URLs         map[string]string `bson:"urls"`
	LastSeenAt   time.Time        `bson:"last_seen_at"`
	Last         *measurementDoc  `bson:"last,omitempty"`
	Clusters     []int            `bson:"clusters"`
	Duplicates   *duplicatesDoc   `bson:"duplicates,omitempty"`
}

type geoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

type duplicatesDoc struct {
	Stations        []string `bson:"stations"`
	Rating          int      `bson:"rating"`
	IsHighestRating bool     `bson:"is_highest_rating"`
}

type measurementDoc struct {
	ID          int64    `bson:"_id"`
	Time        time.Time `bson:"time"`
	ReceivedAt  time.Time `bson:"received_at"`
	WindDir     int      `bson:"w-dir"`
	WindAvg     float64  `bson:"w-avg"`
	WindMax     float64  `bson:"w-max"`
	Temperature *float64 `bson:"temperature,omitempty"`
	Humidity    *float64 `bson:"humidity,omitempty"`
	Pressure    *pressureDoc `bson:"pressure,omitempty"`
	Rain        *float64 `bson:"rain,omitempty"`
}

type pressureDoc struct {
	QFE *float64 `bson:"qfe,omitempty"`
	QNH *float64 `bson:"qnh,omitempty"`
	QFF *float64 `bson:"qff,omitempty"`
}

func toStationDoc(s Station) stationDoc {
	var last *measurementDoc
	if s.Last != nil {
		m := toMeasurementDoc(*s.Last)
		last = &m
	}
	var dup *duplicatesDoc
	if s.Duplicates != nil {
		dup = &duplicatesDoc{
			Stations:        s.Duplicates.Stations,
			Rating:          s.Duplicates.Rating,
			IsHighestRating: s.Duplicates.IsHighestRating,
		}
	}
	return stationDoc{
		ID: s.ID, ProviderID: s.ProviderID, ProviderCode: s.ProviderCode,
		ProviderName: s.ProviderName, ShortName: s.ShortName, Name: s.Name,
		Altitude: s.Altitude, IsPeak: s.IsPeak,
		Loc:         geoPoint{Type: "Point", Coordinates: []float64{s.Location.Lon, s.Location.Lat}},
		Status:      string(s.Status), CountryCode: s.CountryCode, Timezone: s.Timezone,
		URLs: s.URLs, LastSeenAt: s.LastSeenAt, Last: last,
		Clusters: s.Clusters, Duplicates: dup,
	}
}

func fromStationDoc(d stationDoc) Station {
	var last *Measurement
	if d.Last != nil {
		m := fromMeasurementDoc(*d.Last)
		last = &m
	}
	var dup *DuplicateInfo
	if d.Duplicates != nil {
		dup = &DuplicateInfo{Stations: d.Duplicates.Stations, Rating: d.Duplicates.Rating, IsHighestRating: d.Duplicates.IsHighestRating}
	}
	lon, lat := 0.0, 0.0
	if len(d.Loc.Coordinates) == 2 {
		lon, lat = d.Loc.Coordinates[0], d.Loc.Coordinates[1]
	}
	return Station{
		ID: d.ID, ProviderID: d.ProviderID, ProviderCode: d.ProviderCode,
		ProviderName: d.ProviderName, ShortName: d.ShortName, Name: d.Name,
		Altitude: d.Altitude, IsPeak: d.IsPeak, Location: Point{Lat: lat, Lon: lon},
		Status: Status(d.Status), CountryCode: d.CountryCode, Timezone: d.Timezone,
		URLs: d.URLs, LastSeenAt: d.LastSeenAt, Last: last, Clusters: d.Clusters, Duplicates: dup,
	}
}

func toMeasurementDoc(m Measurement) measurementDoc {
	var p *pressureDoc
	if m.Pressure != nil {
		p = &pressureDoc{QFE: m.Pressure.QFE, QNH: m.Pressure.QNH, QFF: m.Pressure.QFF}
	}
	return measurementDoc{
		ID: m.ID, Time: m.Time, ReceivedAt: m.ReceivedAt,
		WindDir: m.WindDir, WindAvg: m.WindAvg, WindMax: m.WindMax,
		Temperature: m.Temperature, Humidity: m.Humidity, Pressure: p, Rain: m.Rain,
	}
}

func fromMeasurementDoc(d measurementDoc) Measurement {
	var p *Pressure
	if d.Pressure != nil {
		p = &Pressure{QFE: d.Pressure.QFE, QNH: d.Pressure.QNH, QFF: d.Pressure.QFF}
	}
	return Measurement{
		ID: d.ID, Time: d.Time, ReceivedAt: d.ReceivedAt,
		WindDir: d.WindDir, WindAvg: d.WindAvg, WindMax: d.WindMax,
		Temperature: d.Temperature, Humidity: d.Humidity, Pressure: p, Rain: d.Rain,
	}
}

func (s *MongoStore) GetStation(ctx context.Context, id string) (Station, bool, error) {
	var doc stationDoc
	err := s.db.Collection(stationsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Station{}, false, nil
	}
	if err != nil {
		return Station{}, false, fmt.Errorf("store: get station: %w", err)
	}
	return fromStationDoc(doc), true, nil
}

func (s *MongoStore) UpsertStation(ctx context.Context, station Station) error {
	doc := toStationDoc(station)
	_, err := s.db.Collection(stationsCollection).ReplaceOne(ctx,
		bson.M{"_id": station.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store: upsert station: %w", err)
	}

	stream := s.db.Collection(station.ID)
	_, err = stream.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "time", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(10 * 24 * time.Hour / time.Second)),
	})
	return err
}

func (s *MongoStore) DeleteStation(ctx context.Context, id string) error {
	_, err := s.db.Collection(stationsCollection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) ListStations(ctx context.Context, filter StationFilter) ([]Station, error) {
	query := bson.M{}
	if filter.ExcludeHidden {
		query["status"] = bson.M{"$ne": string(StatusHidden)}
	}
	if filter.MeasuredSince != nil {
		query["last.time"] = bson.M{"$gte": *filter.MeasuredSince}
	}
	if filter.ProviderCode != "" {
		query["pv-code"] = filter.ProviderCode
	}
	if filter.LastSeenBefore != nil {
		query["last_seen_at"] = bson.M{"$lt": *filter.LastSeenBefore}
	}

	cursor, err := s.db.Collection(stationsCollection).Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list stations: %w", err)
	}
	defer cursor.Close(ctx)

	var stations []Station
	for cursor.Next(ctx) {
		var doc stationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("store: decode station: %w", err)
		}
		stations = append(stations, fromStationDoc(doc))
	}
	return stations, cursor.Err()
}

func (s *MongoStore) BulkWriteStationFields(ctx context.Context, updates []StationFieldUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(updates))
	for _, u := range updates {
		set := bson.M{}
		if u.Clusters != nil {
			set["clusters"] = u.Clusters
		}
		if u.Duplicates != nil {
			set["duplicates"] = duplicatesDoc{
				Stations: u.Duplicates.Stations, Rating: u.Duplicates.Rating,
				IsHighestRating: u.Duplicates.IsHighestRating,
			}
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": u.StationID}).
			SetUpdate(bson.M{"$set": set}))
	}
	_, err := s.db.Collection(stationsCollection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("store: bulk write station fields: %w", err)
	}
	return nil
}

func (s *MongoStore) HasMeasure(ctx context.Context, stationID string, ts int64) (bool, error) {
	count, err := s.db.Collection(stationID).CountDocuments(ctx, bson.M{"_id": ts})
	if err != nil {
		return false, fmt.Errorf("store: has measure: %w", err)
	}
	return count > 0, nil
}

func (s *MongoStore) InsertMeasures(ctx context.Context, stationID string, measures []Measurement) (int, error) {
	if len(measures) == 0 {
		return 0, nil
	}
	docs := make([]any, len(measures))
	for i, m := range measures {
		docs[i] = toMeasurementDoc(m)
	}
	result, err := s.db.Collection(stationID).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		// Unordered inserts still return partial success alongside duplicate
		// key errors; count what actually landed.
		if bwe, ok := err.(mongo.BulkWriteException); ok {
			return len(docs) - len(bwe.WriteErrors), nil
		}
		return 0, fmt.Errorf("store: insert measures: %w", err)
	}
	return len(result.InsertedIDs), nil
}

func (s *MongoStore) LatestMeasure(ctx context.Context, stationID string) (Measurement, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	var doc measurementDoc
	err := s.db.Collection(stationID).FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Measurement{}, false, nil
	}
	if err != nil {
		return Measurement{}, false, fmt.Errorf("store: latest measure: %w", err)
	}
	return fromMeasurementDoc(doc), true, nil
}

func (s *MongoStore) DropStream(ctx context.Context, stationID string) error {
	return s.db.Collection(stationID).Drop(ctx)
}

func (s *MongoStore) GetFixOverride(ctx context.Context, stationID string) (FixOverride, bool, error) {
	var doc fixDoc
	err := s.db.Collection(fixesCollection).FindOne(ctx, bson.M{"_id": stationID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return FixOverride{}, false, nil
	}
	if err != nil {
		return FixOverride{}, false, fmt.Errorf("store: get fix override: %w", err)
	}
	return fromFixDoc(doc), true, nil
}

type fixDoc struct {
	ID        string             `bson:"_id"`
	Short     *string            `bson:"short,omitempty"`
	Name      *string            `bson:"name,omitempty"`
	Alt       *int               `bson:"alt,omitempty"`
	Peak      *bool              `bson:"peak,omitempty"`
	Latitude  *float64           `bson:"latitude,omitempty"`
	Longitude *float64           `bson:"longitude,omitempty"`
	Measures  map[string]float64 `bson:"measures,omitempty"`
}

func fromFixDoc(d fixDoc) FixOverride {
	return FixOverride{
		StationID: d.ID, Short: d.Short, Name: d.Name, Alt: d.Alt, Peak: d.Peak,
		Latitude: d.Latitude, Longitude: d.Longitude, Measures: d.Measures,
	}
}

func (s *MongoStore) UpsertProviderSeen(ctx context.Context, code, name, url string, now time.Time) error {
	_, err := s.db.Collection(providersCollection).UpdateOne(ctx,
		bson.M{"_id": code},
		bson.M{
			"$set":         bson.M{"name": name, "url": url, "last_seen_at": now},
			"$setOnInsert": bson.M{"first_seen_at": now},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store: upsert provider: %w", err)
	}
	return nil
}

func (s *MongoStore) SetClusterControl(ctx context.Context, ctrl ClusterControl) error {
	_, err := s.db.Collection(clusterControlCollection).UpdateOne(ctx,
		bson.M{"_id": "control"},
		bson.M{"$set": bson.M{"min": ctrl.Min, "max": ctrl.Max}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store: set cluster control: %w", err)
	}
	return nil
}
