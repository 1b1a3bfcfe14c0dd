// Package mongo implements the session.Store contract (C9) over a MongoDB
// collection, using an atomic $push update for AddRun and proving the
// abstract contract supports a relational/document backend as spec.md's
// reference deployment names.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentkit-go/agentkit/session"
)

// Store is a session.Store backed by a MongoDB collection. Each document's
// _id is the session id.
type Store struct {
	collection *mongo.Collection
}

// New constructs a Store over collection.
func New(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

type runDoc struct {
	RunID     string         `bson:"run_id"`
	Task      string         `bson:"task"`
	Response  string         `bson:"response"`
	Success   bool           `bson:"success"`
	Steps     int            `bson:"steps"`
	Timestamp time.Time      `bson:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
}

type sessionDoc struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id,omitempty"`
	AgentName  string    `bson:"agent_name"`
	CreatedAt  time.Time `bson:"created_at"`
	LastActive time.Time `bson:"last_active"`
	Runs       []runDoc  `bson:"runs"`
}

func toSession(d sessionDoc) session.Session {
	runs := make([]session.RunRecord, 0, len(d.Runs))
	for _, r := range d.Runs {
		runs = append(runs, session.RunRecord{
			RunID: r.RunID, Task: r.Task, Response: r.Response,
			Success: r.Success, Steps: r.Steps, Timestamp: r.Timestamp, Metadata: r.Metadata,
		})
	}
	return session.Session{
		SessionID: d.ID, UserID: d.UserID, AgentName: d.AgentName,
		CreatedAt: d.CreatedAt, LastActive: d.LastActive, Runs: runs,
	}
}

func fromSession(s session.Session) sessionDoc {
	runs := make([]runDoc, 0, len(s.Runs))
	for _, r := range s.Runs {
		runs = append(runs, runDoc{
			RunID: r.RunID, Task: r.Task, Response: r.Response,
			Success: r.Success, Steps: r.Steps, Timestamp: r.Timestamp, Metadata: r.Metadata,
		})
	}
	return sessionDoc{
		ID: s.SessionID, UserID: s.UserID, AgentName: s.AgentName,
		CreatedAt: s.CreatedAt, LastActive: s.LastActive, Runs: runs,
	}
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	var doc sessionDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return session.Session{}, session.ErrSessionNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("mongo: get session: %w", err)
	}
	return toSession(doc), nil
}

func (s *Store) SaveSession(ctx context.Context, sess session.Session) error {
	doc := fromSession(sess)
	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)
	if err != nil {
		return fmt.Errorf("mongo: save session: %w", err)
	}
	return nil
}

// AddRun relies on MongoDB's per-document update atomicity: $push onto the
// runs array and $set on last_active happen as one atomic operation, so
// concurrent writers on the same session id never lose an appended run.
// $setOnInsert seeds created_at only the first time the document is
// created (upsert), never overwriting it on subsequent writes.
func (s *Store) AddRun(ctx context.Context, sessionID string, run session.RunRecord) error {
	doc := runDoc{
		RunID: run.RunID, Task: run.Task, Response: run.Response,
		Success: run.Success, Steps: run.Steps, Timestamp: run.Timestamp, Metadata: run.Metadata,
	}
	update := bson.M{
		"$push":        bson.M{"runs": doc},
		"$set":         bson.M{"last_active": run.Timestamp},
		"$setOnInsert": bson.M{"created_at": run.Timestamp},
	}
	opts := options.UpdateOne().SetUpsert(true)
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": sessionID}, update, opts)
	if err != nil {
		return fmt.Errorf("mongo: add_run: %w", err)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode session id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, cursor.Err()
}

func (s *Store) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	result, err := s.collection.DeleteMany(ctx, bson.M{"last_active": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("mongo: cleanup expired: %w", err)
	}
	return int(result.DeletedCount), nil
}
