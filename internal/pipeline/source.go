package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RawPost is a scraped post waiting to be summarized and classified.
type RawPost struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PostID       string             `bson:"post_id" json:"post_id"`
	Platform     string             `bson:"platform" json:"platform"`
	Author       string             `bson:"author" json:"author"`
	URL          string             `bson:"url" json:"url"`
	Text         string             `bson:"text" json:"text"`
	Caption      string             `bson:"caption" json:"caption"`
	Transcript   string             `bson:"transcript" json:"transcript"`
	PlayCount    int64              `bson:"play_count" json:"play_count"`
	LikeCount    int64              `bson:"like_count" json:"like_count"`
	ShareCount   int64              `bson:"share_count" json:"share_count"`
	CommentCount int64              `bson:"comment_count" json:"comment_count"`
	PublishedAt  *time.Time         `bson:"published_at,omitempty" json:"published_at"`
	Processed    bool               `bson:"processed" json:"processed"`
	ProcessedAt  *time.Time         `bson:"processed_at,omitempty" json:"processed_at"`
	Attempts     int                `bson:"attempts,omitempty" json:"attempts"`
	Failed       bool               `bson:"failed,omitempty" json:"failed"`
	LastError    string             `bson:"last_error,omitempty" json:"last_error,omitempty"`
}

// Key identifies the post to MarkProcessed.
func (p RawPost) Key() string {
	return p.ID.Hex()
}

// ExternalID is the platform id, falling back to the document id.
func (p RawPost) ExternalID() string {
	if p.PostID != "" {
		return p.PostID
	}
	return p.Key()
}

// Content joins text, caption and transcript, skipping empty parts.
func (p RawPost) Content() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Text, p.Caption, p.Transcript} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Failure is a post that could not be processed in a run. Permanent
// failures are never fetched again.
type Failure struct {
	ID        string
	Reason    string
	Permanent bool
}

type Source interface {
	Fetch(ctx context.Context, limit int) ([]RawPost, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, failures []Failure) error
}

// DefaultMaxAttempts is used when MongoSource gets a non-positive limit.
const DefaultMaxAttempts = 3

type MongoSource struct {
	coll        *mongo.Collection
	maxAttempts int
	now         func() time.Time
}

// NewMongoSource reads posts from coll. A post that failed maxAttempts
// times is flagged failed and skipped from then on.
func NewMongoSource(coll *mongo.Collection, maxAttempts int) *MongoSource {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &MongoSource{coll: coll, maxAttempts: maxAttempts, now: time.Now}
}

// Posts inserted without the flags count as pending.
func pendingFilter() bson.M {
	return bson.M{
		"processed": bson.M{"$ne": true},
		"failed":    bson.M{"$ne": true},
	}
}

// Fresh posts sort before retried ones so a run of failures can't hold
// back the rest of the backlog.
func fetchOptions(limit int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "attempts", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
}

func processedUpdate(now time.Time) bson.M {
	return bson.M{"$set": bson.M{"processed": true, "processed_at": now.UTC()}}
}

func failureModels(oid primitive.ObjectID, f Failure, maxAttempts int) []mongo.WriteModel {
	set := bson.M{"last_error": f.Reason}
	if f.Permanent {
		set["failed"] = true
	}
	return []mongo.WriteModel{
		mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": oid}).
			SetUpdate(bson.M{"$inc": bson.M{"attempts": 1}, "$set": set}),
		mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": oid, "attempts": bson.M{"$gte": maxAttempts}}).
			SetUpdate(bson.M{"$set": bson.M{"failed": true}}),
	}
}

// Fetch returns up to limit pending posts, least attempted first.
func (s *MongoSource) Fetch(ctx context.Context, limit int) ([]RawPost, error) {
	cursor, err := s.coll.Find(ctx, pendingFilter(), fetchOptions(limit))
	if err != nil {
		return nil, fmt.Errorf("find raw posts: %w", err)
	}
	var posts []RawPost
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("decode raw posts: %w", err)
	}
	return posts, nil
}

func (s *MongoSource) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	oids, err := objectIDs(ids)
	if err != nil {
		return err
	}

	_, err = s.coll.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": oids}}, processedUpdate(s.now()))
	if err != nil {
		return fmt.Errorf("mark posts processed: %w", err)
	}
	return nil
}

// MarkFailed counts one more attempt for each post and flags the ones
// that are permanent or out of attempts.
func (s *MongoSource) MarkFailed(ctx context.Context, failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, 2*len(failures))
	for _, f := range failures {
		oid, err := primitive.ObjectIDFromHex(f.ID)
		if err != nil {
			return fmt.Errorf("invalid post id %q: %w", f.ID, err)
		}
		writes = append(writes, failureModels(oid, f, s.maxAttempts)...)
	}

	// Ordered so each attempts check sees its own increment.
	if _, err := s.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("mark posts failed: %w", err)
	}
	return nil
}

func objectIDs(ids []string) ([]primitive.ObjectID, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid post id %q: %w", id, err)
		}
		oids = append(oids, oid)
	}
	return oids, nil
}
