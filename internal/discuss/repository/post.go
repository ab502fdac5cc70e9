package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codearena/internal/discuss/model"
	pkgrepo "codearena/pkg/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const PostCollection = "posts"

var (
	ErrPostNotFound = errors.New("post not found")
	ErrInvalidID    = errors.New("invalid post id")
)

type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id string) (*model.Post, error)
	List(ctx context.Context, opts pkgrepo.ListOptions) ([]model.Post, int64, error)
	AddComment(ctx context.Context, id string, comment model.Comment) (*model.Post, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]model.PostSummary, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
}

// MongoPostRepository stores posts with their comments embedded.
type MongoPostRepository struct {
	col *mongo.Collection
}

func NewPostRepository(col *mongo.Collection) *MongoPostRepository {
	return &MongoPostRepository{col: col}
}

// EnsureIndexes creates the indexes used by listing queries.
func (r *MongoPostRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create post indexes failed: %w", err)
	}
	return nil
}

func (r *MongoPostRepository) Create(ctx context.Context, post *model.Post) error {
	if post == nil {
		return errors.New("post is nil")
	}
	now := time.Now().UTC()
	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	post.CreatedAt, post.UpdatedAt = now, now
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if post.Comments == nil {
		post.Comments = []model.Comment{}
	}
	_, err := r.col.InsertOne(ctx, post)
	return err
}

func (r *MongoPostRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	var post model.Post
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&post); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// List returns posts newest first. Unpaged options return every post.
func (r *MongoPostRepository) List(ctx context.Context, opts pkgrepo.ListOptions) ([]model.Post, int64, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Paged {
		findOpts.SetSkip(int64(opts.Offset)).SetLimit(int64(opts.Limit))
	}
	cur, err := r.col.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	posts := make([]model.Post, 0)
	if err := cur.All(ctx, &posts); err != nil {
		return nil, 0, err
	}
	if !opts.Paged {
		return posts, int64(len(posts)), nil
	}
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *MongoPostRepository) AddComment(ctx context.Context, id string, comment model.Comment) (*model.Post, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		"$push": bson.M{"comments": comment},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var post model.Post
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&post); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

func (r *MongoPostRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]model.PostSummary, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetProjection(bson.M{"_id": 1, "title": 1, "tags": 1, "created_at": 1})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var posts []model.Post
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	return Summaries(posts), nil
}

func (r *MongoPostRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"user_id": userID})
}

// Summaries converts posts to their profile form.
func Summaries(posts []model.Post) []model.PostSummary {
	out := make([]model.PostSummary, 0, len(posts))
	for _, p := range posts {
		out = append(out, model.PostSummary{
			ID:        p.ID.Hex(),
			Title:     p.Title,
			Tags:      p.Tags,
			CreatedAt: p.CreatedAt,
		})
	}
	return out
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

var _ PostRepository = (*MongoPostRepository)(nil)
