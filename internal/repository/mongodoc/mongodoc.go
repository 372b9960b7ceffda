// Package mongodoc stores the rich API document mirror. The relational
// row is authoritative; documents here are enrichment and never arbitrate
// a conflict.
package mongodoc

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nabilpatel4012/smaapi/internal/domain"
	"github.com/nabilpatel4012/smaapi/internal/repository"
)

const collectionName = "api_documents"

// Repository implements the document mirror on MongoDB.
type Repository struct {
	coll *mongo.Collection
}

// New constructs a Repository over the given database handle.
func New(db *mongo.Database) *Repository {
	return &Repository{coll: db.Collection(collectionName)}
}

var _ repository.APIDocumentRepository = (*Repository)(nil)

func filterFor(ownerID, apiID string) bson.M {
	return bson.M{"api_id": apiID, "owner_user_id": ownerID, "is_deleted": false}
}

// InsertAPIDocument stores a freshly mirrored document.
func (r *Repository) InsertAPIDocument(ctx context.Context, doc *domain.APIDocument) error {
	if doc.Versions == nil {
		doc.Versions = []domain.VersionSnapshot{}
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert api document: %w", err)
	}
	return nil
}

// GetAPIDocument fetches the mirror for an API owned by the caller.
func (r *Repository) GetAPIDocument(ctx context.Context, ownerID, apiID string) (*domain.APIDocument, error) {
	var doc domain.APIDocument
	err := r.coll.FindOne(ctx, filterFor(ownerID, apiID)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find api document: %w", err)
	}
	return &doc, nil
}

// UpdateAPIDocument applies new field values and, when snapshot is set,
// appends it to the version history in the same write.
func (r *Repository) UpdateAPIDocument(ctx context.Context, ownerID, apiID string, doc *domain.APIDocument, snapshot *domain.VersionSnapshot) error {
	update := bson.M{
		"$set": bson.M{
			"name":           doc.Name,
			"http_method":    doc.HTTPMethod,
			"endpoint_path":  doc.EndpointPath,
			"description":    doc.Description,
			"version_number": doc.VersionNumber,
			"status":         doc.Status,
			"body_schema":    doc.BodySchema,
			"query_schema":   doc.QuerySchema,
			"filters":        doc.Filters,
		},
	}
	if snapshot != nil {
		update["$push"] = bson.M{"versions": snapshot}
	}
	res, err := r.coll.UpdateOne(ctx, filterFor(ownerID, apiID), update)
	if err != nil {
		return fmt.Errorf("update api document: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateDocumentStatus flips only the lifecycle state.
func (r *Repository) UpdateDocumentStatus(ctx context.Context, ownerID, apiID, status string) error {
	res, err := r.coll.UpdateOne(ctx, filterFor(ownerID, apiID), bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetContainerInstance records or clears the container runtime details.
func (r *Repository) SetContainerInstance(ctx context.Context, ownerID, apiID string, instance *domain.ContainerInstance) error {
	var update bson.M
	if instance == nil {
		update = bson.M{"$unset": bson.M{"container": ""}}
	} else {
		update = bson.M{"$set": bson.M{"container": instance}}
	}
	res, err := r.coll.UpdateOne(ctx, filterFor(ownerID, apiID), update)
	if err != nil {
		return fmt.Errorf("set container instance: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SoftDeleteAPIDocument mirrors the relational soft delete, including the
// uniquifying path rewrite.
func (r *Repository) SoftDeleteAPIDocument(ctx context.Context, ownerID, apiID, suffixedPath string) error {
	res, err := r.coll.UpdateOne(ctx, filterFor(ownerID, apiID), bson.M{
		"$set": bson.M{"is_deleted": true, "endpoint_path": suffixedPath},
	})
	if err != nil {
		return fmt.Errorf("soft delete api document: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ReplaceAPIDocument upserts the full document, used by resync to force
// the mirror back onto relational truth.
func (r *Repository) ReplaceAPIDocument(ctx context.Context, doc *domain.APIDocument) error {
	filter := bson.M{"api_id": doc.APIID, "owner_user_id": doc.OwnerUserID}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("replace api document: %w", err)
	}
	return nil
}
