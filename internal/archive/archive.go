// Package archive reads pre-generated records from MongoDB. Deployments
// that migrated from earlier releases carry years of scraped records there;
// consulting the archive before scraping live keeps those ids working even
// when the upstream page is gone.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
)

const (
	collectionName = "records"
	lookupTimeout  = 3 * time.Second
)

type Store struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

func NewStore(client *mongo.Client, database string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		collection: client.Database(database).Collection(collectionName),
		logger:     logger,
	}
}

// document is the archived shape: the record itself is kept as its JSON
// encoding so the wire format and the archive format cannot drift apart.
type document struct {
	ResourceID string    `bson:"resource_id"`
	Payload    []byte    `bson:"payload"`
	ArchivedAt time.Time `bson:"archived_at"`
}

// Lookup fetches an archived record by its resource id. A missing document
// is not an error.
func (s *Store) Lookup(ctx context.Context, resourceID string) (domain.MediaRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	var doc document
	err := s.collection.FindOne(ctx, bson.M{"resource_id": resourceID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.MediaRecord{}, false, nil
	}
	if err != nil {
		return domain.MediaRecord{}, false, fmt.Errorf("archive lookup %s: %w", resourceID, err)
	}

	var record domain.MediaRecord
	if err := json.Unmarshal(doc.Payload, &record); err != nil {
		s.logger.Warn("archived record is malformed, ignoring",
			slog.String("resourceId", resourceID),
			slog.String("error", err.Error()),
		)
		return domain.MediaRecord{}, false, nil
	}
	if !record.Success {
		// Old deployments archived failures too; never serve those.
		return domain.MediaRecord{}, false, nil
	}
	return record, true, nil
}
