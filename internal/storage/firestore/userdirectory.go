package firestore

import (
	"context"
	"log/slog"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"

	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
)

// DefaultUsersCollection is the root collection holding user documents.
const DefaultUsersCollection = "users"

// UserDirectory implements dispatch.UserDirectory on Google Cloud Firestore.
type UserDirectory struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
}

func NewUserDirectory(client *firestore.Client, collection string, logger *slog.Logger) *UserDirectory {
	if collection == "" {
		collection = DefaultUsersCollection
	}
	return &UserDirectory{
		client:     client,
		collection: collection,
		logger:     logger.With("component", "FirestoreUserDirectory"),
	}
}

// userDocument is the slice of the user document we read. Other fields are ignored.
type userDocument struct {
	PromoCode string `firestore:"promoCode"`
	FCMToken  string `firestore:"fcmToken,omitempty"`
}

// QueryByPromoCode runs an equality query on promoCode and drains the full result set.
func (d *UserDirectory) QueryByPromoCode(ctx context.Context, code string) ([]dispatch.UserRecord, error) {
	iter := d.client.Collection(d.collection).Where("promoCode", "==", code).Documents(ctx)
	defer iter.Stop()

	users := make([]dispatch.UserRecord, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "firestore query on %s failed", d.collection)
		}

		var record userDocument
		if err := doc.DataTo(&record); err != nil {
			// e.g. fcmToken stored as a non-string; the rest of the set is still usable
			d.logger.Warn("Skipping unreadable user document", "doc_id", doc.Ref.ID, "err", err)
			continue
		}

		users = append(users, dispatch.UserRecord{
			ID:        doc.Ref.ID,
			PromoCode: record.PromoCode,
			FCMToken:  record.FCMToken,
		})
	}

	return users, nil
}
