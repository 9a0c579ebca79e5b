package billing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/axle/pkg/async"
)

// PayloadStore archives raw webhook payloads out of band. *storage.S3Client
// satisfies it.
type PayloadStore interface {
	ArchivePayload(ctx context.Context, eventID string, payload []byte) (string, error)
}

const archiveTimeout = 30 * time.Second

// Archiver ships accepted webhook payloads to object storage after the
// ledger commit. Archival is best effort: a failed upload is logged and
// never surfaces to the provider, which would otherwise retry a delivery
// we already applied.
type Archiver struct {
	store PayloadStore
	log   *logrus.Logger
}

// NewArchiver creates an archiver backed by store.
func NewArchiver(store PayloadStore, log *logrus.Logger) *Archiver {
	if log == nil {
		log = logrus.New()
	}
	return &Archiver{store: store, log: log}
}

// Archive uploads one payload asynchronously. The upload runs detached
// from the request context so in-flight work survives the HTTP response.
func (a *Archiver) Archive(eventID string, payload []byte) {
	body := make([]byte, len(payload))
	copy(body, payload)

	async.SafeGo(context.Background(), archiveTimeout, "webhook payload archive", func(ctx context.Context) error {
		key, err := a.store.ArchivePayload(ctx, eventID, body)
		if err != nil {
			a.log.WithError(err).WithField("event_id", eventID).Error("failed to archive webhook payload")
			return nil
		}
		a.log.WithFields(logrus.Fields{
			"event_id":    eventID,
			"archive_key": key,
		}).Debug("archived webhook payload")
		return nil
	})
}
