package search

import (
	"context"

	"github.com/pkg/errors"

	"example.com/fasttrack/services/delivery/internal/models"
)

// noteGetter loads one delivery note by its business number.
type noteGetter interface {
	GetByNumber(ctx context.Context, dn string) (*models.DeliveryNote, error)
}

// NoteIndexer resolves a DN number to its note and indexes it. It sits
// between the reconciliation writer and the Elasticsearch client.
type NoteIndexer struct {
	client *ElasticClient
	notes  noteGetter
}

// NewNoteIndexer creates a new note indexer
func NewNoteIndexer(client *ElasticClient, notes noteGetter) *NoteIndexer {
	return &NoteIndexer{client: client, notes: notes}
}

// IndexDeliveryNote loads the note and pushes it into the search index.
func (i *NoteIndexer) IndexDeliveryNote(ctx context.Context, dn string) error {
	note, err := i.notes.GetByNumber(ctx, dn)
	if err != nil {
		return errors.Wrap(err, "failed to load delivery note for indexing")
	}
	return i.client.IndexNote(ctx, note)
}
