package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BigQuerySink eksporterer hendelseshistorikk til BigQuery slik at
// speilkjøringer kan analyseres i ettertid. Valgfri: slås på med
// BQ_PROJECT_ID/BQ_DATASET.
type BigQuerySink struct {
	Client  *bigquery.Client
	Dataset string
}

const eventTable = "mirror_events"

type bgEvent struct {
	Type      string    `bigquery:"type"`
	Tenant    string    `bigquery:"tenant"`
	Repo      string    `bigquery:"repo"`
	Owner     string    `bigquery:"owner"`
	BatchID   string    `bigquery:"batch_id"`
	Completed int       `bigquery:"completed"`
	Total     int       `bigquery:"total"`
	Message   string    `bigquery:"message"`
	EventTime time.Time `bigquery:"event_time"`
}

func NewBigQuerySink(ctx context.Context, projectID, dataset, credentials string) (*BigQuerySink, error) {
	var opts []option.ClientOption
	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("kan ikke opprette BigQuery-klient: %w", err)
	}

	if err := ensureTableExists(ctx, client, dataset, eventTable, bgEvent{}); err != nil {
		return nil, fmt.Errorf("kunne ikke sikre tabell %s: %w", eventTable, err)
	}

	return &BigQuerySink{Client: client, Dataset: dataset}, nil
}

// Emit skriver hendelsen synkront. Eksportfeil skal aldri påvirke
// speilingen, så de logges bare.
func (s *BigQuerySink) Emit(ctx context.Context, ev Event) {
	ev = Stamp(ev)
	row := bgEvent{
		Type:      ev.Type,
		Tenant:    ev.Tenant,
		Repo:      ev.Repo,
		Owner:     ev.Owner,
		BatchID:   ev.BatchID,
		Completed: ev.Completed,
		Total:     ev.Total,
		Message:   ev.Message,
		EventTime: ev.Time,
	}
	inserter := s.Client.Dataset(s.Dataset).Table(eventTable).Inserter()
	if err := inserter.Put(ctx, []bgEvent{row}); err != nil {
		slog.Warn("Kunne ikke eksportere hendelse til BigQuery", "type", ev.Type, "error", err)
	}
}

func (s *BigQuerySink) Close() error {
	return s.Client.Close()
}

func ensureTableExists(ctx context.Context, client *bigquery.Client, dataset, table string, exampleStruct any) error {
	tbl := client.Dataset(dataset).Table(table)
	_, err := tbl.Metadata(ctx)
	if err == nil {
		return nil // tabellen finnes
	}

	if gErr, ok := err.(*googleapi.Error); !ok || gErr.Code != 404 {
		return fmt.Errorf("feil ved henting av tabell-metadata: %w", err)
	}

	schema, err := bigquery.InferSchema(exampleStruct)
	if err != nil {
		return fmt.Errorf("klarte ikke å generere schema for %s: %w", table, err)
	}

	if err := tbl.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return fmt.Errorf("klarte ikke å opprette tabell %s: %w", table, err)
	}

	return nil
}
