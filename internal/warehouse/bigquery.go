package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/BartekS5/sql2bq/pkg/logger"
	"github.com/BartekS5/sql2bq/pkg/models"
)

var _ Warehouse = (*BigQuery)(nil)

// BigQuery loads files with load jobs. A WRITE_TRUNCATE job swaps the table
// contents atomically, so readers never observe a partial load.
type BigQuery struct {
	client  *bigquery.Client
	project string
	dataset string

	// Optional staging through Cloud Storage; nil loads straight from disk.
	gcs    *storage.Client
	bucket string
	prefix string
}

// NewBigQuery creates the BigQuery client and, when a bucket is configured,
// the Cloud Storage client used for staging.
func NewBigQuery(ctx context.Context, opts Options) (*BigQuery, error) {
	if opts.ProjectID == "" || opts.Dataset == "" {
		return nil, fmt.Errorf("bigquery project and dataset are required")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithAuthCredentialsFile(option.ServiceAccount, opts.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, opts.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create BigQuery client: %w", err)
	}
	if opts.Location != "" {
		client.Location = opts.Location
	}

	bq := &BigQuery{
		client:  client,
		project: opts.ProjectID,
		dataset: opts.Dataset,
		bucket:  opts.GCSBucket,
		prefix:  opts.GCSPrefix,
	}
	if opts.GCSBucket != "" {
		gcs, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("create GCS client: %w", err)
		}
		bq.gcs = gcs
	}
	return bq, nil
}

// Load runs one load job and waits for it to finish.
func (b *BigQuery) Load(ctx context.Context, req LoadRequest) (LoadResult, error) {
	datasetID, tableID := splitTableRef(b.dataset, req.Table)
	table := b.client.Dataset(datasetID).Table(tableID)
	ref := fmt.Sprintf("%s.%s.%s", b.project, datasetID, tableID)

	var src bigquery.LoadSource
	if b.gcs != nil {
		uri, cleanup, err := b.stage(ctx, req.Path)
		if err != nil {
			return LoadResult{}, err
		}
		defer cleanup()
		gcsRef := bigquery.NewGCSReference(uri)
		gcsRef.SourceFormat = bigquery.JSON
		gcsRef.Schema = Schema(req.Schema)
		src = gcsRef
	} else {
		f, err := os.Open(req.Path)
		if err != nil {
			return LoadResult{}, fmt.Errorf("open load file: %w", err)
		}
		defer f.Close()
		rs := bigquery.NewReaderSource(f)
		rs.SourceFormat = bigquery.JSON
		rs.Schema = Schema(req.Schema)
		src = rs
	}

	loader := table.LoaderFrom(src)
	configureLoader(loader, req)

	job, err := loader.Run(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("start load job for %s: %w", ref, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("wait for load job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return LoadResult{}, fmt.Errorf("load job %s into %s failed: %w", job.ID(), ref, jobErrors(err, status.Errors))
	}

	var res LoadResult
	if status.Statistics != nil {
		if ls, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			res.RowsLoaded = ls.OutputRows
		}
	}

	md, err := table.Metadata(ctx)
	if err != nil {
		logger.Warnf("Loaded %s but could not read table metadata: %v", ref, err)
		return res, nil
	}
	res.TotalRows = int64(md.NumRows)
	logger.Infof("Total rows in table %s after load: %d", ref, md.NumRows)
	return res, nil
}

func (b *BigQuery) Close() error {
	var errs []error
	if b.gcs != nil {
		errs = append(errs, b.gcs.Close())
	}
	errs = append(errs, b.client.Close())
	return errors.Join(errs...)
}

// stage uploads the file and returns its gs:// URI plus a best-effort cleanup.
func (b *BigQuery) stage(ctx context.Context, localPath string) (string, func(), error) {
	object := path.Join(b.prefix, filepath.Base(localPath))
	f, err := os.Open(localPath)
	if err != nil {
		return "", nil, fmt.Errorf("open load file: %w", err)
	}
	defer f.Close()

	obj := b.gcs.Bucket(b.bucket).Object(object)
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", nil, fmt.Errorf("upload %s to gs://%s/%s: %w", localPath, b.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", nil, fmt.Errorf("upload %s to gs://%s/%s: %w", localPath, b.bucket, object, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", b.bucket, object)
	logger.Infof("Staged load file at %s", uri)
	cleanup := func() {
		if err := obj.Delete(context.Background()); err != nil {
			logger.Warnf("Could not delete staged object %s: %v", uri, err)
		}
	}
	return uri, cleanup, nil
}

// Schema converts destination fields into a BigQuery schema.
func Schema(fields []models.Field) bigquery.Schema {
	schema := make(bigquery.Schema, 0, len(fields))
	for _, f := range fields {
		schema = append(schema, &bigquery.FieldSchema{
			Name:     f.Name,
			Type:     bigquery.FieldType(f.Type),
			Required: f.Required,
		})
	}
	return schema
}

func configureLoader(loader *bigquery.Loader, req LoadRequest) {
	loader.CreateDisposition = bigquery.CreateIfNeeded
	if req.Disposition == Append {
		loader.WriteDisposition = bigquery.WriteAppend
	} else {
		loader.WriteDisposition = bigquery.WriteTruncate
	}
	if req.PartitionField != "" {
		loader.TimePartitioning = &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: req.PartitionField,
		}
	}
}

// splitTableRef lets a destination name carry its own dataset ("dataset.table").
func splitTableRef(defaultDataset, table string) (string, string) {
	if i := strings.LastIndex(table, "."); i > 0 {
		return table[:i], table[i+1:]
	}
	return defaultDataset, table
}

func jobErrors(top error, all []*bigquery.Error) error {
	if len(all) == 0 {
		return top
	}
	errs := []error{top}
	for i, e := range all {
		if i >= 5 {
			errs = append(errs, fmt.Errorf("... %d more", len(all)-i))
			break
		}
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}
