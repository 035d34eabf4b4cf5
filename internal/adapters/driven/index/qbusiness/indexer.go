package qbusiness

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/qbusiness"
	"github.com/aws/aws-sdk-go-v2/service/qbusiness/types"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
)

// Ensure Indexer implements the interfaces.
var (
	_ driven.Indexer        = (*Indexer)(nil)
	_ driven.JobHistory     = (*Indexer)(nil)
	_ driven.PrincipalStore = (*Indexer)(nil)
)

// MaxBatchSize is the service's per-call document limit.
const MaxBatchSize = 10

// listPageSize is the page size when searching job history.
const listPageSize = 10

// API is the subset of the Q Business client used by the indexer.
type API interface {
	StartDataSourceSyncJob(ctx context.Context, in *qbusiness.StartDataSourceSyncJobInput,
		optFns ...func(*qbusiness.Options)) (*qbusiness.StartDataSourceSyncJobOutput, error)
	StopDataSourceSyncJob(ctx context.Context, in *qbusiness.StopDataSourceSyncJobInput,
		optFns ...func(*qbusiness.Options)) (*qbusiness.StopDataSourceSyncJobOutput, error)
	BatchPutDocument(ctx context.Context, in *qbusiness.BatchPutDocumentInput,
		optFns ...func(*qbusiness.Options)) (*qbusiness.BatchPutDocumentOutput, error)
	BatchDeleteDocument(ctx context.Context, in *qbusiness.BatchDeleteDocumentInput,
		optFns ...func(*qbusiness.Options)) (*qbusiness.BatchDeleteDocumentOutput, error)
	ListDataSourceSyncJobs(ctx context.Context, in *qbusiness.ListDataSourceSyncJobsInput,
		optFns ...func(*qbusiness.Options)) (*qbusiness.ListDataSourceSyncJobsOutput, error)
	PutGroup(ctx context.Context, in *qbusiness.PutGroupInput,
		optFns ...func(*qbusiness.Options)) (*qbusiness.PutGroupOutput, error)
}

// Config identifies the target data source.
type Config struct {
	Region        string
	ApplicationID string
	IndexID       string
	DataSourceID  string

	// RoleARN is passed to uploads when documents are read from S3. Unused
	// for inline content but forwarded when set.
	RoleARN string
}

// Validate checks that the data source is fully identified.
func (c Config) Validate() error {
	switch {
	case c.ApplicationID == "":
		return fmt.Errorf("%w: application id is required", domain.ErrInvalidInput)
	case c.IndexID == "":
		return fmt.Errorf("%w: index id is required", domain.ErrInvalidInput)
	case c.DataSourceID == "":
		return fmt.Errorf("%w: data source id is required", domain.ErrInvalidInput)
	}
	return nil
}

// Indexer implements driven.Indexer on Amazon Q Business.
type Indexer struct {
	api API
	cfg Config
}

// New creates an indexer using the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewWithAPI(qbusiness.NewFromConfig(awsCfg), cfg)
}

// NewWithAPI creates an indexer from an existing client.
func NewWithAPI(api API, cfg Config) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Indexer{api: api, cfg: cfg}, nil
}

// Name identifies the backend.
func (ix *Indexer) Name() string {
	return "qbusiness/" + ix.cfg.ApplicationID + "/" + ix.cfg.IndexID + "/" + ix.cfg.DataSourceID
}

// MaxBatchSize is the per-call document limit.
func (ix *Indexer) MaxBatchSize() int { return MaxBatchSize }

// StartJob starts a data source sync job.
func (ix *Indexer) StartJob(ctx context.Context) (string, error) {
	out, err := ix.api.StartDataSourceSyncJob(ctx, &qbusiness.StartDataSourceSyncJobInput{
		ApplicationId: aws.String(ix.cfg.ApplicationID),
		IndexId:       aws.String(ix.cfg.IndexID),
		DataSourceId:  aws.String(ix.cfg.DataSourceID),
	})
	if err != nil {
		return "", mapError("start sync job", err)
	}
	id := aws.ToString(out.ExecutionId)
	if id == "" {
		return "", fmt.Errorf("start sync job: %w: empty execution id", domain.ErrJobLifecycle)
	}
	logger.Debug("Started Q Business sync job %s", id)
	return id, nil
}

// UploadBatch puts documents. Documents with an empty access list are
// rejected locally and never sent.
func (ix *Indexer) UploadBatch(ctx context.Context, docs []domain.Document, executionID string) ([]domain.DocumentResult, error) {
	if len(docs) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", domain.ErrInvalidInput, len(docs), MaxBatchSize)
	}

	var results []domain.DocumentResult
	payload := make([]types.Document, 0, len(docs))
	for i := range docs {
		if docs[i].ACL.Empty() {
			results = append(results, domain.DocumentResult{
				ID:           docs[i].ID,
				Status:       domain.DocumentFailed,
				ErrorCode:    "EMPTY_ACL",
				ErrorMessage: domain.ErrEmptyAccess.Error(),
			})
			continue
		}
		payload = append(payload, toDocument(&docs[i]))
	}
	if len(payload) == 0 {
		return results, nil
	}

	in := &qbusiness.BatchPutDocumentInput{
		ApplicationId:    aws.String(ix.cfg.ApplicationID),
		IndexId:          aws.String(ix.cfg.IndexID),
		Documents:        payload,
		DataSourceSyncId: aws.String(executionID),
	}
	if ix.cfg.RoleARN != "" {
		in.RoleArn = aws.String(ix.cfg.RoleARN)
	}

	out, err := ix.api.BatchPutDocument(ctx, in)
	if err != nil {
		return nil, mapError("batch put documents", err)
	}
	return append(results, failedResults(out.FailedDocuments)...), nil
}

// DeleteDocuments removes documents by id.
func (ix *Indexer) DeleteDocuments(ctx context.Context, ids []string, executionID string) ([]domain.DocumentResult, error) {
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", domain.ErrInvalidInput, len(ids), MaxBatchSize)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	docs := make([]types.DeleteDocument, len(ids))
	for i, id := range ids {
		docs[i] = types.DeleteDocument{DocumentId: aws.String(id)}
	}

	out, err := ix.api.BatchDeleteDocument(ctx, &qbusiness.BatchDeleteDocumentInput{
		ApplicationId:    aws.String(ix.cfg.ApplicationID),
		IndexId:          aws.String(ix.cfg.IndexID),
		Documents:        docs,
		DataSourceSyncId: aws.String(executionID),
	})
	if err != nil {
		return nil, mapError("batch delete documents", err)
	}
	return failedResults(out.FailedDocuments), nil
}

// StopJob stops the data source sync job. The service tracks counts
// itself, so the summary is only logged.
func (ix *Indexer) StopJob(ctx context.Context, executionID string, summary domain.JobSummary) error {
	_, err := ix.api.StopDataSourceSyncJob(ctx, &qbusiness.StopDataSourceSyncJobInput{
		ApplicationId: aws.String(ix.cfg.ApplicationID),
		IndexId:       aws.String(ix.cfg.IndexID),
		DataSourceId:  aws.String(ix.cfg.DataSourceID),
	})
	if err != nil {
		return mapError("stop sync job "+executionID, err)
	}
	logger.Debug("Stopped Q Business sync job %s (%d uploaded, %d skipped, %d failed)",
		executionID, summary.Uploaded, summary.Skipped, summary.Failed)
	return nil
}

// JobStatus looks the execution up in the data source's job history.
func (ix *Indexer) JobStatus(ctx context.Context, executionID string) (domain.SyncJob, error) {
	in := &qbusiness.ListDataSourceSyncJobsInput{
		ApplicationId: aws.String(ix.cfg.ApplicationID),
		IndexId:       aws.String(ix.cfg.IndexID),
		DataSourceId:  aws.String(ix.cfg.DataSourceID),
		MaxResults:    aws.Int32(listPageSize),
	}

	for {
		out, err := ix.api.ListDataSourceSyncJobs(ctx, in)
		if err != nil {
			return domain.SyncJob{}, mapError("list sync jobs", err)
		}
		for i := range out.History {
			if aws.ToString(out.History[i].ExecutionId) == executionID {
				return toSyncJob(&out.History[i]), nil
			}
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		in.NextToken = out.NextToken
	}

	return domain.SyncJob{}, fmt.Errorf("sync job %s: %w", executionID, domain.ErrNotFound)
}

// RecentJobs returns up to limit jobs from the data source's history,
// newest first. The history is not ordered by start time, so every page
// is read before trimming.
func (ix *Indexer) RecentJobs(ctx context.Context, limit int) ([]domain.SyncJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	in := &qbusiness.ListDataSourceSyncJobsInput{
		ApplicationId: aws.String(ix.cfg.ApplicationID),
		IndexId:       aws.String(ix.cfg.IndexID),
		DataSourceId:  aws.String(ix.cfg.DataSourceID),
		MaxResults:    aws.Int32(listPageSize),
	}

	var jobs []domain.SyncJob
	for {
		out, err := ix.api.ListDataSourceSyncJobs(ctx, in)
		if err != nil {
			return nil, mapError("list sync jobs", err)
		}
		for i := range out.History {
			jobs = append(jobs, toSyncJob(&out.History[i]))
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		in.NextToken = out.NextToken
	}

	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// PutGroup replaces a group's membership in the index's user store. The
// group is index-scoped to match the membership type documents carry in
// their access configuration.
func (ix *Indexer) PutGroup(ctx context.Context, group domain.GroupMembership) error {
	if group.Name == "" {
		return fmt.Errorf("%w: group name is required", domain.ErrInvalidInput)
	}
	_, err := ix.api.PutGroup(ctx, &qbusiness.PutGroupInput{
		ApplicationId: aws.String(ix.cfg.ApplicationID),
		IndexId:       aws.String(ix.cfg.IndexID),
		GroupName:     aws.String(group.Name),
		Type:          types.MembershipTypeIndex,
		GroupMembers:  toGroupMembers(group),
	})
	if err != nil {
		return mapError("put group "+group.Name, err)
	}
	return nil
}

// Ping checks that the data source is reachable with the current
// credentials by reading one page of job history.
func (ix *Indexer) Ping(ctx context.Context) error {
	_, err := ix.api.ListDataSourceSyncJobs(ctx, &qbusiness.ListDataSourceSyncJobsInput{
		ApplicationId: aws.String(ix.cfg.ApplicationID),
		IndexId:       aws.String(ix.cfg.IndexID),
		DataSourceId:  aws.String(ix.cfg.DataSourceID),
		MaxResults:    aws.Int32(1),
	})
	if err != nil {
		return mapError("ping data source", err)
	}
	return nil
}

// mapError classifies service errors onto domain sentinels.
func mapError(op string, err error) error {
	var (
		conflict   *types.ConflictException
		throttled  *types.ThrottlingException
		denied     *types.AccessDeniedException
		invalid    *types.ValidationException
		notFound   *types.ResourceNotFoundException
		quotaError *types.ServiceQuotaExceededException
	)

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.As(err, &conflict):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrJobInProgress, err)
	case errors.As(err, &throttled):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrRateLimited, err)
	case errors.As(err, &denied):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrAuthInvalid, err)
	case errors.As(err, &invalid), errors.As(err, &quotaError):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrInvalidInput, err)
	case errors.As(err, &notFound):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransport, err)
	}
}
