package minio

import (
	"context"
	stderrors "errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/DockPipe/pkg/errors"
)

var (
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid request")
)

// ArtifactRepository stores the files of one run under "<run-id>/<name>".
type ArtifactRepository interface {
	UploadFile(ctx context.Context, req *UploadRequest) (*UploadResult, error)
	Exists(ctx context.Context, objectKey string) (bool, error)
	GetPresignedDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)

	// Export uploads every path under runID and returns the presigned URL
	// of each, keyed by base name.  Files that fail are skipped and their
	// errors joined into the returned error.
	Export(ctx context.Context, runID string, paths []string) (map[string]string, error)
}

type UploadRequest struct {
	ObjectKey   string
	Path        string
	ContentType string
	Tags        map[string]string
}

type UploadResult struct {
	Bucket     string
	ObjectKey  string
	ETag       string
	Size       int64
	UploadedAt time.Time
}

type minioRepository struct {
	client *MinIOClient
	logger logging.Logger
}

func NewMinIORepository(client *MinIOClient, log logging.Logger) ArtifactRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &minioRepository{client: client, logger: log.Named("artifacts")}
}

// ObjectKey returns the object name a run artifact is stored under.
func ObjectKey(runID, file string) string {
	return path.Join(runID, filepath.Base(file))
}

// contentTypeFor maps artifact extensions to MIME types.
func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return "application/zip"
	case ".pdb", ".pdbqt", ".ent":
		return "chemical/x-pdb"
	case ".sdf", ".mol":
		return "chemical/x-mdl-sdfile"
	case ".txt", ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func (r *minioRepository) UploadFile(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if req == nil || req.ObjectKey == "" || req.Path == "" {
		return nil, ErrInvalidRequest
	}
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactExportFail, "open "+req.Path)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactExportFail, "stat "+req.Path)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = contentTypeFor(req.Path)
	}
	opts := minio.PutObjectOptions{
		ContentType: contentType,
		UserTags:    req.Tags,
		PartSize:    uint64(r.client.config.PartSize),
	}

	info, err := r.client.GetClient().PutObject(ctx, r.client.Bucket(), req.ObjectKey, f, stat.Size(), opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactExportFail, "upload "+req.ObjectKey)
	}

	return &UploadResult{
		Bucket:     info.Bucket,
		ObjectKey:  info.Key,
		ETag:       info.ETag,
		Size:       info.Size,
		UploadedAt: time.Now(),
	}, nil
}

func (r *minioRepository) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := r.client.GetClient().StatObject(ctx, r.client.Bucket(), objectKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeExternalService, "stat "+objectKey)
	}
	return true, nil
}

func (r *minioRepository) GetPresignedDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	return r.client.GeneratePresignedGetURL(ctx, objectKey, expiry)
}

func (r *minioRepository) Export(ctx context.Context, runID string, paths []string) (map[string]string, error) {
	if runID == "" {
		return nil, ErrInvalidRequest
	}
	urls := make(map[string]string, len(paths))
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		key := ObjectKey(runID, p)
		res, err := r.UploadFile(ctx, &UploadRequest{
			ObjectKey: key,
			Path:      p,
			Tags:      map[string]string{"run_id": runID},
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		u, err := r.GetPresignedDownloadURL(ctx, key, 0)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		urls[filepath.Base(p)] = u
		r.logger.Debug("artifact exported",
			logging.RunID(runID),
			logging.String("object", key),
			logging.Int64("bytes", res.Size))
	}
	if len(errs) > 0 {
		return urls, errors.Wrap(stderrors.Join(errs...), errors.ErrCodeArtifactExportFail, "artifact export incomplete")
	}
	return urls, nil
}
