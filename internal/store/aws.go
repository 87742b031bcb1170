package store

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-logr/logr"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// S3API is the part of the S3 client the archive uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type S3Uploader struct {
	Client S3API
	Bucket string
}

func (u *S3Uploader) Upload(ctx context.Context, params UploadParams) error {
	log := logr.FromContextOrDiscard(ctx).WithValues(
		"name", params.Name,
		"content-type", params.ContentType,
		"bucket", u.Bucket,
	)
	log.Info("uploading to s3")

	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.Bucket),
		Key:          aws.String(params.Name),
		ContentType:  aws.String(params.ContentType),
		Body:         bytes.NewReader(params.Data),
		Metadata:     params.Metadata,
		StorageClass: s3types.StorageClassIntelligentTiering,
	})
	return err
}

// List returns every archived diagram, reading each object's metadata
// concurrently.
func (u *S3Uploader) List(ctx context.Context) ([]Entry, error) {
	logr.FromContextOrDiscard(ctx).WithValues("bucket", u.Bucket).Info("listing s3 archive")

	pager := s3.NewListObjectsV2Paginator(u.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(u.Bucket),
		Prefix: aws.String(Prefix),
	})

	var keys []string
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		objs := lo.Filter(page.Contents, func(o s3types.Object, _ int) bool {
			return strings.HasSuffix(aws.ToString(o.Key), ".svg")
		})
		keys = append(keys, lo.Map(objs, func(o s3types.Object, _ int) string {
			return aws.ToString(o.Key)
		})...)
	}

	entries := make([]Entry, len(keys))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i, key := range keys {
		i, key := i, key
		group.Go(func() error {
			out, err := u.Client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(u.Bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return err
			}
			entries[i] = Entry{Name: key, Metadata: out.Metadata}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CloudFrontAPI is the part of the CloudFront client the invalidator uses.
type CloudFrontAPI interface {
	CreateInvalidation(context.Context, *cloudfront.CreateInvalidationInput, ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

type CloudFrontInvalidator struct {
	Client       CloudFrontAPI
	Distribution string
}

func (i *CloudFrontInvalidator) Invalidate(ctx context.Context, paths []string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("paths", paths, "distribution", i.Distribution)
	log.Info("invalidating paths in cloudfront")

	_, err := i.Client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(i.Distribution),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(time.Now().UTC().Format("20060102150405.000000000")),
			Paths: &cftypes.Paths{
				Quantity: aws.Int32(int32(len(paths))),
				Items:    paths,
			},
		},
	})
	return err
}
