package inject

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/circuitcraft/internal/circuit"
	"github.com/dmorgan81/circuitcraft/internal/config"
	"github.com/dmorgan81/circuitcraft/internal/controller"
	"github.com/dmorgan81/circuitcraft/internal/feed"
	"github.com/dmorgan81/circuitcraft/internal/handler"
	"github.com/dmorgan81/circuitcraft/internal/log"
	"github.com/dmorgan81/circuitcraft/internal/page"
	"github.com/dmorgan81/circuitcraft/internal/param"
	"github.com/dmorgan81/circuitcraft/internal/prompt"
	"github.com/dmorgan81/circuitcraft/internal/result"
	"github.com/dmorgan81/circuitcraft/internal/session"
	"github.com/dmorgan81/circuitcraft/internal/store"
	"github.com/samber/do"
)

// Setup registers every component. Providers are lazy, so AWS is only
// contacted when the configuration asks for SSM, S3 or CloudFront.
func Setup(ctx context.Context, cfg *config.Config) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.ProvideValue[*http.Client](injector, &http.Client{Timeout: cfg.HTTPTimeout})

	do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)
	do.ProvideNamed[string](injector, "api_url", func(i *do.Injector) (string, error) {
		if cfg.APIURLParam == "" {
			return cfg.APIURL, nil
		}
		apiURL, err := param.Resolve(ctx, do.MustInvoke[param.Fetcher](i), cfg.APIURLParam, cfg.APIURL)
		if err != nil {
			return "", err
		}
		return apiURL, config.ValidateAPIURL(apiURL)
	})
	do.ProvideNamed[[]string](injector, "example_prompts", func(i *do.Injector) ([]string, error) {
		if cfg.PromptsParam == "" {
			return cfg.ExamplePrompts, nil
		}
		return param.ResolveAll(ctx, do.MustInvoke[param.Fetcher](i), cfg.PromptsParam, cfg.ExamplePrompts)
	})
	do.ProvideNamedValue[string](injector, "generator_name", cfg.GeneratorName)
	do.ProvideNamedValue[string](injector, "result_encoding", cfg.ResultEncoding)
	do.ProvideNamedValue[string](injector, "results_path", cfg.ResultsPath)
	do.ProvideNamedValue[time.Duration](injector, "session_ttl", cfg.SessionTTL)
	do.ProvideNamedValue[string](injector, "reap_schedule", cfg.ReapSchedule)
	do.ProvideNamedValue[string](injector, "archive_dir", cfg.ArchiveDir)
	do.ProvideNamedValue[string](injector, "site_url", cfg.SiteURL)

	do.Provide[*result.Registry](injector, result.NewRegistryFromInjector)
	do.Provide[result.Encoder](injector, result.NewEncoder)
	do.Provide[circuit.Generator](injector, circuit.NewHTTPGenerator)

	provideArchive(injector, cfg)
	do.Provide[*feed.Generator](injector, feed.NewGenerator)

	do.Provide[*controller.Factory](injector, controller.NewFactory)
	do.Provide[*session.Manager](injector, session.NewManagerFromInjector)
	do.Provide[*page.Templator](injector, page.NewTemplator)
	do.Provide[*prompt.Randomizer](injector, prompt.NewRandomizer)
	do.Provide[*handler.Handler](injector, handler.NewHandler)

	return injector
}

// provideArchive binds the archive to S3, a local directory, or nothing.
func provideArchive(injector *do.Injector, cfg *config.Config) {
	switch {
	case cfg.ArchiveBucket != "":
		do.Provide[*store.S3Uploader](injector, func(i *do.Injector) (*store.S3Uploader, error) {
			return &store.S3Uploader{Client: do.MustInvoke[*s3.Client](i), Bucket: cfg.ArchiveBucket}, nil
		})
		do.Provide[store.Uploader](injector, func(i *do.Injector) (store.Uploader, error) {
			return do.MustInvoke[*store.S3Uploader](i), nil
		})
		do.Provide[store.Lister](injector, func(i *do.Injector) (store.Lister, error) {
			return do.MustInvoke[*store.S3Uploader](i), nil
		})
	case cfg.ArchiveDir != "":
		files := &store.FileUploader{Dir: cfg.ArchiveDir}
		do.ProvideValue[store.Uploader](injector, files)
		do.ProvideValue[store.Lister](injector, files)
	default:
		do.ProvideValue[store.Uploader](injector, nil)
		do.ProvideValue[store.Lister](injector, nil)
	}

	do.Provide[store.Invalidator](injector, func(i *do.Injector) (store.Invalidator, error) {
		if cfg.Distribution == "" {
			return nil, nil
		}
		return &store.CloudFrontInvalidator{
			Client:       do.MustInvoke[*cloudfront.Client](i),
			Distribution: cfg.Distribution,
		}, nil
	})
	do.Provide[controller.Recorder](injector, func(i *do.Injector) (controller.Recorder, error) {
		uploader := do.MustInvoke[store.Uploader](i)
		if uploader == nil {
			return nil, nil
		}
		return &store.Archiver{Uploader: uploader, Invalidator: do.MustInvoke[store.Invalidator](i)}, nil
	})
}
