package main

import (
	"context"
	"fmt"

	"code.cloudfoundry.org/bytefmt"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/hupe1980/partstore"
	"github.com/hupe1980/partstore/archive"
	"github.com/hupe1980/partstore/archive/dynamo"
	"github.com/hupe1980/partstore/blobstore"
	"github.com/hupe1980/partstore/blobstore/minio"
	"github.com/hupe1980/partstore/blobstore/s3"
	"github.com/hupe1980/partstore/internal/compress"
	"github.com/hupe1980/partstore/internal/conv"
	"github.com/spf13/cobra"
)

func newBlobStore(ctx context.Context, cfg ArchiveConfig) (blobstore.BlobStore, error) {
	switch cfg.Backend {
	case "local":
		return blobstore.NewLocalStore(cfg.Local.Root), nil
	case "s3":
		var opts []s3.Option
		if cfg.S3.Prefix != "" {
			opts = append(opts, s3.WithPrefix(cfg.S3.Prefix))
		}
		if cfg.S3.Region != "" {
			opts = append(opts, s3.WithRegion(cfg.S3.Region))
		}
		if cfg.S3.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(cfg.S3.Endpoint))
		}
		return s3.New(ctx, cfg.S3.Bucket, opts...)
	case "minio":
		m := cfg.Minio
		store, err := minio.Dial(m.Endpoint, m.AccessKey, m.SecretKey, m.Secure, m.Bucket, m.Prefix)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio: ensure bucket %s: %w", m.Bucket, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

func (a *app) archiver(ctx context.Context) (*archive.Archiver, error) {
	cfg := a.cfg.Archive
	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	codec, err := compress.ParseCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	ctrl, err := a.cfg.Controller()
	if err != nil {
		return nil, err
	}

	opts := []archive.Option{
		archive.WithCodec(codec),
		archive.WithController(ctrl),
		archive.WithLogger(a.logger),
	}
	if cfg.BlockSize > 0 {
		n, err := conv.Uint64ToInt(uint64(cfg.BlockSize))
		if err != nil {
			return nil, fmt.Errorf("config: archive.block_size: %w", err)
		}
		opts = append(opts, archive.WithBlockSize(n))
	}
	if cfg.Prune != nil {
		opts = append(opts, archive.WithPrune(*cfg.Prune))
	}
	if cfg.Dynamo.Table != "" {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.Dynamo.Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.Dynamo.Region))
		}
		catalog, err := dynamo.New(ctx, cfg.Dynamo.Table, store, loadOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, archive.WithCatalog(catalog))
	}
	return archive.New(store, opts...), nil
}

func newArchiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Upload the partition's segments and commit a new manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			arc, err := a.archiver(ctx)
			if err != nil {
				return err
			}
			return a.withStorage(ctx, func(s *partstore.Storage) error {
				if err := s.Flush(ctx); err != nil {
					return err
				}
				m, err := arc.Archive(ctx, a.cfg.Partition, s.Segments())
				if err != nil {
					return err
				}
				printManifestSummary(cmd, m)
				return nil
			})
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	var target string
	c := &cobra.Command{
		Use:   "restore",
		Short: "Download the latest archived version into an empty directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			arc, err := a.archiver(ctx)
			if err != nil {
				return err
			}
			dir := target
			if dir == "" {
				dir = a.cfg.Directory
			}
			m, err := arc.Restore(ctx, a.cfg.Partition, dir)
			if err != nil {
				return err
			}
			printManifestSummary(cmd, m)
			return nil
		},
	}
	c.Flags().StringVar(&target, "target", "", "directory to restore into (default: the partition directory)")
	return c
}

func newManifestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "Print the latest archive manifest as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			arc, err := a.archiver(ctx)
			if err != nil {
				return err
			}
			m, err := arc.Latest(ctx, a.cfg.Partition)
			if err != nil {
				return err
			}
			data, err := m.Encode()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

func printManifestSummary(cmd *cobra.Command, m *archive.Manifest) {
	var stored uint64
	for _, e := range m.Segments {
		stored += uint64(e.Stored)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "partition %s version %d: %d segments, %s (%s stored, %s)\n",
		m.Partition, m.Version, len(m.Segments),
		bytefmt.ByteSize(m.TotalSize()), bytefmt.ByteSize(stored), m.Codec)
}
