package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dbechrd/slimerrt/internal/config"
	"github.com/dbechrd/slimerrt/pkg/archive"
	"github.com/dbechrd/slimerrt/pkg/transport"
)

// loadConfig reads slimerrt.json, applies the environment and builds the
// process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
	}
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.LoadEnv(); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newNetwork builds the transport named in the config.
func newNetwork(cfg *config.Config, logger *slog.Logger) (transport.Network, error) {
	tc := transport.DefaultConfig().
		WithConnectTimeout(cfg.Transport.ConnectTimeout.Std()).
		WithPeerTimeout(cfg.Transport.PeerTimeout.Std()).
		WithPingInterval(cfg.Transport.PingInterval.Std()).
		WithLogger(logger)
	tc.MaxPacketSize = cfg.Transport.MaxPacketSize

	switch cfg.Server.Network {
	case "udp":
		return transport.NewUDPNetwork(tc), nil
	case "ws":
		return transport.NewWebSocketNetwork(tc), nil
	default:
		return nil, fmt.Errorf("unknown network %q", cfg.Server.Network)
	}
}

// newArchiver returns an S3-backed archiver, or nil when no bucket is
// configured.
func newArchiver(cfg *config.Config, logger *slog.Logger) *archive.Archiver {
	ac := cfg.Archive
	if ac.Bucket == "" {
		return nil
	}

	opts := s3.Options{
		Region:      ac.Region,
		Credentials: aws.NewCredentialsCache(envCredentials{}),
	}
	if ac.Endpoint != "" {
		opts.BaseEndpoint = aws.String(ac.Endpoint)
		opts.UsePathStyle = true
	}
	if opts.Region == "" {
		opts.Region = os.Getenv("AWS_REGION")
	}

	store := archive.NewS3Store(s3.New(opts), ac.Bucket, ac.Prefix)
	return archive.New(store, archive.WithLogger(logger))
}

// envCredentials reads static AWS credentials from the standard
// environment variables.
type envCredentials struct{}

func (envCredentials) Retrieve(ctx context.Context) (aws.Credentials, error) {
	creds := aws.Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "slimerrt environment",
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set to archive chat")
	}
	return creds, nil
}
