package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"go.uber.org/zap"
)

// Provisioner ensures the target repository exists before a publish pass.
type Provisioner struct {
	client ECRAPI
	logger *zap.Logger
}

// NewProvisioner creates a repository provisioner.
func NewProvisioner(client ECRAPI, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		client: client,
		logger: logger,
	}
}

// EnsureRepository returns the URI of the named repository, creating it when
// the registry reports it as missing. Any failure other than not-found is
// surfaced to the caller unmodified; retry policy belongs to the caller.
func (p *Provisioner) EnsureRepository(ctx context.Context, name string) (string, error) {
	out, err := p.client.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{name},
	})
	if err == nil {
		if len(out.Repositories) == 0 {
			return "", fmt.Errorf("repository %s not present in describe response", name)
		}
		p.logger.Debug("repository already exists", zap.String("repository", name))
		return aws.ToString(out.Repositories[0].RepositoryUri), nil
	}

	var notFound *ecrtypes.RepositoryNotFoundException
	if !errors.As(err, &notFound) {
		return "", err
	}

	p.logger.Info("repository not found, creating", zap.String("repository", name))

	created, err := p.client.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create repository %s: %w", name, err)
	}

	return aws.ToString(created.Repository.RepositoryUri), nil
}
