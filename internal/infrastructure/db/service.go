package db

import (
	"fmt"
	"strings"

	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/defilive/vaultd/internal/core/ports"
	badgerdb "github.com/defilive/vaultd/internal/infrastructure/db/badger"
	"github.com/dgraph-io/badger/v4"
)

var allowedTypes = strings.Join([]string{"badger"}, ",")

type ServiceConfig struct {
	DbType   string
	DbConfig []any
}

type service struct {
	challengeRepo domain.ChallengeRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	var (
		challengeRepo domain.ChallengeRepository
		err           error
	)

	switch config.DbType {
	case "badger":
		if len(config.DbConfig) != 2 {
			return nil, fmt.Errorf("badger db config must have 2 elements, got %d", len(config.DbConfig))
		}
		baseDir, ok := config.DbConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		var logger badger.Logger
		if config.DbConfig[1] != nil {
			logger, ok = config.DbConfig[1].(badger.Logger)
			if !ok {
				return nil, fmt.Errorf("invalid logger")
			}
		}
		challengeRepo, err = badgerdb.NewChallengeRepository(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open challenge db: %s", err)
		}
	default:
		return nil, fmt.Errorf("unsupported db type %s, please select one of %s", config.DbType, allowedTypes)
	}

	return &service{challengeRepo: challengeRepo}, nil
}

func (s *service) Challenges() domain.ChallengeRepository {
	return s.challengeRepo
}

func (s *service) Close() {
	s.challengeRepo.Close()
}
